// Package config loads runtime configuration for the consent CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. CONSENT_* environment variables (see parseEnv).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   backend base URL
//	-m string   mode: hosted or offline
//	-v string   backend API version (v1 or v2)
//	-n string   site domain the consent is given for
//	-d string   SQLite database path
//	-i int      online status check interval (seconds)
//	-r int      retries per request
//
// # JSON schema
//
// Durations accept strings like "3s" or integer nanoseconds:
//
//	{
//	  "backend_url": "http://127.0.0.1:8080",
//	  "mode": "hosted",
//	  "domain": "shop.example.com",
//	  "online_check_interval": "3s",
//	  "settle_delay": "2s"
//	}
package config
