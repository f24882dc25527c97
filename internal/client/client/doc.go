// Package client contains the SDK's view of the consent backend.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the API interface): Init,
//     SetConsent, Identify and Ping.
//  2. A JSON-over-HTTP implementation (see HTTPClient) built on the fetcher,
//     which adds retries, request ids and error classification. Protocol v2
//     is subject-centric (POST /subjects, PATCH /subjects/{id}); v1 uses
//     POST /consent/set and POST /consent/identify.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) that opens
//     the SQLite database holding the cookie and local-storage tables and
//     applies the embedded goose migrations.
//
// # Error Handling
//
// Failures keep their *fetcher.Error and are additionally tagged with
// sentinel errors for errors.Is: ErrUnavailable for network failures and
// 5xx responses, ErrUnauthorized for 401/403.
package client
