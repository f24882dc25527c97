// Package cli provides the interactive consent command-line client.
//
// It wires configuration, the local SQLite store and the consent service
// into a REPL. A background watcher pings the backend, reports online and
// offline transitions and replays queued requests when the backend comes
// back.
//
// Commands:
//   - init [country] [accept-language]   resolve jurisdiction and banner
//   - set name=bool ...                  record a consent decision
//   - identify <external-id> [provider]  link the subject to a user
//   - show                               print the stored record
//   - pending                            list queued requests
//   - replay                             deliver queued requests now
//   - clear                              delete the stored record
//   - exit | quit
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
