// Package storage persists the consent record through two channels: a
// cookie carrying the compact codec form and a local key/value entry
// carrying JSON.
//
// Writes go to every channel and tolerate individual channel failures.
// Reads follow a fixed precedence: a record found only under the legacy key
// is migrated to the current key; when both channels hold a record the
// cookie wins and local storage is resynced to it; when only one channel
// holds a record the other is resynced. A Storage without channels does
// nothing and reads nil.
package storage
