// Package localstore persists string values under string keys in the
// local_storage table. It plays the role of a browser's localStorage: the
// JSON copy of the consent record and the pending-operation queues live here.
//
// Update runs a read-modify-write inside a transaction so concurrent queue
// updates from several processes sharing the database do not lose writes.
package localstore
