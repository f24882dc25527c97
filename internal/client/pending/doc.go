// Package pending keeps a durable log of consent writes the backend has not
// confirmed yet and replays it.
//
// Each operation kind has its own local-storage key holding a JSON array of
// raw request bodies. Enqueue skips bodies already present. Check schedules a
// replay after a settle delay when anything is queued; Replay sends every
// operation, drops the ones that succeeded, repeats for a bounded number of
// passes, and writes back what is left.
//
// Delivery is at least once: an operation may reach the backend more than
// once, so the backend must treat submissions idempotently.
package pending
