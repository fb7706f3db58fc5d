// Package manifest records preparation runs in a SQLite database.
//
// Each run stores its category order with counts and weights, the partition
// of every patient and the reconciliation diagnostics, so a later deployment
// pass can reuse the exact category order a model was trained with. Writers
// serialize on a flock next to the database; readers do not lock.
package manifest
