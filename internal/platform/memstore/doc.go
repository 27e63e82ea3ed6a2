// Package memstore provides in-memory implementations of the store
// interfaces. It is selected when no database URL is configured and is used
// throughout the unit tests.
//
// Concurrency is controlled per (document_id, task_type) key and per task;
// an index lock only guards map lookups and is never held while a task is
// being modified. Reads return copies so callers never observe a status
// without its result.
package memstore
