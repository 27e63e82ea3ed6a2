// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store package.
// It handles the details of database connections, query execution, and data
// mapping between domain entities and database records.
//
// Task status changes run inside a transaction that locks the row, checks the
// domain state machine, writes status and result in a single UPDATE and
// appends to task_transitions. Creation and supersession for one
// (document_id, task_type) are serialized with a transaction-scoped advisory
// lock; the partial unique index tasks_one_active_per_key backs that up.
// The schema is managed by goose migrations embedded in this package.
package postgres
