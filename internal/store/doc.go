// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing business rules to remain
// independent of specific database technologies or persistence details.
//
// Two implementations exist: internal/platform/postgres for production and
// internal/platform/memstore for development and tests. Both enforce the task
// state machine and the single-active-task rule themselves, so callers never
// need to pre-check state before writing.
package store
