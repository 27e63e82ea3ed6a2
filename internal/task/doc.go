// Package task manages background job queuing, processing, and lifecycle.
// It provides mechanisms for asynchronous execution of long-running
// generation calls (summaries, scripts, audio, document ingest), ensuring
// they don't block HTTP request handling and can recover from application
// restarts.
//
// The Executor owns a bounded queue and a fixed set of workers. Every status
// change goes through store.TaskStore, which enforces the state machine, so
// the executor never needs to hold its own lock around a task.
package task
