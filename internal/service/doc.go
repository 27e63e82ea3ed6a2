// Package service contains the application use cases for generation tasks
// and the documents they run against. It coordinates the task store, the
// document store and the executor, and enforces the pipeline rules that sit
// above the raw task state machine: prerequisites, supersession and retry.
//
// The service layer depends on domain entities and store interfaces, never
// on a specific storage or generation implementation.
package service
