// Package domain contains the core business entities, value objects, and
// domain logic of the application: generation tasks, their state machine,
// the task-type catalog, and documents. It is independent of any specific
// infrastructure or delivery mechanism.
package domain
