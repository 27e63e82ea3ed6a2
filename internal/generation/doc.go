// Package generation defines the contract between the task engine and the
// external services that produce artifacts (LLM summaries, narration scripts,
// synthesized audio, ingested document text).
//
// An Operation is an opaque, cancellable long-running call. It may report
// partial output through an emit callback while it runs; the task executor
// turns those into stream events. Implementations live in
// internal/platform/gemini and internal/platform/ragflow.
package generation
