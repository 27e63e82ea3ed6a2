// Package gemini provides generation.Operation implementations backed by
// Google's Gemini API.
//
// This package is an infrastructure adapter in the hexagonal architecture,
// connecting the task engine to Google's external Gemini AI service without
// exposing the details of that service to the rest of the application.
//
// Key components:
//
// 1. Summary and script operations:
//   - Stream text from the model and forward each chunk as a token
//   - Build prompts from templates with length guidance
//
// 2. Audio operation:
//   - Splits a narration script into host and expert turns
//   - Synthesizes each turn with the configured prebuilt voice
//   - Writes the concatenated PCM as a WAV file
//
// 3. Error Handling:
//   - Retries transient failures with exponential backoff and jitter, but
//     only before any token has been emitted
//   - Categorizes API errors into generation package errors
//   - Handles content filtering and safety measures
package gemini
