// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts the task and document services to
// JSON endpoints and a Server-Sent Events stream.
package api
