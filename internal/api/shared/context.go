package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of context keys set by the api packages.
type ContextKey string

const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDHeader carries the trace ID on requests and responses.
	TraceIDHeader = "X-Trace-ID"

	// TraceIDLength is the number of random bytes in a generated trace ID
	TraceIDLength = 16 // 32 hex characters

	maxInboundTraceID = 64
)

// SetTraceID adds a trace ID to the context. A well-formed inbound ID is
// reused so a client can correlate its own logs; otherwise a new one is made.
func SetTraceID(ctx context.Context, inbound string) context.Context {
	traceID := inbound
	if !validTraceID(traceID) {
		traceID = generateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxInboundTraceID {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return !(r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) < 0
}

// generateTraceID returns 32 random hex characters, falling back to a UUID
// without dashes if the system random source fails.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if n, err := rand.Read(b); err != nil || n != TraceIDLength {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}
