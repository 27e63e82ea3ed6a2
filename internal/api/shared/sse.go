package shared

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventWriter writes Server-Sent Events, one JSON object per data line,
// flushing after every event.
type EventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// StartEventStream sets the event-stream headers, writes the 200 status and
// flushes so the client sees the stream open before the first event.
// Extra headers are applied before the status is written.
func StartEventStream(w http.ResponseWriter, extra map[string]string) (*EventWriter, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	for k, v := range extra {
		h.Set(k, v)
	}
	w.WriteHeader(http.StatusOK)

	ew := &EventWriter{w: w, rc: http.NewResponseController(w)}
	if err := ew.rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	return ew, nil
}

// WriteEvent encodes v as JSON and writes it as a single event.
func (e *EventWriter) WriteEvent(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return e.rc.Flush()
}
