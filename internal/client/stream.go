package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
)

// ErrStreamTruncated is reported when a stream ends without a terminal event.
var ErrStreamTruncated = errors.New("stream ended before a terminal event")

// maxEventSize bounds one SSE data line.
const maxEventSize = 1 << 20

// Stream is an open event stream for one task.
type Stream struct {
	TaskID uuid.UUID

	body     io.ReadCloser
	consumed atomic.Bool
}

// OpenStream starts a streaming generation and returns once the server has
// accepted it. Rejections (unknown document, missing prerequisite, non
// streamable type) come back as *StatusError before any event is read.
func (c *APIClient) OpenStream(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
	opts LaunchOptions,
) (*Stream, error) {
	q := url.Values{}
	if opts.Override {
		q.Set("override", strconv.FormatBool(true))
	}
	for k, v := range opts.Params {
		q.Set(k, v)
	}
	ref := "/tasks/" + url.PathEscape(string(taskType)) + "/" + documentID.String() + "/stream"
	if len(q) > 0 {
		ref += "?" + q.Encode()
	}
	target, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, readStatusError(resp)
	}

	s := &Stream{body: resp.Body}
	if id, err := uuid.Parse(resp.Header.Get("X-Task-ID")); err == nil {
		s.TaskID = id
	}
	return s, nil
}

// Events returns the stream's events. The sequence can be ranged over once;
// it closes the connection when the range ends, whether after the terminal
// event or early. A malformed event ends the sequence with an error event.
func (s *Stream) Events() generation.EventSequence {
	return func(yield func(generation.Event) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			return
		}
		defer func() { _ = s.body.Close() }()

		scanner := bufio.NewScanner(s.body)
		scanner.Buffer(make([]byte, 0, 4096), maxEventSize)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}

			var ev generation.Event
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
				yield(generation.ErrorEvent("malformed stream event"))
				return
			}
			if !yield(ev) || ev.IsTerminal() {
				return
			}
		}
	}
}

// Close releases the connection of a stream that was never ranged over.
func (s *Stream) Close() error {
	if s.consumed.CompareAndSwap(false, true) {
		return s.body.Close()
	}
	return nil
}

// StreamState is the reducer's position in the stream.
type StreamState = generation.StreamState

// Stream states
const (
	StreamOpen   = generation.StreamOpen
	StreamDone   = generation.StreamDone
	StreamFailed = generation.StreamFailed
)

// StreamReducer folds stream events with generation.Reducer and reports the
// outcome as a client error.
type StreamReducer struct {
	// OnToken, when set, sees every token as it is applied.
	OnToken func(string)

	fold generation.Reducer
}

// Apply folds one event. It reports whether more events are expected.
func (r *StreamReducer) Apply(ev generation.Event) bool {
	r.fold.OnToken = r.OnToken
	return r.fold.Apply(ev)
}

// Consume applies every event of seq and returns the final error, which is
// ErrStreamTruncated when seq ended without a terminal event.
func (r *StreamReducer) Consume(seq generation.EventSequence) error {
	for ev := range seq {
		if !r.Apply(ev) {
			break
		}
	}
	return r.Err()
}

// State returns the current state.
func (r *StreamReducer) State() StreamState { return r.fold.State() }

// Content returns the tokens applied so far.
func (r *StreamReducer) Content() string { return r.fold.Content() }

// TaskID returns the id carried by the complete event.
func (r *StreamReducer) TaskID() string { return r.fold.TaskID() }

// Err returns the failure, if any.
func (r *StreamReducer) Err() error {
	switch r.fold.State() {
	case StreamOpen:
		return ErrStreamTruncated
	case StreamFailed:
		return &TaskFailedError{Message: r.fold.Message()}
	}
	return nil
}

// TaskFailedError carries the message of a task that ended in error.
type TaskFailedError struct {
	Message string
}

func (e *TaskFailedError) Error() string {
	return "task failed: " + e.Message
}
