package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// Errors returned by APIClient.
var (
	// ErrTaskGone means the server answered 404 for a task: the handle
	// pointing at it is abandoned.
	ErrTaskGone = errors.New("task no longer exists on the server")

	// ErrTransport wraps failures to reach the server at all.
	ErrTransport = errors.New("server unreachable")
)

// StatusError is a non-2xx answer carrying the server's error body.
type StatusError struct {
	Code    int
	Message string
	TraceID string
}

func (e *StatusError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("server returned %d: %s (trace %s)", e.Code, e.Message, e.TraceID)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// TaskStatus is the status endpoint's view of a task.
type TaskStatus struct {
	TaskID     uuid.UUID         `json:"task_id"`
	DocumentID uuid.UUID         `json:"document_id"`
	TaskType   domain.TaskType   `json:"task_type"`
	Status     domain.TaskStatus `json:"status"`
	Result     *domain.Result    `json:"result,omitempty"`
	Attempts   int               `json:"attempts"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Message returns the failure message of an errored task.
func (s *TaskStatus) Message() string {
	if s.Result == nil {
		return ""
	}
	return s.Result.Message
}

// LaunchOptions are the optional launch inputs.
type LaunchOptions struct {
	Override bool
	Params   map[string]string
}

// LaunchResult is the launch endpoint's answer.
type LaunchResult struct {
	TaskID    uuid.UUID `json:"task_id"`
	StatusURL string    `json:"status_url"`
}

// APIClient talks to the audiopaper HTTP API.
type APIClient struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
}

// NewAPIClient creates a client for the server at baseURL. timeout bounds
// every request except event streams, which last as long as the generation.
func NewAPIClient(baseURL string, timeout time.Duration) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	return &APIClient{
		base:   u,
		http:   &http.Client{Timeout: timeout},
		stream: &http.Client{},
	}, nil
}

// resolve turns a server path or a status URL returned by the server into
// an absolute URL.
func (c *APIClient) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	joined := *c.base
	joined.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(u.Path, "/")
	joined.RawQuery = u.RawQuery
	return joined.String(), nil
}

// StatusURL is the status URL of a task on this client's server.
func (c *APIClient) StatusURL(taskID uuid.UUID) string {
	u, _ := c.resolve("/tasks/" + taskID.String() + "/status")
	return u
}

// CreateDocument uploads a local document and returns its id.
func (c *APIClient) CreateDocument(ctx context.Context, filename, text string) (uuid.UUID, error) {
	var out struct {
		ID uuid.UUID `json:"id"`
	}
	body := map[string]string{"filename": filename, "text": text}
	if err := c.do(ctx, http.MethodPost, "/documents", body, http.StatusCreated, &out); err != nil {
		return uuid.Nil, err
	}
	return out.ID, nil
}

// Launch starts a task and returns without waiting for it.
func (c *APIClient) Launch(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
	opts LaunchOptions,
) (*LaunchResult, error) {
	body := struct {
		Override bool              `json:"override"`
		Params   map[string]string `json:"params,omitempty"`
	}{opts.Override, opts.Params}

	var out LaunchResult
	path := "/tasks/" + url.PathEscape(string(taskType)) + "/" + documentID.String()
	if err := c.do(ctx, http.MethodPost, path, body, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	if out.StatusURL == "" {
		out.StatusURL = c.StatusURL(out.TaskID)
	}
	abs, err := c.resolve(out.StatusURL)
	if err != nil {
		return nil, err
	}
	out.StatusURL = abs
	return &out, nil
}

// Status fetches a task through its status URL. A 404 yields ErrTaskGone.
func (c *APIClient) Status(ctx context.Context, statusURL string) (*TaskStatus, error) {
	var out TaskStatus
	if err := c.do(ctx, http.MethodGet, statusURL, nil, http.StatusOK, &out); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", ErrTaskGone, err)
		}
		return nil, err
	}
	return &out, nil
}

// Retry moves an errored task back into the queue.
func (c *APIClient) Retry(ctx context.Context, taskID uuid.UUID) error {
	path := "/tasks/" + taskID.String() + "/retry"
	return c.do(ctx, http.MethodPost, path, nil, http.StatusOK, nil)
}

// DocumentTasks lists every task recorded for a document.
func (c *APIClient) DocumentTasks(ctx context.Context, documentID uuid.UUID) ([]TaskStatus, error) {
	var out []TaskStatus
	path := "/documents/" + documentID.String() + "/tasks"
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) do(ctx context.Context, method, ref string, in any, want int, out any) error {
	target, err := c.resolve(ref)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		return readStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		TraceID string `json:"trace_id"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error, TraceID: body.TraceID}
}
