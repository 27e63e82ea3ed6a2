package client

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// PollState is the per-document polling state.
type PollState string

// Poll states. idle → polling → resolved | failed | suspended.
const (
	PollIdle      PollState = "idle"
	PollPolling   PollState = "polling"
	PollResolved  PollState = "resolved"
	PollFailed    PollState = "failed"
	PollSuspended PollState = "suspended"
)

// StatusFetcher reads a task's status through its status URL.
type StatusFetcher interface {
	Status(ctx context.Context, statusURL string) (*TaskStatus, error)
}

// Outcome is reported once per poller that settles.
type Outcome struct {
	Handle PendingHandle
	State  PollState
	// Status is the last status read; nil when the server never answered.
	Status *TaskStatus
	// Err explains failed and suspended outcomes.
	Err error
}

// RegistryConfig configures a PollerRegistry.
type RegistryConfig struct {
	Fetcher  StatusFetcher
	Handles  HandleStore
	Interval time.Duration
	// Refresh runs after a task completes, before Notify.
	Refresh func(ctx context.Context, h PendingHandle, s *TaskStatus)
	// Notify receives every settled outcome.
	Notify func(Outcome)
	Logger *slog.Logger
}

type poller struct {
	handle PendingHandle
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerRegistry owns at most one poll loop per document.
type PollerRegistry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu      sync.Mutex
	pollers map[uuid.UUID]*poller
	states  map[uuid.UUID]PollState
	wg      sync.WaitGroup
}

// NewPollerRegistry creates a registry. Interval defaults to 2s.
func NewPollerRegistry(cfg RegistryConfig) *PollerRegistry {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PollerRegistry{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "poller"),
		pollers: make(map[uuid.UUID]*poller),
		states:  make(map[uuid.UUID]PollState),
	}
}

// Watch starts polling h, first cancelling any poll already running for the
// same document. The new loop issues no request until the old one has
// exited. Cancelling ctx stops the loop and keeps the handle.
func (r *PollerRegistry) Watch(ctx context.Context, h PendingHandle) {
	pctx, cancel := context.WithCancel(ctx)
	p := &poller{handle: h, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	prev := r.pollers[h.DocumentID]
	r.pollers[h.DocumentID] = p
	r.states[h.DocumentID] = PollPolling
	r.wg.Add(1)
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
		r.logger.Debug("replaced poll for document",
			"document_id", h.DocumentID,
			"previous_task_id", prev.handle.TaskID,
			"task_id", h.TaskID)
	}

	go r.run(pctx, p, prev)
}

// Cancel stops the document's poll, if any, and waits for it to exit. The
// handle stays in the store.
func (r *PollerRegistry) Cancel(documentID uuid.UUID) {
	r.mu.Lock()
	p := r.pollers[documentID]
	if p != nil {
		delete(r.pollers, documentID)
		r.states[documentID] = PollIdle
	}
	r.mu.Unlock()

	if p != nil {
		p.cancel()
		<-p.done
	}
}

// CancelAll stops every poll and waits for them to exit.
func (r *PollerRegistry) CancelAll() {
	r.mu.Lock()
	all := make([]*poller, 0, len(r.pollers))
	for id, p := range r.pollers {
		all = append(all, p)
		delete(r.pollers, id)
		r.states[id] = PollIdle
	}
	r.mu.Unlock()

	for _, p := range all {
		p.cancel()
	}
	for _, p := range all {
		<-p.done
	}
}

// Active returns the handles currently being polled, ordered by document id.
func (r *PollerRegistry) Active() []PendingHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PendingHandle, 0, len(r.pollers))
	for _, p := range r.pollers {
		out = append(out, p.handle)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentID.String() < out[j].DocumentID.String()
	})
	return out
}

// State returns the document's polling state.
func (r *PollerRegistry) State(documentID uuid.UUID) PollState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[documentID]; ok {
		return s
	}
	return PollIdle
}

// Resume watches every stored handle and returns how many it found.
func (r *PollerRegistry) Resume(ctx context.Context) (int, error) {
	handles, err := r.cfg.Handles.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, h := range handles {
		r.Watch(ctx, h)
	}
	r.logger.Info("resumed pending tasks", "count", len(handles))
	return len(handles), nil
}

// Wait blocks until every poll loop started so far has exited or ctx ends.
func (r *PollerRegistry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *PollerRegistry) run(ctx context.Context, p *poller, prev *poller) {
	defer r.wg.Done()
	defer close(p.done)
	defer r.detach(p)
	defer p.cancel()

	if prev != nil {
		<-prev.done
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if r.poll(ctx, p) {
			return
		}
	}
}

// poll issues one status request and reports whether the loop is finished.
func (r *PollerRegistry) poll(ctx context.Context, p *poller) bool {
	h := p.handle
	log := r.logger.With("document_id", h.DocumentID, "task_id", h.TaskID, "task_type", h.TaskType)

	status, err := r.cfg.Fetcher.Status(ctx, h.TaskURL)
	if ctx.Err() != nil {
		return true
	}

	switch {
	case errors.Is(err, ErrTaskGone):
		log.Warn("task disappeared from the server, dropping handle")
		r.dropHandle(ctx, h, log)
		r.settle(p, Outcome{Handle: h, State: PollFailed, Err: err})
		return true

	case err != nil:
		log.Warn("status request failed, keeping handle for resume", "error", err)
		r.settle(p, Outcome{Handle: h, State: PollSuspended, Err: err})
		return true

	case status.Status == domain.TaskStatusComplete:
		log.Info("task complete")
		r.dropHandle(ctx, h, log)
		if r.cfg.Refresh != nil {
			r.cfg.Refresh(ctx, h, status)
		}
		r.settle(p, Outcome{Handle: h, State: PollResolved, Status: status})
		return true

	case status.Status == domain.TaskStatusError:
		log.Info("task failed", "message", status.Message())
		r.dropHandle(ctx, h, log)
		r.settle(p, Outcome{
			Handle: h,
			State:  PollFailed,
			Status: status,
			Err:    &TaskFailedError{Message: status.Message()},
		})
		return true

	default:
		log.Debug("task still running", "status", status.Status)
		return false
	}
}

func (r *PollerRegistry) dropHandle(ctx context.Context, h PendingHandle, log *slog.Logger) {
	if err := r.cfg.Handles.Delete(ctx, h.DocumentID, h.TaskID); err != nil {
		// The next resume sees the same terminal answer and retries the delete.
		log.Error("failed to delete pending handle", "error", err)
	}
}

// detach returns the document to idle when p exits without settling, for
// example because the context passed to Watch was cancelled.
func (r *PollerRegistry) detach(p *poller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pollers[p.handle.DocumentID] == p {
		delete(r.pollers, p.handle.DocumentID)
		r.states[p.handle.DocumentID] = PollIdle
	}
}

// settle records the outcome if p still owns its document.
func (r *PollerRegistry) settle(p *poller, out Outcome) {
	r.mu.Lock()
	current := r.pollers[p.handle.DocumentID] == p
	if current {
		delete(r.pollers, p.handle.DocumentID)
		r.states[p.handle.DocumentID] = out.State
	}
	r.mu.Unlock()

	if current && r.cfg.Notify != nil {
		r.cfg.Notify(out)
	}
}
