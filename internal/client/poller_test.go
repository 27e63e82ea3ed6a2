package client_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/client"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testInterval = 5 * time.Millisecond
	waitFor      = 2 * time.Second
)

// memoryHandles is an in-memory client.HandleStore.
type memoryHandles struct {
	mu      sync.Mutex
	handles map[uuid.UUID]client.PendingHandle
}

func newMemoryHandles(hs ...client.PendingHandle) *memoryHandles {
	m := &memoryHandles{handles: make(map[uuid.UUID]client.PendingHandle)}
	for _, h := range hs {
		m.handles[h.DocumentID] = h
	}
	return m
}

func (m *memoryHandles) Save(_ context.Context, h client.PendingHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[h.DocumentID] = h
	return nil
}

func (m *memoryHandles) Get(_ context.Context, id uuid.UUID) (client.PendingHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	if !ok {
		return client.PendingHandle{}, client.ErrHandleNotFound
	}
	return h, nil
}

func (m *memoryHandles) Delete(_ context.Context, docID, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[docID]; ok && h.TaskID == taskID {
		delete(m.handles, docID)
	}
	return nil
}

func (m *memoryHandles) List(context.Context) ([]client.PendingHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]client.PendingHandle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryHandles) has(docID uuid.UUID) bool {
	_, err := m.Get(context.Background(), docID)
	return err == nil
}

// scriptedFetcher answers status requests per URL from a script; the last
// entry repeats.
type scriptedFetcher struct {
	mu       sync.Mutex
	script   map[string][]fetchResult
	calls    map[string]int
	inflight map[string]int
	overlap  bool
}

type fetchResult struct {
	status domain.TaskStatus
	msg    string
	err    error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		script:   make(map[string][]fetchResult),
		calls:    make(map[string]int),
		inflight: make(map[string]int),
	}
}

func (f *scriptedFetcher) set(url string, results ...fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[url] = results
}

func (f *scriptedFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *scriptedFetcher) Status(ctx context.Context, url string) (*client.TaskStatus, error) {
	f.mu.Lock()
	f.inflight[url]++
	if f.inflight[url] > 1 {
		f.overlap = true
	}
	n := f.calls[url]
	f.calls[url]++
	results := f.script[url]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight[url]--
		f.mu.Unlock()
	}()

	if len(results) == 0 {
		return &client.TaskStatus{Status: domain.TaskStatusProcessing}, nil
	}
	r := results[min(n, len(results)-1)]
	if r.err != nil {
		return nil, r.err
	}
	st := &client.TaskStatus{Status: r.status}
	if r.msg != "" {
		st.Result = &domain.Result{Message: r.msg}
	}
	return st, nil
}

type outcomes struct {
	mu  sync.Mutex
	all []client.Outcome
}

func (o *outcomes) record(out client.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.all = append(o.all, out)
}

func (o *outcomes) list() []client.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]client.Outcome(nil), o.all...)
}

func newHandle(url string) client.PendingHandle {
	return client.PendingHandle{
		DocumentID: uuid.New(),
		TaskID:     uuid.New(),
		TaskURL:    url,
		TaskType:   domain.TaskTypeSummary,
		CreatedAt:  time.Now().UTC(),
	}
}

type pollerHarness struct {
	fetcher   *scriptedFetcher
	handles   *memoryHandles
	outcomes  *outcomes
	refreshed chan client.PendingHandle
	registry  *client.PollerRegistry
}

func newPollerHarness(t *testing.T, hs ...client.PendingHandle) *pollerHarness {
	t.Helper()
	log, _ := logger.NewTestLogger(t)
	h := &pollerHarness{
		fetcher:   newScriptedFetcher(),
		handles:   newMemoryHandles(hs...),
		outcomes:  &outcomes{},
		refreshed: make(chan client.PendingHandle, 16),
	}
	h.registry = client.NewPollerRegistry(client.RegistryConfig{
		Fetcher:  h.fetcher,
		Handles:  h.handles,
		Interval: testInterval,
		Refresh: func(_ context.Context, ph client.PendingHandle, _ *client.TaskStatus) {
			h.refreshed <- ph
		},
		Notify: h.outcomes.record,
		Logger: log,
	})
	t.Cleanup(h.registry.CancelAll)
	return h
}

func (h *pollerHarness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.registry.Wait(ctx))
}

func TestPollerOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		script      []fetchResult
		wantState   client.PollState
		keepsHandle bool
		refreshes   bool
		check       func(t *testing.T, out client.Outcome)
	}{
		{
			name: "complete resolves and refreshes",
			script: []fetchResult{
				{status: domain.TaskStatusQueued},
				{status: domain.TaskStatusProcessing},
				{status: domain.TaskStatusComplete},
			},
			wantState: client.PollResolved,
			refreshes: true,
		},
		{
			name:      "error surfaces the message",
			script:    []fetchResult{{status: domain.TaskStatusProcessing}, {status: domain.TaskStatusError, msg: "timeout"}},
			wantState: client.PollFailed,
			check: func(t *testing.T, out client.Outcome) {
				var failed *client.TaskFailedError
				require.ErrorAs(t, out.Err, &failed)
				assert.Equal(t, "timeout", failed.Message)
			},
		},
		{
			name:      "404 abandons the handle",
			script:    []fetchResult{{err: fmt.Errorf("%w: 404", client.ErrTaskGone)}},
			wantState: client.PollFailed,
			check: func(t *testing.T, out client.Outcome) {
				assert.ErrorIs(t, out.Err, client.ErrTaskGone)
			},
		},
		{
			name:        "transport failure suspends and keeps the handle",
			script:      []fetchResult{{status: domain.TaskStatusQueued}, {err: fmt.Errorf("%w: refused", client.ErrTransport)}},
			wantState:   client.PollSuspended,
			keepsHandle: true,
			check: func(t *testing.T, out client.Outcome) {
				assert.ErrorIs(t, out.Err, client.ErrTransport)
				assert.Nil(t, out.Status)
			},
		},
		{
			name:        "server error also suspends",
			script:      []fetchResult{{err: &client.StatusError{Code: 503, Message: "unavailable"}}},
			wantState:   client.PollSuspended,
			keepsHandle: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ph := newHandle("/tasks/x/status")
			h := newPollerHarness(t, ph)
			h.fetcher.set(ph.TaskURL, tc.script...)

			h.registry.Watch(context.Background(), ph)
			h.wait(t)

			assert.Equal(t, tc.wantState, h.registry.State(ph.DocumentID))
			assert.Equal(t, tc.keepsHandle, h.handles.has(ph.DocumentID))
			assert.Empty(t, h.registry.Active())

			outs := h.outcomes.list()
			require.Len(t, outs, 1)
			assert.Equal(t, tc.wantState, outs[0].State)
			assert.Equal(t, ph, outs[0].Handle)
			if tc.check != nil {
				tc.check(t, outs[0])
			}

			if tc.refreshes {
				select {
				case got := <-h.refreshed:
					assert.Equal(t, ph.DocumentID, got.DocumentID)
				default:
					t.Fatal("refresh callback not invoked")
				}
			} else {
				assert.Empty(t, h.refreshed)
			}
		})
	}
}

func TestWatchReplacesExistingPoll(t *testing.T) {
	t.Parallel()

	first := newHandle("/tasks/first/status")
	second := first
	second.TaskID = uuid.New()
	second.TaskURL = "/tasks/second/status"

	h := newPollerHarness(t, second)
	h.fetcher.set(second.TaskURL,
		fetchResult{status: domain.TaskStatusProcessing},
		fetchResult{status: domain.TaskStatusComplete})

	h.registry.Watch(context.Background(), first)
	h.registry.Watch(context.Background(), second)

	active := h.registry.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.TaskID, active[0].TaskID)

	h.wait(t)
	outs := h.outcomes.list()
	require.Len(t, outs, 1, "the replaced poll reports nothing")
	assert.Equal(t, second.TaskID, outs[0].Handle.TaskID)
	assert.Equal(t, client.PollResolved, h.registry.State(first.DocumentID))

	calls := h.fetcher.callCount(first.TaskURL)
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, h.fetcher.callCount(first.TaskURL), "replaced poll stopped")
	assert.False(t, h.fetcher.overlap)
}

func TestWatchDifferentDocumentsIndependently(t *testing.T) {
	t.Parallel()

	a, b := newHandle("/tasks/a/status"), newHandle("/tasks/b/status")
	h := newPollerHarness(t, a, b)
	h.fetcher.set(a.TaskURL, fetchResult{status: domain.TaskStatusComplete})
	h.fetcher.set(b.TaskURL, fetchResult{status: domain.TaskStatusError, msg: "boom"})

	h.registry.Watch(context.Background(), a)
	h.registry.Watch(context.Background(), b)
	h.wait(t)

	assert.Equal(t, client.PollResolved, h.registry.State(a.DocumentID))
	assert.Equal(t, client.PollFailed, h.registry.State(b.DocumentID))
	assert.Len(t, h.outcomes.list(), 2)
}

func TestCancelKeepsHandle(t *testing.T) {
	t.Parallel()

	ph := newHandle("/tasks/slow/status")
	h := newPollerHarness(t, ph)

	h.registry.Watch(context.Background(), ph)
	assert.Equal(t, client.PollPolling, h.registry.State(ph.DocumentID))

	h.registry.Cancel(ph.DocumentID)
	calls := h.fetcher.callCount(ph.TaskURL)
	time.Sleep(5 * testInterval)

	assert.Equal(t, calls, h.fetcher.callCount(ph.TaskURL), "no requests after Cancel returns")
	assert.Equal(t, client.PollIdle, h.registry.State(ph.DocumentID))
	assert.True(t, h.handles.has(ph.DocumentID))
	assert.Empty(t, h.outcomes.list())
}

func TestCancelAllAndContextCancel(t *testing.T) {
	t.Parallel()

	a, b := newHandle("/tasks/a/status"), newHandle("/tasks/b/status")
	h := newPollerHarness(t, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	h.registry.Watch(ctx, a)
	h.registry.Watch(context.Background(), b)
	require.Len(t, h.registry.Active(), 2)

	cancel()
	require.Eventually(t, func() bool { return len(h.registry.Active()) == 1 }, waitFor, testInterval)
	assert.Equal(t, client.PollIdle, h.registry.State(a.DocumentID))

	h.registry.CancelAll()
	assert.Empty(t, h.registry.Active())
	assert.Equal(t, client.PollIdle, h.registry.State(b.DocumentID))
	assert.True(t, h.handles.has(a.DocumentID))
	assert.True(t, h.handles.has(b.DocumentID))
}

func TestResume(t *testing.T) {
	t.Parallel()

	done, failed, down := newHandle("/tasks/done/status"), newHandle("/tasks/failed/status"), newHandle("/tasks/down/status")
	h := newPollerHarness(t, done, failed, down)
	h.fetcher.set(done.TaskURL, fetchResult{status: domain.TaskStatusComplete})
	h.fetcher.set(failed.TaskURL, fetchResult{status: domain.TaskStatusError, msg: "interrupted"})
	h.fetcher.set(down.TaskURL, fetchResult{err: client.ErrTransport})

	n, err := h.registry.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	h.wait(t)

	remaining, err := h.handles.List(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, down.DocumentID, remaining[0].DocumentID)
	assert.Equal(t, client.PollSuspended, h.registry.State(down.DocumentID))
}
