package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// TaskAPI is the part of APIClient the Launcher needs.
type TaskAPI interface {
	StatusFetcher
	Launch(ctx context.Context, documentID uuid.UUID, taskType domain.TaskType, opts LaunchOptions) (*LaunchResult, error)
	Retry(ctx context.Context, taskID uuid.UUID) error
	StatusURL(taskID uuid.UUID) string
}

// Launcher starts tasks and hands them to the PollerRegistry. A handle is
// persisted before polling starts so a crash right after launch is still
// resumable.
type Launcher struct {
	api      TaskAPI
	handles  HandleStore
	registry *PollerRegistry
	now      func() time.Time
}

// NewLauncher creates a Launcher.
func NewLauncher(api TaskAPI, handles HandleStore, registry *PollerRegistry) *Launcher {
	return &Launcher{api: api, handles: handles, registry: registry, now: time.Now}
}

// Launch starts a task of taskType for the document and watches it.
func (l *Launcher) Launch(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
	opts LaunchOptions,
) (PendingHandle, error) {
	res, err := l.api.Launch(ctx, documentID, taskType, opts)
	if err != nil {
		return PendingHandle{}, fmt.Errorf("launch %s: %w", taskType, err)
	}

	h := PendingHandle{
		DocumentID: documentID,
		TaskID:     res.TaskID,
		TaskURL:    res.StatusURL,
		TaskType:   taskType,
		CreatedAt:  l.now().UTC(),
	}
	return h, l.track(ctx, h)
}

// Retry re-queues an errored task and watches it again under its own id.
func (l *Launcher) Retry(ctx context.Context, taskID uuid.UUID) (PendingHandle, error) {
	statusURL := l.api.StatusURL(taskID)
	status, err := l.api.Status(ctx, statusURL)
	if err != nil {
		return PendingHandle{}, fmt.Errorf("look up task: %w", err)
	}
	if err := l.api.Retry(ctx, taskID); err != nil {
		return PendingHandle{}, fmt.Errorf("retry task: %w", err)
	}

	h := PendingHandle{
		DocumentID: status.DocumentID,
		TaskID:     taskID,
		TaskURL:    statusURL,
		TaskType:   status.TaskType,
		CreatedAt:  l.now().UTC(),
	}
	return h, l.track(ctx, h)
}

func (l *Launcher) track(ctx context.Context, h PendingHandle) error {
	if err := l.handles.Save(ctx, h); err != nil {
		return fmt.Errorf("persist pending handle: %w", err)
	}
	l.registry.Watch(ctx, h)
	return nil
}
