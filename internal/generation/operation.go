package generation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// Input carries everything an operation needs. Document is a snapshot taken
// when the task started running.
type Input struct {
	TaskID   uuid.UUID
	Document domain.Document
	Params   map[string]string
}

// Param returns the named parameter or def when it is unset.
func (in Input) Param(name, def string) string {
	if v, ok := in.Params[name]; ok && v != "" {
		return v
	}
	return def
}

// Artifact is the output of a successful operation. Content is what gets
// stored on the document; Ref, when set, is what the task result points at
// instead of the content itself (a file path, an upstream reference).
type Artifact struct {
	Content string
	Ref     string
}

// ResultRef returns the value recorded in the task result.
func (a Artifact) ResultRef() string {
	if a.Ref != "" {
		return a.Ref
	}
	return a.Content
}

// EmitFunc receives partial tokens in the order they are produced.
type EmitFunc func(token string)

// Operation runs one generation call. It must honour ctx cancellation and
// must not call emit after returning.
type Operation interface {
	Invoke(ctx context.Context, in Input, emit EmitFunc) (Artifact, error)
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context, in Input, emit EmitFunc) (Artifact, error)

// Invoke implements Operation.
func (f OperationFunc) Invoke(ctx context.Context, in Input, emit EmitFunc) (Artifact, error) {
	return f(ctx, in, emit)
}

// Registry maps task types to operations.
type Registry struct {
	mu  sync.RWMutex
	ops map[domain.TaskType]Operation
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[domain.TaskType]Operation)}
}

// Register binds op to taskType, replacing any earlier binding.
func (r *Registry) Register(taskType domain.TaskType, op Operation) error {
	if _, err := domain.LookupTaskType(taskType); err != nil {
		return err
	}
	if op == nil {
		return fmt.Errorf("%w: nil operation for %s", ErrInvalidConfig, taskType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[taskType] = op
	return nil
}

// Lookup returns the operation for taskType or ErrNoOperation.
func (r *Registry) Lookup(taskType domain.TaskType) (Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOperation, taskType)
	}
	return op, nil
}

// Registered lists the task types that have an operation, sorted.
func (r *Registry) Registered() []domain.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TaskType, 0, len(r.ops))
	for t := range r.ops {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
