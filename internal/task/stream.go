package task

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
)

// Stream runs a pending task synchronously on the caller's context and
// exposes its progress as an event sequence: tokens in the order the
// operation produced them, then exactly one complete or error event.
//
// The sequence can be ranged over once; later iterations yield nothing.
// Stopping the iteration early, or cancelling ctx, cancels the operation
// and records the task as cancelled.
func (e *Executor) Stream(
	ctx context.Context,
	t *domain.Task,
	params map[string]string,
) generation.EventSequence {
	var used atomic.Bool

	return func(yield func(generation.Event) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}

		storeCtx := context.WithoutCancel(ctx)
		log := e.logger.With(
			"task_id", t.ID,
			"task_type", t.Type,
			"document_id", t.DocumentID,
			"mode", "stream",
		)

		started, err := e.tasks.Transition(storeCtx, t.ID, domain.TaskStatusProcessing, nil)
		if err != nil {
			e.logTransitionError(storeCtx, log, t.ID, domain.TaskStatusProcessing, err)
			yield(generation.ErrorEvent(streamStartMessage(err)))
			return
		}
		log.Info("streaming task")

		runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		e.setParams(t.ID, params)
		untrack := e.track(t.ID, cancel)
		defer untrack()

		type outcome struct {
			art generation.Artifact
			err error
		}

		tokens := make(chan string)
		done := make(chan outcome, 1)
		go func() {
			art, err := e.run(runCtx, started, func(token string) {
				select {
				case tokens <- token:
				case <-runCtx.Done():
				}
			})
			done <- outcome{art: art, err: err}
		}()

		for {
			select {
			case token := <-tokens:
				if !yield(generation.TokenEvent(token)) {
					cancel()
					<-done
					log.Debug("stream consumer stopped early")
					e.finish(storeCtx, log, started, generation.Artifact{}, context.Canceled, runCtx)
					return
				}
			case out := <-done:
				final := e.finish(storeCtx, log, started, out.art, out.err, runCtx)
				yield(terminalEvent(final))
				return
			}
		}
	}
}

// terminalEvent maps a finished task to the event that closes its stream.
func terminalEvent(t *domain.Task) generation.Event {
	switch {
	case t == nil || t.Result == nil:
		return generation.ErrorEvent("")
	case t.Status == domain.TaskStatusComplete:
		return generation.CompleteEvent(t.ID)
	default:
		return generation.ErrorEvent(t.Result.Message)
	}
}

func streamStartMessage(err error) string {
	if errors.Is(err, domain.ErrAlreadyTerminal) || errors.Is(err, domain.ErrInvalidTransition) {
		return domain.MessageSuperseded
	}
	return "failed to start task"
}
