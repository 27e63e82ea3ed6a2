package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/audiopaper-api/internal/config"
	"github.com/phrazzld/audiopaper-api/internal/generation"
)

// TextOperation streams a summary or a narration script from the model.
type TextOperation struct {
	logger   *slog.Logger
	streamer textStreamer
	model    string
	retry    retryPolicy
	kind     textKind
}

type textKind int

const (
	kindSummary textKind = iota
	kindScript
)

var _ generation.Operation = (*TextOperation)(nil)

// NewSummaryOperation creates the summary operation.
//
// Parameters:
//   - logger: A structured logger for operation logging
//   - streamer: The Gemini client (or a test double)
//   - cfg: LLM configuration providing the model name and retry settings
//
// Returns:
//   - A TextOperation that summarizes the document text
func NewSummaryOperation(logger *slog.Logger, streamer textStreamer, cfg config.LLMConfig) *TextOperation {
	return newTextOperation(logger, streamer, cfg, kindSummary)
}

// NewScriptOperation creates the narration script operation. It reads the
// document summary and the optional "length" parameter.
func NewScriptOperation(logger *slog.Logger, streamer textStreamer, cfg config.LLMConfig) *TextOperation {
	return newTextOperation(logger, streamer, cfg, kindScript)
}

func newTextOperation(logger *slog.Logger, streamer textStreamer, cfg config.LLMConfig, kind textKind) *TextOperation {
	name := "summary"
	if kind == kindScript {
		name = "script"
	}
	return &TextOperation{
		logger:   logger.With("component", "gemini", "operation", name),
		streamer: streamer,
		model:    cfg.ModelName,
		retry:    retryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseRetryDelay},
		kind:     kind,
	}
}

// Invoke implements generation.Operation.
func (o *TextOperation) Invoke(
	ctx context.Context,
	in generation.Input,
	emit generation.EmitFunc,
) (generation.Artifact, error) {
	system, prompt, err := o.prompt(in)
	if err != nil {
		return generation.Artifact{}, err
	}

	o.logger.DebugContext(ctx, "Prompt generated successfully",
		"task_id", in.TaskID.String(),
		"prompt_length", len(prompt))

	var out strings.Builder
	emitted := false
	err = withRetry(ctx, o.logger, o.retry,
		func() bool { return !emitted },
		func(ctx context.Context) error {
			for chunk, err := range o.streamer.StreamText(ctx, o.model, system, prompt) {
				if err != nil {
					return err
				}
				emitted = true
				out.WriteString(chunk)
				if emit != nil {
					emit(chunk)
				}
			}
			return ctx.Err()
		})
	if err != nil {
		return generation.Artifact{}, err
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return generation.Artifact{}, fmt.Errorf("%w: model returned no text", generation.ErrInvalidResponse)
	}

	o.logger.InfoContext(ctx, "Gemini generation successful",
		"task_id", in.TaskID.String(),
		"output_length", len(text))
	return generation.Artifact{Content: text}, nil
}

func (o *TextOperation) prompt(in generation.Input) (string, string, error) {
	doc := in.Document
	if strings.TrimSpace(doc.Text) == "" {
		return "", "", ErrEmptyDocumentText
	}

	switch o.kind {
	case kindScript:
		length := in.Param(generation.ParamLength, generation.LengthMedium)
		guide, ok := lengthGuides[length]
		if !ok {
			return "", "", fmt.Errorf("%w: unknown length %q", generation.ErrInvalidParams, length)
		}
		prompt, err := renderPrompt(scriptTemplate, promptData{
			Filename:    doc.Filename,
			Text:        doc.Text,
			Summary:     doc.Summary,
			LengthGuide: guide,
		})
		return scriptSystem, prompt, err
	default:
		prompt, err := renderPrompt(summaryTemplate, promptData{Filename: doc.Filename, Text: doc.Text})
		return summarySystem, prompt, err
	}
}
