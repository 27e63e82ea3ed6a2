package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/phrazzld/audiopaper-api/internal/config"
	"github.com/phrazzld/audiopaper-api/internal/generation"
)

// Speaker prefixes used in narration scripts.
const (
	speakerHost   = "HOST"
	speakerExpert = "EXPERT"
)

type turn struct {
	speaker string
	text    string
}

// parseScript splits a script into speaker turns. Lines without a known
// prefix continue the previous turn; leading unprefixed lines go to the host.
func parseScript(script string) []turn {
	var turns []turn
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		speaker, text, ok := splitSpeaker(line)
		if !ok {
			if len(turns) > 0 {
				turns[len(turns)-1].text += " " + line
				continue
			}
			speaker, text = speakerHost, line
		}
		if text == "" {
			continue
		}
		turns = append(turns, turn{speaker: speaker, text: text})
	}
	return turns
}

func splitSpeaker(line string) (string, string, bool) {
	head, rest, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	head = strings.ToUpper(strings.Trim(strings.TrimSpace(head), "*"))
	switch head {
	case speakerHost, speakerExpert:
		return head, strings.TrimSpace(rest), true
	default:
		return "", "", false
	}
}

// AudioOperation synthesizes a narration script into a WAV file.
type AudioOperation struct {
	logger      *slog.Logger
	synth       speechSynthesizer
	model       string
	hostVoice   string
	expertVoice string
	audioDir    string
	retry       retryPolicy
}

var _ generation.Operation = (*AudioOperation)(nil)

// NewAudioOperation creates the audio operation.
//
// Parameters:
//   - logger: A structured logger for operation logging
//   - synth: The Gemini client (or a test double)
//   - cfg: LLM configuration providing the TTS model and default voices
//   - audioDir: Directory where WAV files are written
//
// Returns:
//   - An AudioOperation whose artifact is the path of the written file
func NewAudioOperation(
	logger *slog.Logger,
	synth speechSynthesizer,
	cfg config.LLMConfig,
	audioDir string,
) *AudioOperation {
	return &AudioOperation{
		logger:      logger.With("component", "gemini", "operation", "audio"),
		synth:       synth,
		model:       cfg.TTSModelName,
		hostVoice:   cfg.HostVoice,
		expertVoice: cfg.ExpertVoice,
		audioDir:    audioDir,
		retry:       retryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseRetryDelay},
	}
}

// Invoke implements generation.Operation.
func (o *AudioOperation) Invoke(
	ctx context.Context,
	in generation.Input,
	emit generation.EmitFunc,
) (generation.Artifact, error) {
	turns := parseScript(in.Document.Script)
	if len(turns) == 0 {
		return generation.Artifact{}, ErrEmptyScript
	}

	voices := map[string]string{
		speakerHost:   in.Param(generation.ParamHostVoice, o.hostVoice),
		speakerExpert: in.Param(generation.ParamExpertVoice, o.expertVoice),
	}

	var pcm []byte
	for i, t := range turns {
		var chunk []byte
		err := withRetry(ctx, o.logger, o.retry, nil, func(ctx context.Context) error {
			var err error
			chunk, err = o.synth.Synthesize(ctx, o.model, voices[t.speaker], t.text)
			return err
		})
		if err != nil {
			return generation.Artifact{}, fmt.Errorf("turn %d of %d: %w", i+1, len(turns), err)
		}
		pcm = append(pcm, chunk...)
		o.logger.DebugContext(ctx, "synthesized turn",
			"task_id", in.TaskID.String(),
			"turn", i+1,
			"speaker", t.speaker,
			"bytes", len(chunk))
	}

	if err := os.MkdirAll(o.audioDir, 0o755); err != nil {
		return generation.Artifact{}, fmt.Errorf("failed to create audio directory: %w", err)
	}
	path := filepath.Join(o.audioDir, fmt.Sprintf("%s-%s.wav", in.Document.ID, in.TaskID))
	if err := writeWAV(path, pcm); err != nil {
		return generation.Artifact{}, err
	}

	o.logger.InfoContext(ctx, "audio written",
		"task_id", in.TaskID.String(),
		"path", path,
		"turns", len(turns))
	return generation.Artifact{Content: path, Ref: path}, nil
}
