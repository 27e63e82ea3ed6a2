package gemini

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/phrazzld/audiopaper-api/internal/generation"
	"google.golang.org/genai"
)

// textStreamer produces text chunks for a prompt.
type textStreamer interface {
	StreamText(ctx context.Context, model, system, prompt string) iter.Seq2[string, error]
}

// speechSynthesizer turns text into raw 16-bit PCM audio.
type speechSynthesizer interface {
	Synthesize(ctx context.Context, model, voice, text string) ([]byte, error)
}

// Client adapts *genai.Client to the narrow interfaces the operations use.
type Client struct {
	models *genai.Models
}

// NewClient creates a Gemini API client.
//
// Parameters:
//   - ctx: Context for initialization
//   - apiKey: The Gemini API key
//
// Returns:
//   - A ready Client or an error wrapping generation.ErrInvalidConfig
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &Client{models: client.Models}, nil
}

// StreamText streams the model's answer to prompt as text chunks. Chunks that
// carry no text are skipped; a safety stop ends the sequence with
// generation.ErrContentBlocked.
func (c *Client) StreamText(ctx context.Context, model, system, prompt string) iter.Seq2[string, error] {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	return func(yield func(string, error) bool) {
		for resp, err := range c.models.GenerateContentStream(ctx, model, genai.Text(prompt), cfg) {
			if err != nil {
				yield("", err)
				return
			}
			text, err := responseText(resp)
			if err != nil {
				yield("", err)
				return
			}
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// Synthesize requests single-voice speech for text and returns the PCM bytes.
func (c *Client) Synthesize(ctx context.Context, model, voice, text string) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := c.models.GenerateContent(ctx, model, genai.Text(text), cfg)
	if err != nil {
		return nil, err
	}
	if err := checkCandidate(resp); err != nil {
		return nil, err
	}

	var pcm []byte
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil {
			pcm = append(pcm, part.InlineData.Data...)
		}
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: no audio data in response", generation.ErrInvalidResponse)
	}
	return pcm, nil
}

func checkCandidate(resp *genai.GenerateContentResponse) error {
	switch {
	case resp == nil:
		return fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	case len(resp.Candidates) == 0:
		return fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	case resp.Candidates[0].Content == nil:
		return fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", nil
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if cand.Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
