package ragflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/phrazzld/audiopaper-api/internal/config"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/sethvargo/go-retry"
)

// Chunk is one parsed piece of a Ragflow document.
type Chunk struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	ChunkOrder int    `json:"chunk_order"`
}

type chunksResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Chunks []Chunk `json:"chunks"`
		Total  int     `json:"total"`
	} `json:"data"`
}

// Client talks to the Ragflow HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	maxRetries int
	baseDelay  time.Duration
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.RagflowConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: ragflow url and api key are required", generation.ErrInvalidConfig)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		pageSize:   pageSize,
		maxRetries: cfg.MaxRetries,
		baseDelay:  500 * time.Millisecond,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "ragflow"),
	}, nil
}

// statusError is a non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ragflow returned HTTP %d: %s", e.code, e.body)
}

// Chunks returns every chunk of the document across all pages, sorted by
// chunk_order.
func (c *Client) Chunks(ctx context.Context, datasetID, documentID string) ([]Chunk, error) {
	var all []Chunk
	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, datasetID, documentID, page)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Data.Chunks...)
		if len(resp.Data.Chunks) == 0 || page*c.pageSize >= resp.Data.Total {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].ChunkOrder < all[j].ChunkOrder })
	return all, nil
}

// DocumentContent returns the document text: non-empty chunk contents joined
// by blank lines.
func (c *Client) DocumentContent(ctx context.Context, datasetID, documentID string) (string, error) {
	chunks, err := c.Chunks(ctx, datasetID, documentID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Content != "" {
			parts = append(parts, ch.Content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (c *Client) fetchPage(ctx context.Context, datasetID, documentID string, page int) (*chunksResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/datasets/%s/documents/%s/chunks?%s",
		c.baseURL,
		url.PathEscape(datasetID),
		url.PathEscape(documentID),
		url.Values{"page": {fmt.Sprint(page)}, "size": {fmt.Sprint(c.pageSize)}}.Encode(),
	)

	backoff := retry.WithMaxRetries(uint64(max(c.maxRetries, 0)), retry.NewExponential(c.baseDelay))

	var out *chunksResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.get(ctx, endpoint)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests {
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			c.logger.WarnContext(ctx, "ragflow request failed, retrying",
				"page", page,
				"error", err)
			return retry.RetryableError(err)
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*chunksResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var out chunksResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("%w: ragflow code %d: %s", generation.ErrInvalidResponse, out.Code, out.Message)
	}
	return &out, nil
}
