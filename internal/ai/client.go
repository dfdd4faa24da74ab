package ai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/config"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const systemPrompt = `You are an exam coach. You receive a JSON summary of one student's test attempt
with per-topic accuracy and timing. Reply with a single JSON object of the form
{"weak_topics":[{"topic":"","priority":"high|medium|low","accuracy":0,"reason":""}],
 "time_recommendations":[""],"predicted_band":"","overall_suggestions":[""]}.
Only list topics that appear in the input. Do not add any text outside the JSON object.`

// Cache is the bounded, expiring store of analysis responses keyed by prompt digest.
type Cache = expirable.LRU[string, *model.Analysis]

// NewCache builds a response cache holding at most size entries for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 100
	}
	return expirable.NewLRU[string, *model.Analysis](size, nil, ttl)
}

// HTTPError is a non-2xx reply from the chat completions endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("ai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client calls an OpenAI-compatible chat completions API to analyze attempts.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
	maxRetries int
	tracer     trace.Tracer
	log        zerolog.Logger
}

// NewClient creates a Client. cache may be shared between clients.
func NewClient(cfg *config.Config, cache *Cache, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    cfg.AIBaseURL,
		apiKey:     cfg.AIAPIKey,
		model:      cfg.AIModel,
		httpClient: &http.Client{Timeout: cfg.AITimeout},
		cache:      cache,
		maxRetries: 2,
		tracer:     otel.Tracer("github.com/rurallearn/rurallearn-backend/internal/ai"),
		log:        log.With().Str("component", "ai_client").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze returns the model's report for an attempt. Identical inputs are
// served from the cache until their entry expires.
func (c *Client) Analyze(ctx context.Context, in model.AnalysisInput) (*model.Analysis, error) {
	prompt, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}
	sum := sha256.Sum256(append([]byte(c.model+"\x00"), prompt...))
	key := hex.EncodeToString(sum[:])

	if cached, ok := c.cache.Get(key); ok {
		c.log.Debug().Str("key", key[:12]).Msg("AI cache hit")
		return cached, nil
	}

	ctx, span := c.tracer.Start(ctx, "ai.analyze_attempt",
		trace.WithAttributes(attribute.String("ai.model", c.model)))
	defer span.End()

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(prompt)},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]any{"type": "json_object"},
	}

	var resp chatResponse
	if err := c.do(ctx, "/v1/chat/completions", req, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("ai response has no choices")
	}

	var analysis model.Analysis
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if analysis.WeakTopics == nil {
		return nil, errors.New("invalid analysis structure: missing weak_topics")
	}

	c.cache.Add(key, &analysis)
	return &analysis, nil
}

func (c *Client) do(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	backoff := time.Second
	for attempt := 0; ; attempt++ {
		err = c.doOnce(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !httpErr.retryable() || attempt >= c.maxRetries {
			return err
		}

		c.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("sleep", backoff).
			Msg("AI request retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (c *Client) doOnce(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode ai response: %w", err)
	}
	return nil
}
