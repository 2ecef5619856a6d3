// Package llamacpp is a toolgram.Engine backed by the llama.cpp HTTP server. Generation runs
// through the /completion endpoint with the registry grammar passed as a GBNF constraint.
package llamacpp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/skosovsky/toolgram"
)

const maxResponseBytes = 4 << 20

// Client talks to one llama.cpp server. It is safe for concurrent use, although the server
// itself usually processes one completion at a time.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	seed   *int
	stop   []string
	apiKey string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client (default: a client with a 5 minute timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithSeed fixes the sampling seed.
func WithSeed(seed int) Option {
	return func(cl *Client) { cl.seed = &seed }
}

// WithStop sets stop sequences.
func WithStop(stop ...string) Option {
	return func(cl *Client) { cl.stop = stop }
}

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(cl *Client) { cl.apiKey = key }
}

// New creates a Client for the server at baseURL, e.g. http://127.0.0.1:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("llamacpp: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("llamacpp: base url %q must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 5 * time.Minute},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ toolgram.Engine = (*Client)(nil)

// Generate runs one non-streaming completion constrained by req.Grammar and returns the
// generated text.
func (c *Client) Generate(ctx context.Context, req toolgram.GenerateRequest) (string, error) {
	body, err := c.completionBody(req)
	if err != nil {
		return "", err
	}
	start := time.Now()
	data, err := c.do(ctx, http.MethodPost, "/completion", body)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(data) {
		return "", errors.New("llamacpp: completion response is not valid JSON")
	}
	content := gjson.GetBytes(data, "content")
	if !content.Exists() {
		return "", errors.New("llamacpp: completion response has no content")
	}
	c.logger.DebugContext(ctx, "completion done",
		"duration", time.Since(start),
		"tokens_predicted", gjson.GetBytes(data, "tokens_predicted").Int(),
		"stop_type", gjson.GetBytes(data, "stop_type").String(),
	)
	return strings.TrimSpace(content.String()), nil
}

// Health reports whether the server is up and has a model loaded.
func (c *Client) Health(ctx context.Context) error {
	data, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if status := gjson.GetBytes(data, "status"); status.Exists() && status.String() != "ok" {
		return fmt.Errorf("llamacpp: server status %q", status.String())
	}
	return nil
}

func (c *Client) completionBody(req toolgram.GenerateRequest) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	set("prompt", req.Prompt)
	if req.Grammar != "" {
		set("grammar", req.Grammar)
	}
	if req.MaxTokens > 0 {
		set("n_predict", req.MaxTokens)
	}
	set("temperature", req.Temperature)
	set("stream", false)
	if c.seed != nil {
		set("seed", *c.seed)
	}
	if len(c.stop) > 0 {
		set("stop", c.stop)
	}
	if err != nil {
		return nil, fmt.Errorf("llamacpp: build request: %w", err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, r)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("llamacpp: read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llamacpp: server returned %d", e.Code)
	}
	return fmt.Sprintf("llamacpp: server returned %d: %s", e.Code, e.Message)
}

func errorMessage(data []byte) string {
	if !gjson.ValidBytes(data) {
		return strings.TrimSpace(string(data))
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return msg.String()
	}
	if msg := gjson.GetBytes(data, "error"); msg.Type == gjson.String {
		return msg.String()
	}
	return ""
}
