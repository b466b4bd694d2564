package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/llm"
)

const (
	Name = "ollama"

	generatePath = "/api/generate"
	embedPath    = "/api/embed"
	tagsPath     = "/api/tags"
	pullPath     = "/api/pull"
)

// Client talks to Ollama's native single-prompt API.
type Client struct {
	t *llm.Transport

	mu         sync.RWMutex
	model      string
	embedModel string

	healthTimeout   time.Duration
	listTimeout     time.Duration
	generateTimeout time.Duration
	embedTimeout    time.Duration
	pullTimeout     time.Duration
	streamTimeout   time.Duration
}

func New(cfg config.LLMConfig) (*Client, error) {
	return NewWithHTTPClient(cfg, nil)
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.LLMConfig, httpClient *http.Client) (*Client, error) {
	t, err := llm.NewTransport(Name, cfg.BaseURL, cfg.APIKey, httpClient)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama2"
	}
	embedModel := strings.TrimSpace(cfg.EmbedModel)
	if embedModel == "" {
		embedModel = model
	}
	c := &Client{
		t:               t,
		model:           model,
		embedModel:      embedModel,
		healthTimeout:   cfg.HealthTimeout.Duration,
		listTimeout:     cfg.ListTimeout.Duration,
		generateTimeout: cfg.GenerateTimeout.Duration,
		embedTimeout:    cfg.EmbedTimeout.Duration,
		pullTimeout:     cfg.PullTimeout.Duration,
		streamTimeout:   cfg.StreamTimeout.Duration,
	}
	if c.healthTimeout <= 0 {
		c.healthTimeout = 5 * time.Second
	}
	if c.listTimeout <= 0 {
		c.listTimeout = 10 * time.Second
	}
	if c.generateTimeout <= 0 {
		c.generateTimeout = 120 * time.Second
	}
	if c.embedTimeout <= 0 {
		c.embedTimeout = 60 * time.Second
	}
	if c.pullTimeout <= 0 {
		c.pullTimeout = 300 * time.Second
	}
	return c, nil
}

func (c *Client) Name() string { return Name }

func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.t.Probe(ctx, c.healthTimeout, tagsPath)
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) buildRequest(req llm.Request, stream bool) generateRequest {
	req = llm.Normalize(req)
	return generateRequest{
		Model:  c.Model(),
		Prompt: req.Prompt,
		System: strings.TrimSpace(req.System),
		Stream: stream,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	var resp generateResponse
	if err := c.t.DoJSON(ctx, c.generateTimeout, http.MethodPost, generatePath, c.buildRequest(req, false), &resp); err != nil {
		return "", llm.Wrap(Name, "generate", err)
	}
	return strings.TrimSpace(resp.Response), nil
}

func (c *Client) GenerateStream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	return c.t.OpenStream(ctx, c.streamTimeout, generatePath, c.buildRequest(req, true), "application/x-ndjson", decodeNDJSONLine)
}

// decodeNDJSONLine handles one bare JSON object per line. The stream ends at
// `"done": true` or when the server closes the body; an `"error"` line fails it.
func decodeNDJSONLine(line string) (string, bool, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false, false, nil
	}
	var chunk generateResponse
	if err := json.Unmarshal([]byte(line), &chunk); err != nil {
		return "", false, false, nil
	}
	if msg := strings.TrimSpace(chunk.Error); msg != "" {
		return "", false, false, &llm.UpstreamError{Message: msg}
	}
	return chunk.Response, chunk.Done, true, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (c *Client) ListModels(ctx context.Context) []string {
	var resp tagsResponse
	if err := c.t.DoJSON(ctx, c.listTimeout, http.MethodGet, tagsPath, nil, &resp); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.Name != "" {
			out = append(out, m.Name)
		}
	}
	return out
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embedResponse
	if err := c.t.DoJSON(ctx, c.embedTimeout, http.MethodPost, embedPath, embedRequest{Model: c.embedModel, Input: text}, &resp); err != nil {
		return nil, llm.Wrap(Name, "embed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, llm.Wrap(Name, "embed", llm.ErrNoEmbedding)
	}
	return resp.Embeddings[0], nil
}

func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

type pullRequest struct {
	Model  string `json:"model"`
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

type pullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PullModel blocks until the server has fetched name, bounded by the pull
// timeout.
func (c *Client) PullModel(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	var resp pullResponse
	if err := c.t.DoJSON(ctx, c.pullTimeout, http.MethodPost, pullPath, pullRequest{Model: name, Name: name}, &resp); err != nil {
		return llm.Wrap(Name, "pull", err)
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		return llm.Wrap(Name, "pull", &llm.UpstreamError{Message: msg})
	}
	if resp.Status != "success" {
		return llm.Wrap(Name, "pull", &llm.UpstreamError{Message: "pull ended with status " + strconv.Quote(resp.Status)})
	}
	return nil
}

// UseModel accepts name or its ":latest" tag as listed by /api/tags.
func (c *Client) UseModel(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	for _, m := range c.ListModels(ctx) {
		if m == name || (!strings.Contains(name, ":") && m == name+":latest") {
			c.mu.Lock()
			c.model = name
			c.mu.Unlock()
			return nil
		}
	}
	return llm.Wrap(Name, "use", llm.ErrModelNotFound)
}

var (
	_ llm.Gateway      = (*Client)(nil)
	_ llm.ModelManager = (*Client)(nil)
)
