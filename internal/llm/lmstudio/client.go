package lmstudio

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/llm"
)

const (
	Name = "lmstudio"

	chatCompletionsPath = "/v1/chat/completions"
	embeddingsPath      = "/v1/embeddings"
	modelsPath          = "/v1/models"

	// LM Studio answers with whichever model is loaded when the name is unknown.
	defaultModel = "local-model"
)

// Client talks to an OpenAI-compatible chat completions server.
type Client struct {
	t *llm.Transport

	mu         sync.RWMutex
	model      string
	embedModel string

	healthTimeout   time.Duration
	listTimeout     time.Duration
	generateTimeout time.Duration
	embedTimeout    time.Duration
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
		model = defaultModel
	}
	embedModel := strings.TrimSpace(cfg.EmbedModel)
	if embedModel == "" {
		embedModel = model
	}
	return &Client{
		t:               t,
		model:           model,
		embedModel:      embedModel,
		healthTimeout:   orDefault(cfg.HealthTimeout.Duration, 5*time.Second),
		listTimeout:     orDefault(cfg.ListTimeout.Duration, 10*time.Second),
		generateTimeout: orDefault(cfg.GenerateTimeout.Duration, 120*time.Second),
		embedTimeout:    orDefault(cfg.EmbedTimeout.Duration, 60*time.Second),
		streamTimeout:   cfg.StreamTimeout.Duration,
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (c *Client) Name() string { return Name }

func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.t.Probe(ctx, c.healthTimeout, modelsPath)
}

// ---------------- Text generation (Chat Completions) ----------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
}

type chatCompletionStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) buildRequest(req llm.Request, stream bool) chatCompletionRequest {
	req = llm.Normalize(req)
	msgs := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	return chatCompletionRequest{
		Model:       c.Model(),
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	var resp chatCompletionResponse
	if err := c.t.DoJSON(ctx, c.generateTimeout, http.MethodPost, chatCompletionsPath, c.buildRequest(req, false), &resp); err != nil {
		return "", llm.Wrap(Name, "generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	first := resp.Choices[0]
	if first.Message != nil {
		return strings.TrimSpace(first.Message.Content), nil
	}
	return strings.TrimSpace(first.Text), nil
}

func (c *Client) GenerateStream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	return c.t.OpenStream(ctx, c.streamTimeout, chatCompletionsPath, c.buildRequest(req, true), "text/event-stream", decodeSSELine)
}

// decodeSSELine handles one `data: {json}` line. Anything else, including
// chunks that fail to parse, is skipped. A `data: {"error": ...}` chunk ends
// the stream with that error.
func decodeSSELine(line string) (string, bool, bool, error) {
	data, found := strings.CutPrefix(line, "data:")
	if !found {
		return "", false, false, nil
	}
	data = strings.TrimSpace(data)
	if data == "[DONE]" {
		return "", true, false, nil
	}
	if data == "" {
		return "", false, false, nil
	}
	var chunk chatCompletionStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, false, nil
	}
	if chunk.Error != nil {
		msg := strings.TrimSpace(chunk.Error.Message)
		if msg == "" {
			msg = "unspecified"
		}
		return "", false, false, &llm.UpstreamError{Message: msg}
	}
	if len(chunk.Choices) == 0 {
		return "", false, false, nil
	}
	return chunk.Choices[0].Delta.Content, false, true, nil
}

// ---------------- Models ----------------

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) ListModels(ctx context.Context) []string {
	var resp modelsResponse
	if err := c.t.DoJSON(ctx, c.listTimeout, http.MethodGet, modelsPath, nil, &resp); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		if m.ID != "" {
			out = append(out, m.ID)
		}
	}
	return out
}

// ---------------- Embeddings ----------------

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embeddingsResponse
	if err := c.t.DoJSON(ctx, c.embedTimeout, http.MethodPost, embeddingsPath, embeddingsRequest{Model: c.embedModel, Input: text}, &resp); err != nil {
		return nil, llm.Wrap(Name, "embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, llm.Wrap(Name, "embed", llm.ErrNoEmbedding)
	}
	return resp.Data[0].Embedding, nil
}

// ---------------- Model selection ----------------

func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// PullModel is not available: LM Studio downloads models through its own UI.
func (c *Client) PullModel(ctx context.Context, name string) error {
	return llm.Wrap(Name, "pull", llm.ErrUnsupported)
}

// UseModel switches the model named in requests. The server must already list
// name; loading it into memory is left to LM Studio.
func (c *Client) UseModel(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	for _, m := range c.ListModels(ctx) {
		if m == name {
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
