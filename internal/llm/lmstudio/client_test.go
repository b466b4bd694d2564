package lmstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/yungbote/nono-backend/internal/config"
	"github.com/yungbote/nono-backend/internal/llm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		Backend:         "lmstudio",
		BaseURL:         "http://upstream",
		Model:           "upstream-model",
		EmbedModel:      "embed-model",
		GenerateTimeout: config.Duration{Duration: 2 * time.Second},
	}
}

func jsonResponse(status int, v any) *http.Response {
	b, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(b)),
	}
}

func newClient(t *testing.T, cfg config.LLMConfig, fn roundTripperFunc) *Client {
	t.Helper()
	c, err := NewWithHTTPClient(cfg, &http.Client{Transport: fn})
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	return c
}

func TestGenerate(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "sk-test"
	c := newClient(t, cfg, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("authorization=%q", got)
		}

		var in chatCompletionRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Fatalf("decode req: %v", err)
		}
		if in.Model != "upstream-model" || in.Stream {
			t.Fatalf("req=%+v", in)
		}
		if len(in.Messages) != 2 || in.Messages[0].Role != "system" || in.Messages[1].Content != "User: hi\nAssistant:" {
			t.Fatalf("messages=%+v", in.Messages)
		}
		if in.Temperature != 0.3 || in.MaxTokens != 64 {
			t.Fatalf("sampling=%v/%d", in.Temperature, in.MaxTokens)
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "  hello!  "}}},
		}), nil
	})

	out, err := c.Generate(context.Background(), llm.Request{
		Prompt:      "User: hi\nAssistant:",
		System:      "be kind",
		Temperature: 0.3,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "hello!" {
		t.Fatalf("out=%q", out)
	}
}

func TestGenerateNoSystemMessage(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		var in chatCompletionRequest
		_ = json.NewDecoder(req.Body).Decode(&in)
		if len(in.Messages) != 1 || in.Messages[0].Role != "user" {
			t.Fatalf("messages=%+v", in.Messages)
		}
		if in.Temperature != llm.DefaultTemperature || in.MaxTokens != llm.DefaultMaxTokens {
			t.Fatalf("defaults not applied: %+v", in)
		}
		return jsonResponse(http.StatusOK, map[string]any{"choices": []any{}}), nil
	})

	out, err := c.Generate(context.Background(), llm.Request{Prompt: "hi", Temperature: -1})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "" {
		t.Fatalf("empty choices should yield empty text, got %q", out)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       io.NopCloser(strings.NewReader("no model loaded")),
		}, nil
	})

	_, err := c.Generate(context.Background(), llm.Request{Prompt: "hi"})
	var ge *llm.Error
	if !errors.As(err, &ge) || ge.Op != "generate" || ge.Backend != Name {
		t.Fatalf("err=%v", err)
	}
	var he *llm.HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusServiceUnavailable || he.Body != "no model loaded" {
		t.Fatalf("http err=%v", err)
	}
}

func TestGenerateTransportError(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	_, err := c.Generate(context.Background(), llm.Request{Prompt: "hi"})
	var ge *llm.Error
	if !errors.As(err, &ge) {
		t.Fatalf("err=%v", err)
	}
}

func sseBody(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func TestGenerateStreamSkipsMalformedChunk(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Accept") != "text/event-stream" {
			t.Fatalf("accept=%q", req.Header.Get("Accept"))
		}
		var in chatCompletionRequest
		_ = json.NewDecoder(req.Body).Decode(&in)
		if !in.Stream {
			t.Fatalf("expected stream=true")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
			Body: sseBody(
				`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
				``,
				`data: {"choices":[{"delta":{"content":`,
				``,
				`data: [DONE]`,
				`data: {"choices":[{"delta":{"content":"after done"}}]}`,
			),
		}, nil
	})

	s, err := c.GenerateStream(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	var frags []string
	for s.Next() {
		frags = append(frags, s.Text())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(frags) != 1 || frags[0] != "Hel" {
		t.Fatalf("frags=%v", frags)
	}
}

func TestGenerateStreamRoleOnlyChunkIsNotAFragment(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body: sseBody(
				`: keep-alive`,
				`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
				`data: {"choices":[{"delta":{"content":"a"}}]}`,
				`data: {"choices":[{"delta":{"content":"b"}}]}`,
			),
		}, nil
	})

	s, err := c.GenerateStream(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	full, err := llm.Collect(s)
	if err != nil || full != "ab" {
		t.Fatalf("full=%q err=%v", full, err)
	}
}

func TestGenerateStreamErrorChunkFailsStream(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body: sseBody(
				`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
				`data: {"error":{"message":"model crashed"}}`,
				`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			),
		}, nil
	})

	s, err := c.GenerateStream(context.Background(), llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	full, err := llm.Collect(s)
	if full != "Hel" {
		t.Fatalf("full=%q", full)
	}
	var ge *llm.Error
	if !errors.As(err, &ge) || ge.Backend != Name || ge.Op != "stream" {
		t.Fatalf("err=%v, want *llm.Error", err)
	}
	var ue *llm.UpstreamError
	if !errors.As(err, &ue) || ue.Message != "model crashed" {
		t.Fatalf("err=%v", err)
	}
}

func TestGenerateStreamHTTPError(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader("bad"))}, nil
	})
	_, err := c.GenerateStream(context.Background(), llm.Request{Prompt: "hi"})
	var he *llm.HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		t.Fatalf("err=%v", err)
	}
}

func TestGenerateStreamCancelReleasesConnection(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()

	cfg := testConfig()
	cfg.BaseURL = srv.URL
	c := newClient(t, cfg, tr.RoundTrip)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := c.GenerateStream(ctx, llm.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if !s.Next() || s.Text() != "first" {
		t.Fatalf("expected first fragment, err=%v", s.Err())
	}

	cancel()
	if s.Next() {
		t.Fatalf("expected stream to stop after cancel")
	}
	var ge *llm.Error
	if !errors.As(s.Err(), &ge) || ge.Op != "stream" {
		t.Fatalf("Err=%v, want stream *llm.Error", s.Err())
	}
}

func TestListModels(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodGet || req.URL.Path != "/v1/models" {
			t.Fatalf("unexpected %s %s", req.Method, req.URL.Path)
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"data": []any{map[string]any{"id": "llama-3"}, map[string]any{"id": ""}, map[string]any{"id": "qwen"}},
		}), nil
	})
	got := c.ListModels(context.Background())
	if strings.Join(got, ",") != "llama-3,qwen" {
		t.Fatalf("models=%v", got)
	}

	down := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("refused")
	})
	if got := down.ListModels(context.Background()); got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil, got %#v", got)
	}
}

func TestHealthCheck(t *testing.T) {
	up := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, map[string]any{"data": []any{}}), nil
	})
	if !up.HealthCheck(context.Background()) {
		t.Fatalf("expected healthy")
	}
	down := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("refused")
	})
	if down.HealthCheck(context.Background()) {
		t.Fatalf("expected unhealthy")
	}
	sick := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, map[string]any{}), nil
	})
	if sick.HealthCheck(context.Background()) {
		t.Fatalf("expected unhealthy on 500")
	}
}

func TestEmbed(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		var in embeddingsRequest
		_ = json.NewDecoder(req.Body).Decode(&in)
		if req.URL.Path != "/v1/embeddings" || in.Model != "embed-model" || in.Input != "hello" {
			t.Fatalf("req path=%s body=%+v", req.URL.Path, in)
		}
		return jsonResponse(http.StatusOK, map[string]any{
			"data": []any{map[string]any{"embedding": []float64{0.1, 0.2}}},
		}), nil
	})
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.2 {
		t.Fatalf("vec=%v", vec)
	}

	empty := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, map[string]any{"data": []any{}}), nil
	})
	if _, err := empty.Embed(context.Background(), "hello"); !errors.Is(err, llm.ErrNoEmbedding) {
		t.Fatalf("err=%v", err)
	}
}

func TestPullModelUnsupported(t *testing.T) {
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected, got %s", req.URL.Path)
		return nil, nil
	})
	err := c.PullModel(context.Background(), "llama3")
	if !errors.Is(err, llm.ErrUnsupported) {
		t.Fatalf("err=%v", err)
	}
}

func TestUseModel(t *testing.T) {
	var requested []string
	c := newClient(t, testConfig(), func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/v1/models":
			return jsonResponse(http.StatusOK, map[string]any{"data": []map[string]string{{"id": "upstream-model"}, {"id": "qwen2-7b"}}}), nil
		case "/v1/chat/completions":
			var in chatCompletionRequest
			_ = json.NewDecoder(req.Body).Decode(&in)
			requested = append(requested, in.Model)
			return jsonResponse(http.StatusOK, map[string]any{"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}}}), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})
	ctx := context.Background()

	if err := c.UseModel(ctx, "missing"); !errors.Is(err, llm.ErrModelNotFound) {
		t.Fatalf("err=%v", err)
	}
	if c.Model() != "upstream-model" {
		t.Fatalf("model=%q", c.Model())
	}
	if err := c.UseModel(ctx, "qwen2-7b"); err != nil {
		t.Fatalf("UseModel: %v", err)
	}
	if _, err := c.Generate(ctx, llm.Request{Prompt: "hi"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(requested) != 1 || requested[0] != "qwen2-7b" {
		t.Fatalf("requested=%v", requested)
	}
}
