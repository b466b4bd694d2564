package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/yungbote/nono-backend/internal/llm"
)

const Name = "mock"

// Gateway answers deterministically without a network. It echoes the last
// "User:" line of the prompt. Models is guarded by an internal lock once the
// gateway is in use.
type Gateway struct {
	EmbeddingDims int
	ChunkSize     int
	Models        []string

	mu     sync.Mutex
	active string
}

func New() *Gateway {
	return &Gateway{EmbeddingDims: 8, ChunkSize: 16, Models: []string{"mock-model"}, active: "mock-model"}
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) HealthCheck(ctx context.Context) bool { return ctx.Err() == nil }

func (g *Gateway) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", llm.Wrap(Name, "generate", err)
	}
	user := lastUserLine(req.Prompt)
	if strings.TrimSpace(user) == "" {
		return "mock: ok", nil
	}
	return fmt.Sprintf("mock: %s", user), nil
}

func lastUserLine(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if rest, ok := strings.CutPrefix(lines[i], "User: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(prompt), "Assistant:"))
}

func (g *Gateway) GenerateStream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	full, err := g.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	chunk := g.ChunkSize
	if chunk <= 0 {
		chunk = 16
	}
	frags := make([]string, 0, len(full)/chunk+1)
	for i := 0; i < len(full); i += chunk {
		end := i + chunk
		if end > len(full) {
			end = len(full)
		}
		frags = append(frags, full[i:end])
	}
	return llm.FromFragments(nil, frags...), nil
}

func (g *Gateway) ListModels(ctx context.Context) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.Models))
	copy(out, g.Models)
	return out
}

func (g *Gateway) Model() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// PullModel adds name to Models.
func (g *Gateway) PullModel(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return llm.Wrap(Name, "pull", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.Models, name) {
		g.Models = append(g.Models, name)
	}
	return nil
}

func (g *Gateway) UseModel(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.Models, name) {
		return llm.Wrap(Name, "use", llm.ErrModelNotFound)
	}
	g.active = name
	return nil
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float64, error) {
	if g.EmbeddingDims <= 0 {
		return nil, llm.Wrap(Name, "embed", llm.ErrNoEmbedding)
	}
	h := sha256.Sum256([]byte(text))
	vec := make([]float64, g.EmbeddingDims)
	for j := 0; j < g.EmbeddingDims; j++ {
		u := binary.LittleEndian.Uint32(h[(j*4)%len(h):])
		vec[j] = float64(u%10_000)/10_000.0 - 0.5
	}
	return vec, nil
}

var (
	_ llm.Gateway      = (*Gateway)(nil)
	_ llm.ModelManager = (*Gateway)(nil)
)
