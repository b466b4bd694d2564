package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/nono-backend/internal/llm"
)

func TestGenerateEchoesLastUserLine(t *testing.T) {
	g := New()
	out, err := g.Generate(context.Background(), llm.Request{Prompt: "User: one\nAssistant: 1\nUser: two\nAssistant:"})
	require.NoError(t, err)
	assert.Equal(t, "mock: two", out)

	g.ChunkSize = 4
	s, err := g.GenerateStream(context.Background(), llm.Request{Prompt: "User: two\nAssistant:"})
	require.NoError(t, err)
	full, err := llm.Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "mock: two", full)
}

func TestModelManagement(t *testing.T) {
	ctx := context.Background()
	g := New()
	assert.Equal(t, "mock-model", g.Model())

	err := g.UseModel(ctx, "tiny")
	assert.True(t, errors.Is(err, llm.ErrModelNotFound), "err=%v", err)
	assert.Equal(t, "mock-model", g.Model())

	require.NoError(t, g.PullModel(ctx, "tiny"))
	require.NoError(t, g.PullModel(ctx, "tiny"))
	assert.Equal(t, []string{"mock-model", "tiny"}, g.ListModels(ctx))

	require.NoError(t, g.UseModel(ctx, "tiny"))
	assert.Equal(t, "tiny", g.Model())
}
