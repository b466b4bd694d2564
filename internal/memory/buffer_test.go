package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/nono-backend/internal/platform/logger"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newBuffer(t *testing.T, rdb goredis.Cmdable, addr Address, max int) *Buffer {
	t.Helper()
	b, err := New(rdb, addr, max, logger.Nop())
	require.NoError(t, err)
	return b
}

func contents(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Role)+":"+m.Content)
	}
	return out
}

func TestAppendTrimsOldestFirst(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)

	for _, tc := range []struct{ capacity, n int }{{1, 3}, {3, 10}, {5, 6}, {10, 25}} {
		t.Run(fmt.Sprintf("cap%d_n%d", tc.capacity, tc.n), func(t *testing.T) {
			b := newBuffer(t, rdb, BySession(fmt.Sprintf("s-%d-%d", tc.capacity, tc.n)), tc.capacity)

			var want []string
			for i := 0; i < tc.n; i++ {
				role := RoleUser
				if i%2 == 1 {
					role = RoleAssistant
				}
				_, err := b.Append(ctx, role, fmt.Sprintf("m%d", i), nil)
				require.NoError(t, err)
				want = append(want, fmt.Sprintf("%s:m%d", role, i))

				n, err := b.Len(ctx)
				require.NoError(t, err)
				require.LessOrEqual(t, n, int64(tc.capacity))
			}
			want = want[len(want)-tc.capacity:]

			got, err := b.Recent(ctx, 0)
			require.NoError(t, err)
			if diff := cmp.Diff(want, contents(got)); diff != "" {
				t.Fatalf("recent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecentLimit(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	b := newBuffer(t, rdb, ByUser("u1"), 10)

	for i := 0; i < 4; i++ {
		_, err := b.Append(ctx, RoleUser, fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}
	got, err := b.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:m2", "user:m3"}, contents(got))
}

func TestRoundTripIsStable(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	b := newBuffer(t, rdb, BySession("s1"), 10)
	b.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 45, 123456000, time.UTC) }

	written, err := b.Append(ctx, RoleUser, "Hi", map[string]any{"source": "ws"})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T12:30:45.123456", written.Timestamp)

	got, err := b.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	if diff := cmp.Diff(written, got[0]); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestExistingRecordsReadBack(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	b := newBuffer(t, rdb, ByUser("legacy"), 10)

	// A record without fractional seconds, as older writers produced it.
	_, err := mr.Push("chat:legacy:history", `{"role": "user", "content": "old", "timestamp": "2024-01-01T00:00:00", "metadata": {}}`)
	require.NoError(t, err)

	got, err := b.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-01T00:00:00", got[0].Timestamp)
}

func TestRecentSkipsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	b := newBuffer(t, rdb, BySession("s1"), 10)

	_, err := b.Append(ctx, RoleUser, "one", nil)
	require.NoError(t, err)
	_, err = mr.Push("chat:s1:history", "{not json")
	require.NoError(t, err)
	_, err = b.Append(ctx, RoleAssistant, "two", nil)
	require.NoError(t, err)

	got, err := b.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:one", "assistant:two"}, contents(got))
}

func TestRenderContext(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	b := newBuffer(t, rdb, BySession("s1"), 10)

	text, err := b.RenderContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	_, err = b.Append(ctx, RoleUser, "Hi", nil)
	require.NoError(t, err)
	_, err = b.Append(ctx, RoleAssistant, "Hello", nil)
	require.NoError(t, err)
	_, err = b.Append(ctx, RoleUser, "How are you?", nil)
	require.NoError(t, err)

	text, err = b.RenderContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "User: Hi\nAssistant: Hello\nUser: How are you?", text)
}

func TestSetMetadataShallowMerge(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	b := newBuffer(t, rdb, BySession("s1"), 10)

	require.NoError(t, b.SetMetadata(ctx, map[string]any{"a": 1}))
	require.NoError(t, b.SetMetadata(ctx, map[string]any{"b": 2}))
	got, err := b.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, got)

	require.NoError(t, b.SetMetadata(ctx, map[string]any{"a": 3}))
	got, err = b.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(3), "b": float64(2)}, got)
}

func TestMetadataEmptyOrMalformed(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	b := newBuffer(t, rdb, BySession("s1"), 10)

	got, err := b.Metadata(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.NoError(t, mr.Set("chat:s1:metadata", "[1,2"))
	got, err = b.Metadata(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClearMessagesKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	b := newBuffer(t, rdb, BySession("s1"), 10)

	_, err := b.Append(ctx, RoleUser, "Hi", nil)
	require.NoError(t, err)
	require.NoError(t, b.SetMetadata(ctx, map[string]any{"persona": "coach"}))

	require.NoError(t, b.ClearMessages(ctx))
	assert.False(t, mr.Exists("chat:s1:history"))
	assert.True(t, mr.Exists("chat:s1:metadata"))

	msgs, err := b.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	b := newBuffer(t, rdb, BySession("s1"), 10)

	_, err := b.Append(ctx, RoleUser, "Hi", nil)
	require.NoError(t, err)
	require.NoError(t, b.SetMetadata(ctx, map[string]any{"k": "v"}))
	require.NoError(t, mr.Set("chat:s1:session", "marker"))

	require.NoError(t, b.DeleteAll(ctx))
	for _, k := range []string{"chat:s1:history", "chat:s1:metadata", "chat:s1:session"} {
		assert.False(t, mr.Exists(k), k)
	}
}

func TestAddressingSchemesDoNotMerge(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	bySession := newBuffer(t, rdb, BySession("session_alice_1700000000"), 10)
	byUser := newBuffer(t, rdb, ByUser("alice"), 10)

	_, err := bySession.Append(ctx, RoleUser, "from session", nil)
	require.NoError(t, err)

	n, err := byUser.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInfo(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	b := newBuffer(t, rdb, ByUser("u1"), 10)

	_, err := b.Append(ctx, RoleUser, "Hi", nil)
	require.NoError(t, err)
	require.NoError(t, b.SetMetadata(ctx, map[string]any{"persona": "coach"}))

	info, err := b.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", info.ID)
	assert.Equal(t, int64(1), info.MessageCount)
	assert.Equal(t, "coach", info.Metadata["persona"])
	assert.Len(t, info.Messages, 1)
}

func TestNewValidatesAddress(t *testing.T) {
	_, rdb := newRedis(t)
	_, err := New(rdb, Address{Scheme: "tenant", ID: "x"}, 10, logger.Nop())
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = New(rdb, BySession("  "), 10, logger.Nop())
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
