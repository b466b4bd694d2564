package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/nono-backend/internal/platform/isotime"
	"github.com/yungbote/nono-backend/internal/platform/logger"
)

const DefaultMaxMessages = 10

// Buffer is a bounded, oldest-first message log plus a metadata map for one
// conversation, stored in Redis.
//
// Append is RPUSH followed by a separate LTRIM; concurrent writers to the same
// buffer may interleave between the two.
type Buffer struct {
	rdb  goredis.Cmdable
	addr Address
	max  int
	log  *logger.Logger

	now func() time.Time
}

func New(rdb goredis.Cmdable, addr Address, maxMessages int, log *logger.Logger) (*Buffer, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Buffer{
		rdb:  rdb,
		addr: addr,
		max:  maxMessages,
		log:  log.With("service", "ConversationBuffer", "conversation", addr.ID),
		now:  time.Now,
	}, nil
}

func (b *Buffer) Address() Address { return b.addr }

func (b *Buffer) MaxMessages() int { return b.max }

// Append stores a message with a fresh timestamp and trims the log back to
// MaxMessages from the head.
func (b *Buffer) Append(ctx context.Context, role Role, content string, metadata map[string]any) (Message, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: isotime.Format(b.now()),
		Metadata:  metadata,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("encode message: %w", err)
	}

	key := b.addr.HistoryKey()
	if err := b.rdb.RPush(ctx, key, raw).Err(); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	n, err := b.rdb.LLen(ctx, key).Result()
	if err != nil {
		return Message{}, fmt.Errorf("history length: %w", err)
	}
	if n > int64(b.max) {
		if err := b.rdb.LTrim(ctx, key, n-int64(b.max), -1).Err(); err != nil {
			return Message{}, fmt.Errorf("trim history: %w", err)
		}
	}
	return msg, nil
}

// Recent returns up to limit messages, oldest first. limit <= 0 means
// MaxMessages. Entries that fail to decode are skipped.
func (b *Buffer) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = b.max
	}
	raws, err := b.rdb.LRange(ctx, b.addr.HistoryKey(), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			b.log.Warn("skipping undecodable message", "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// RenderContext formats Recent as "User: …" / "Assistant: …" lines.
func (b *Buffer) RenderContext(ctx context.Context) (string, error) {
	msgs, err := b.Recent(ctx, 0)
	if err != nil {
		return "", err
	}
	return Render(msgs), nil
}

func Render(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		label := "Assistant"
		if m.Role == RoleUser {
			label = "User"
		}
		lines = append(lines, label+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// SetMetadata shallow-merges partial into the stored map.
func (b *Buffer) SetMetadata(ctx context.Context, partial map[string]any) error {
	current, err := b.Metadata(ctx)
	if err != nil {
		return err
	}
	for k, v := range partial {
		current[k] = v
	}
	raw, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := b.rdb.Set(ctx, b.addr.MetadataKey(), raw, 0).Err(); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Metadata is never nil. A missing or undecodable blob reads as empty.
func (b *Buffer) Metadata(ctx context.Context) (map[string]any, error) {
	raw, err := b.rdb.Get(ctx, b.addr.MetadataKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		b.log.Warn("ignoring undecodable metadata", "error", err)
		return map[string]any{}, nil
	}
	return out, nil
}

// ClearMessages drops the message log only.
func (b *Buffer) ClearMessages(ctx context.Context) error {
	if err := b.rdb.Del(ctx, b.addr.HistoryKey()).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	b.log.Info("cleared conversation history")
	return nil
}

// DeleteAll drops the log, the metadata and the auxiliary session marker.
func (b *Buffer) DeleteAll(ctx context.Context) error {
	if err := b.rdb.Del(ctx, b.addr.HistoryKey(), b.addr.MetadataKey(), b.addr.SessionKey()).Err(); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	b.log.Info("deleted conversation")
	return nil
}

func (b *Buffer) Len(ctx context.Context) (int64, error) {
	n, err := b.rdb.LLen(ctx, b.addr.HistoryKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("history length: %w", err)
	}
	return n, nil
}

func (b *Buffer) Info(ctx context.Context) (Info, error) {
	msgs, err := b.Recent(ctx, 0)
	if err != nil {
		return Info{}, err
	}
	meta, err := b.Metadata(ctx)
	if err != nil {
		return Info{}, err
	}
	n, err := b.Len(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{ID: b.addr.ID, Messages: msgs, Metadata: meta, MessageCount: n}, nil
}
