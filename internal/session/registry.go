package session

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

const DefaultTimeout = time.Hour

// Registry stores one session per user under session:{user} with a sliding
// TTL. Update is read-merge-write without a transaction; concurrent updates
// for the same user may clobber each other.
type Registry struct {
	rdb     goredis.Cmdable
	timeout time.Duration
	log     *logger.Logger

	now func() time.Time
}

func New(rdb goredis.Cmdable, timeout time.Duration, log *logger.Logger) (*Registry, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if timeout < time.Second {
		timeout = DefaultTimeout
	}
	return &Registry{
		rdb:     rdb,
		timeout: timeout,
		log:     log.With("service", "SessionRegistry"),
		now:     time.Now,
	}, nil
}

func (r *Registry) Timeout() time.Duration { return r.timeout }

// Create overwrites any existing session for userID.
func (r *Registry) Create(ctx context.Context, userID, persona string, metadata map[string]any) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, fmt.Errorf("user id required")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	ts := isotime.Format(r.now())
	s := Session{
		UserID:       userID,
		Persona:      persona,
		CreatedAt:    ts,
		LastActivity: ts,
		MessageCount: 0,
		Metadata:     metadata,
	}
	if err := r.write(ctx, s); err != nil {
		return Session{}, err
	}
	r.log.Info("created session", "user_id", userID, "persona", persona)
	return s, nil
}

func (r *Registry) write(ctx context.Context, s Session) error {
	s.SessionID = ""
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.SetEx(ctx, Key(s.UserID), raw, r.timeout).Err(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Get reports false for sessions that were never created, have expired, or
// no longer decode.
func (r *Registry) Get(ctx context.Context, userID string) (Session, bool, error) {
	raw, err := r.rdb.Get(ctx, Key(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		r.log.Error("failed to decode session", "user_id", userID, "error", err)
		return Session{}, false, nil
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	return s, true, nil
}

// Update applies p, refreshes last_activity and restarts the TTL window. It
// returns false without writing when no session exists.
func (r *Registry) Update(ctx context.Context, userID string, p Patch) (bool, error) {
	s, ok, err := r.Get(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	if p.Persona != nil {
		s.Persona = *p.Persona
	}
	if p.MessageCount != nil {
		s.MessageCount = *p.MessageCount
	}
	if p.Metadata != nil {
		s.Metadata = p.Metadata
	}
	s.LastActivity = isotime.Format(r.now())
	if err := r.write(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}

// Extend restarts the TTL window without touching the record.
func (r *Registry) Extend(ctx context.Context, userID string) (bool, error) {
	ok, err := r.rdb.Expire(ctx, Key(userID), r.timeout).Result()
	if err != nil {
		return false, fmt.Errorf("extend session: %w", err)
	}
	return ok, nil
}

func (r *Registry) Delete(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, Key(userID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	r.log.Info("deleted session", "user_id", userID)
	return nil
}

// TTL returns the remaining lifetime in seconds, TTLNoKey when the session
// does not exist and TTLNoExpiry when it exists without an expiry.
func (r *Registry) TTL(ctx context.Context, userID string) (int64, error) {
	d, err := r.rdb.TTL(ctx, Key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("session ttl: %w", err)
	}
	// go-redis passes the negative sentinels through unscaled.
	switch d {
	case time.Duration(TTLNoKey):
		return TTLNoKey, nil
	case time.Duration(TTLNoExpiry):
		return TTLNoExpiry, nil
	}
	return int64(d / time.Second), nil
}

func (r *Registry) scan(ctx context.Context, fn func(userID string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan sessions: %w", err)
		}
		for _, k := range keys {
			if err := fn(strings.TrimPrefix(k, keyPrefix)); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// ListActiveUserIDs enumerates live sessions with an incremental SCAN. Order
// is unspecified.
func (r *Registry) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	out := []string{}
	err := r.scan(ctx, func(userID string) error {
		out = append(out, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDetailed returns every live session with a synthesized SessionID.
// Sessions that expire between SCAN and GET are skipped.
func (r *Registry) ListDetailed(ctx context.Context) ([]Session, error) {
	out := []Session{}
	err := r.scan(ctx, func(userID string) error {
		s, ok, err := r.Get(ctx, userID)
		if err != nil {
			return err
		}
		if ok {
			s.SessionID = DisplayID(userID, r.now())
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
