package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Redis TTL sentinels, as returned by Registry.TTL.
const (
	TTLNoKey    int64 = -2
	TTLNoExpiry int64 = -1
)

const keyPrefix = "session:"

// Session is the time-boxed per-user record. SessionID is only filled by
// ListDetailed and is never stored.
type Session struct {
	UserID       string         `json:"user_id"`
	Persona      string         `json:"persona"`
	CreatedAt    string         `json:"created_at"`
	LastActivity string         `json:"last_activity"`
	MessageCount int            `json:"message_count"`
	Metadata     map[string]any `json:"metadata"`
	SessionID    string         `json:"session_id,omitempty"`
}

// Patch lists the fields Update may change. Nil fields are left as stored;
// a non-nil Metadata replaces the stored map.
type Patch struct {
	Persona      *string
	MessageCount *int
	Metadata     map[string]any
}

func Key(userID string) string { return keyPrefix + userID }

// DisplayID synthesizes the cosmetic "session_{user}_{unix}" identifier. Two
// calls in the same second collide; it is not a key.
func DisplayID(userID string, at time.Time) string {
	return fmt.Sprintf("session_%s_%d", userID, at.Unix())
}

// UserIDFromSessionID recovers the user id from a DisplayID-shaped string,
// falling back to "default_user" for anything else.
func UserIDFromSessionID(sessionID string) string {
	rest, ok := strings.CutPrefix(sessionID, "session_")
	if !ok || rest == "" {
		return "default_user"
	}
	if i := strings.LastIndexByte(rest, '_'); i > 0 {
		if _, err := strconv.ParseInt(rest[i+1:], 10, 64); err == nil {
			return rest[:i]
		}
	}
	return rest
}
