package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

const defaultClipRunes = 80

type fieldClass int

const (
	fieldPlain fieldClass = iota
	fieldSecret
	fieldIdentity
	fieldText
)

// scrubber rewrites structured fields before they reach zap: credentials are
// dropped, user and session identifiers are hashed, and conversation text is
// clipped so logs never carry whole chat turns.
type scrubber struct {
	enabled bool
	salt    string
	clip    int
}

var (
	scrubOnce sync.Once
	active    scrubber
)

func fields(kv []interface{}) []interface{} {
	scrubOnce.Do(func() { active = scrubberFromEnv() })
	return active.kvs(kv)
}

// scrubberFromEnv reads LOG_REDACTION_ENABLED, LOG_HASH_SALT and
// LOG_CLIP_CHARS. Scrubbing is on unless explicitly disabled; a clip of 0
// keeps text whole.
func scrubberFromEnv() scrubber {
	s := scrubber{enabled: true, clip: defaultClipRunes}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		s.enabled = false
	}
	s.salt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("LOG_CLIP_CHARS"))); err == nil && n >= 0 {
		s.clip = n
	}
	return s
}

func classify(key string) fieldClass {
	key = strings.ToLower(strings.TrimSpace(key))
	switch {
	case key == "":
		return fieldPlain
	case strings.HasSuffix(key, "_tokens"):
		// sampling parameter
		return fieldPlain
	case strings.Contains(key, "api_key"),
		strings.Contains(key, "apikey"),
		strings.Contains(key, "authorization"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "cookie"),
		strings.Contains(key, "token"):
		return fieldSecret
	case strings.HasSuffix(key, "user_id"),
		strings.HasSuffix(key, "session_id"),
		key == "conversation":
		return fieldIdentity
	}
	switch key {
	case "prompt", "content", "text", "reply", "response", "user_message", "system_prompt":
		return fieldText
	}
	return fieldPlain
}

func (s scrubber) kvs(kv []interface{}) []interface{} {
	if !s.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := toString(kv[i])
		out = append(out, key, s.value(classify(key), kv[i+1]))
	}
	return out
}

func (s scrubber) value(class fieldClass, val interface{}) interface{} {
	switch class {
	case fieldSecret:
		return "[REDACTED]"
	case fieldIdentity:
		return s.hash(val)
	case fieldText:
		return s.clipText(val)
	}
	if m, ok := val.(map[string]interface{}); ok {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = s.value(classify(k), v)
		}
		return out
	}
	return val
}

func (s scrubber) hash(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if s.salt != "" {
		_, _ = h.Write([]byte(s.salt))
	}
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

func (s scrubber) clipText(val interface{}) interface{} {
	str, ok := val.(string)
	if !ok || s.clip == 0 {
		return val
	}
	n := utf8.RuneCountInString(str)
	if n <= s.clip {
		return str
	}
	cut := 0
	for i := range str {
		if cut == s.clip {
			return fmt.Sprintf("%s…(+%d chars)", str[:i], n-s.clip)
		}
		cut++
	}
	return str
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
