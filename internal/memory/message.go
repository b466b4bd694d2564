package memory

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one stored turn. Timestamp is kept as the stored string so that
// records written elsewhere read back byte-identical.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// Info is a snapshot of one buffer.
type Info struct {
	ID           string         `json:"user_id"`
	Messages     []Message      `json:"messages"`
	Metadata     map[string]any `json:"metadata"`
	MessageCount int64          `json:"message_count"`
}
