package llm

import "context"

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

// Request is one generation call. System is optional.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// Gateway is the contract shared by every inference backend. Exactly one
// implementation is active per process.
type Gateway interface {
	// Name identifies the backend ("lmstudio", "ollama", "mock").
	Name() string

	// HealthCheck never returns an error: any failure reads as false.
	HealthCheck(ctx context.Context) bool

	// Generate returns the first completion's text, or "" when the backend
	// returned no completion. Transport and non-2xx failures are *Error.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream opens a streamed generation. The caller must drain or
	// Close the returned stream.
	GenerateStream(ctx context.Context, req Request) (*Stream, error)

	// ListModels is empty on any failure.
	ListModels(ctx context.Context) []string

	Embed(ctx context.Context, text string) ([]float64, error)
}

// ModelManager is implemented by backends that can fetch or switch models at
// runtime.
type ModelManager interface {
	// Model is the model generations currently run against.
	Model() string

	// PullModel downloads name into the server's model store. Backends that
	// cannot fetch models fail with ErrUnsupported.
	PullModel(ctx context.Context, name string) error

	// UseModel switches later generations to name. It fails with
	// ErrModelNotFound when the server does not list name.
	UseModel(ctx context.Context, name string) error
}

// Normalize fills unusable sampling parameters with defaults. Temperature 0 is
// a legal value and is kept.
func Normalize(r Request) Request {
	if r.Temperature < 0 {
		r.Temperature = DefaultTemperature
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}
