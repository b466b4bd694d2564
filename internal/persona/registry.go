package persona

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/nono-backend/internal/platform/logger"
)

// Registry is a read-only set of personas in file order.
type Registry struct {
	log    *logger.Logger
	keys   []string
	byKey  map[string]Persona
	source string
}

// Load reads personas from a YAML document of the form
//
//	personas:
//	  <key>: {name, role, system_prompt, temperature, max_tokens, system_tags}
//
// A missing file yields an empty registry with a warning. A malformed file is
// logged and also yields an empty registry; only a nil logger is an error.
func Load(path string, log *logger.Logger) (*Registry, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	r := &Registry{
		log:    log.With("service", "PersonaRegistry"),
		byKey:  map[string]Persona{},
		source: path,
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("personas file not found", "path", path)
		} else {
			r.log.Error("failed to read personas", "path", path, "error", err)
		}
		return r, nil
	}
	if err := r.parse(b); err != nil {
		r.log.Error("failed to load personas", "path", path, "error", err)
		r.keys = nil
		r.byKey = map[string]Persona{}
		return r, nil
	}
	r.log.Info("loaded personas", "count", len(r.keys), "path", path)
	return r, nil
}

// FromBytes builds a registry from an in-memory YAML document.
func FromBytes(b []byte, log *logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{log: log.With("service", "PersonaRegistry"), byKey: map[string]Persona{}}
	if err := r.parse(b); err != nil {
		return nil, err
	}
	return r, nil
}

type document struct {
	Personas yaml.Node `yaml:"personas"`
}

func (r *Registry) parse(b []byte) error {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}
	node := &doc.Personas
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("personas: expected mapping, got %s", kindName(node.Kind))
	}
	// Decode pair by pair so ListKeys keeps file order.
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var p Persona
		if err := node.Content[i+1].Decode(&p); err != nil {
			return fmt.Errorf("persona %q: %w", key, err)
		}
		p.Key = key
		r.normalize(&p)
		if _, dup := r.byKey[key]; !dup {
			r.keys = append(r.keys, key)
		}
		r.byKey[key] = p
	}
	return nil
}

func (r *Registry) normalize(p *Persona) {
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 1) {
		r.log.Warn("persona temperature out of range, using default", "persona", p.Key, "temperature", *p.Temperature)
		p.Temperature = nil
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}

func (r *Registry) Get(key string) (Persona, bool) {
	if r == nil {
		return Persona{}, false
	}
	p, ok := r.byKey[key]
	return p, ok
}

func (r *Registry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// SystemPrompt returns "" for unknown keys.
func (r *Registry) SystemPrompt(key string) string {
	p, ok := r.Get(key)
	if !ok {
		if r != nil {
			r.log.Warn("persona not found", "persona", key)
		}
		return ""
	}
	return p.SystemPrompt
}

func (r *Registry) Describe(key string) Info {
	p, ok := r.Get(key)
	if !ok {
		return Info{}
	}
	return p.Info()
}

func (r *Registry) ListKeys() []string {
	if r == nil {
		return []string{}
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Registry) List() []Info {
	keys := r.ListKeys()
	out := make([]Info, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.Describe(k))
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

func (r *Registry) DefaultKey() string {
	if r == nil {
		return ""
	}
	if _, ok := r.byKey[PreferredKey]; ok {
		return PreferredKey
	}
	if len(r.keys) > 0 {
		return r.keys[0]
	}
	return ""
}
