package persona

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500

	// PreferredKey is returned by DefaultKey whenever it has been loaded.
	PreferredKey = "mental_health_nurse"
)

// Persona is a named system prompt plus the sampling parameters used with it.
// Personas are immutable after load.
type Persona struct {
	Key          string   `yaml:"-" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	Role         string   `yaml:"role" json:"role"`
	SystemPrompt string   `yaml:"system_prompt" json:"system_prompt"`
	Temperature  *float64 `yaml:"temperature" json:"temperature"`
	MaxTokens    int      `yaml:"max_tokens" json:"max_tokens"`
	Tags         []string `yaml:"system_tags" json:"tags"`
}

// Info is the public view of a persona. The zero value stands for "not found".
type Info struct {
	Key         string   `json:"key,omitempty"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Tags        []string `json:"tags,omitempty"`
}

func (i Info) IsZero() bool { return i.Key == "" }

// Temp returns the persona temperature, or the default when unset.
func (p Persona) Temp() float64 {
	if p.Temperature == nil {
		return DefaultTemperature
	}
	return *p.Temperature
}

func (p Persona) Info() Info {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return Info{
		Key:         p.Key,
		Name:        p.Name,
		Role:        p.Role,
		Temperature: p.Temp(),
		MaxTokens:   p.MaxTokens,
		Tags:        tags,
	}
}
