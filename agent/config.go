package agent

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Config is the snapshot a host hands to an agent at initialization.
type Config struct {
	// AgentID is unique within a host.
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// AgentType is the category label used to pick the implementation.
	AgentType string `json:"agent_type" yaml:"agent_type"`

	// Capabilities is the ordered list of capabilities the agent advertises.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`

	// MaxConcurrentTasks bounds the tasks a host keeps in flight for this
	// agent. Zero means the agent accepts no tasks.
	MaxConcurrentTasks int `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`

	// Settings holds implementation specific options.
	Settings map[string]string `json:"settings" yaml:"settings"`
}

// Validate checks the fields every agent relies on. Implementations add
// their own checks on top.
func (c Config) Validate() error {
	if c.AgentID == "" {
		return &ConfigError{Field: "agent_id", Reason: "is required"}
	}
	if c.AgentType == "" {
		return &ConfigError{Field: "agent_type", Reason: "is required"}
	}
	if c.MaxConcurrentTasks < 0 {
		return &ConfigError{Field: "max_concurrent_tasks", Reason: fmt.Sprintf("must be >= 0, got %d", c.MaxConcurrentTasks)}
	}
	seen := make(map[string]struct{}, len(c.Capabilities))
	for i, capability := range c.Capabilities {
		if capability == "" {
			return &ConfigError{Field: fmt.Sprintf("capabilities[%d]", i), Reason: "must not be empty"}
		}
		if _, dup := seen[capability]; dup {
			return &ConfigError{Field: "capabilities", Reason: fmt.Sprintf("duplicate capability %q", capability)}
		}
		seen[capability] = struct{}{}
	}
	for k := range c.Settings {
		if k == "" {
			return &ConfigError{Field: "settings", Reason: "empty key"}
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	out.Capabilities = cloneSlice(c.Capabilities)
	out.Settings = cloneMap(c.Settings)
	return out
}

// HasCapability reports whether capability was declared.
func (c Config) HasCapability(capability string) bool {
	for _, have := range c.Capabilities {
		if have == capability {
			return true
		}
	}
	return false
}

// Setting returns a setting value, or def when absent.
func (c Config) Setting(key, def string) string {
	if v, ok := c.Settings[key]; ok {
		return v
	}
	return def
}

// DecodeSettings decodes Settings into the struct pointed to by out using
// `mapstructure` tags. String values are converted to the field types, so
// "250ms", "3" and "true" decode into durations, ints and bools. Comma
// separated values decode into string slices. Keys that match no field are
// rejected.
func (c Config) DecodeSettings(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create settings decoder: %w", err)
	}
	if err := decoder.Decode(c.Settings); err != nil {
		return &ConfigError{Field: "settings", Reason: err.Error()}
	}
	return nil
}

type configWire struct {
	AgentID            *string           `json:"agent_id"`
	AgentType          *string           `json:"agent_type"`
	Capabilities       []string          `json:"capabilities"`
	MaxConcurrentTasks *int              `json:"max_concurrent_tasks"`
	Settings           map[string]string `json:"settings"`
}

// MarshalJSON always writes the collections, as [] and {} when empty.
func (c Config) MarshalJSON() ([]byte, error) {
	caps := c.Capabilities
	if caps == nil {
		caps = []string{}
	}
	settings := c.Settings
	if settings == nil {
		settings = map[string]string{}
	}
	return json.Marshal(configWire{
		AgentID:            &c.AgentID,
		AgentType:          &c.AgentType,
		Capabilities:       caps,
		MaxConcurrentTasks: &c.MaxConcurrentTasks,
		Settings:           settings,
	})
}

// UnmarshalJSON rejects documents missing agent_id, agent_type or
// max_concurrent_tasks. Unknown fields are ignored.
func (c *Config) UnmarshalJSON(data []byte) error {
	var w configWire
	if err := json.Unmarshal(data, &w); err != nil {
		return &ConfigError{Reason: err.Error()}
	}
	switch {
	case w.AgentID == nil:
		return &ConfigError{Field: "agent_id", Reason: "missing"}
	case w.AgentType == nil:
		return &ConfigError{Field: "agent_type", Reason: "missing"}
	case w.MaxConcurrentTasks == nil:
		return &ConfigError{Field: "max_concurrent_tasks", Reason: "missing"}
	}
	*c = Config{
		AgentID:            *w.AgentID,
		AgentType:          *w.AgentType,
		Capabilities:       w.Capabilities,
		MaxConcurrentTasks: *w.MaxConcurrentTasks,
		Settings:           w.Settings,
	}
	if c.Capabilities == nil {
		c.Capabilities = []string{}
	}
	if c.Settings == nil {
		c.Settings = map[string]string{}
	}
	return nil
}
