package claims

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TimeoutBehavior selects how a run that exhausts max_rounds is reported.
type TimeoutBehavior string

const (
	// TimeoutPartialSuccess returns a TimedOut outcome with the last
	// context intact and a nil Outcome.Err.
	TimeoutPartialSuccess TimeoutBehavior = "partial_success"

	// TimeoutFailFast returns the same outcome with Outcome.Err set.
	TimeoutFailFast TimeoutBehavior = "fail_fast"
)

// Default configuration values.
const (
	DefaultMaxRounds      = 15
	DefaultStallThreshold = 3
)

// Config holds the orchestration loop settings.
type Config struct {
	// MaxRounds caps loop iterations before a TimedOut outcome.
	MaxRounds int `yaml:"max_rounds"`

	// StallThreshold is the number of consecutive no-progress rounds by a
	// single specialist before a Stalled outcome.
	StallThreshold int `yaml:"stall_threshold"`

	// EnableHumanInLoop pauses runs for missing documents instead of
	// pressing on with incomplete data.
	EnableHumanInLoop bool `yaml:"enable_human_in_loop"`

	// TimeoutBehavior selects partial_success or fail_fast reporting.
	TimeoutBehavior TimeoutBehavior `yaml:"timeout_behavior"`

	// SessionDir is the root directory for the filesystem session store.
	SessionDir string `yaml:"session_dir,omitempty"`

	// TraceDir, when set, enables per-claim trace logs.
	TraceDir string `yaml:"trace_dir,omitempty"`

	// EventDir, when set, enables the file-based event sink.
	EventDir string `yaml:"event_dir,omitempty"`

	// Specialists is the roster of specialist workers the planner may
	// select from. An empty roster disables specialist validation.
	Specialists []SpecialistDef `yaml:"specialists,omitempty"`
}

// SpecialistDef describes one specialist worker the planner may dispatch.
type SpecialistDef struct {
	// ID is the stable specialist identifier (e.g. "fraud_analyst").
	ID string `yaml:"id"`

	// Description tells the planner what this specialist does.
	Description string `yaml:"description,omitempty"`

	// Writes lists the context fields this specialist is allowed to patch.
	// Empty means any schema field.
	Writes []string `yaml:"writes,omitempty"`
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		MaxRounds:         DefaultMaxRounds,
		StallThreshold:    DefaultStallThreshold,
		EnableHumanInLoop: true,
		TimeoutBehavior:   TimeoutPartialSuccess,
		SessionDir:        filepath.Join(Home(), "sessions"),
	}
}

// LoadConfig reads a YAML config file, applying defaults for absent fields.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the settings are internally consistent.
func (c Config) Validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("config: max_rounds must be positive, got %d", c.MaxRounds)
	}
	if c.StallThreshold <= 0 {
		return fmt.Errorf("config: stall_threshold must be positive, got %d", c.StallThreshold)
	}
	if c.TimeoutBehavior != TimeoutPartialSuccess && c.TimeoutBehavior != TimeoutFailFast {
		return fmt.Errorf("config: unknown timeout_behavior %q", c.TimeoutBehavior)
	}
	seen := make(map[string]bool, len(c.Specialists))
	for _, s := range c.Specialists {
		if s.ID == "" {
			return fmt.Errorf("config: specialist with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate specialist %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// KnownSpecialist reports whether id is in the roster. An empty roster
// accepts any id.
func (c Config) KnownSpecialist(id string) bool {
	if len(c.Specialists) == 0 {
		return true
	}
	for _, s := range c.Specialists {
		if s.ID == id {
			return true
		}
	}
	return false
}
