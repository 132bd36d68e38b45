package prefs

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the shared validator instance.
var validate = validator.New()

// Config is the file-level configuration of a store and its manager.
type Config struct {
	SettingsKey   string        `yaml:"settingsKey" json:"settingsKey" validate:"required"`
	AppPrefix     string        `yaml:"appPrefix" json:"appPrefix" validate:"required"`
	RetainKeys    int           `yaml:"retainKeys" json:"retainKeys" validate:"min=0"`
	EvictForeign  bool          `yaml:"evictForeign" json:"evictForeign"`
	ErrorHistory  int           `yaml:"errorHistory" json:"errorHistory" validate:"min=0,max=4096"`
	FullThreshold int           `yaml:"fullThreshold" json:"fullThreshold" validate:"min=0"`
	Codec         string        `yaml:"codec" json:"codec" validate:"omitempty,oneof=json yaml"`
	Debounce      time.Duration `yaml:"debounce" json:"debounce" validate:"min=0"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		SettingsKey:   DefaultSettingsKey,
		AppPrefix:     DefaultAppPrefix,
		RetainKeys:    DefaultRetainKeys,
		EvictForeign:  true,
		ErrorHistory:  DefaultErrorHistorySize,
		FullThreshold: DefaultFullThreshold,
		Codec:         "json",
		Debounce:      DefaultDebounce,
	}
}

// LoadConfig reads a YAML config file. Fields missing from the file keep
// their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML (or JSON) over DefaultConfig and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// StoreOptions converts c into Store options.
func (c Config) StoreOptions() []StoreOption {
	opts := []StoreOption{
		WithPrefix(c.AppPrefix),
		WithRetain(c.RetainKeys),
		WithEvictForeign(c.EvictForeign),
		WithErrorHistory(c.ErrorHistory),
	}
	if codec, ok := CodecByName(c.Codec); ok {
		opts = append(opts, WithCodec(codec))
	}
	return opts
}

// ManagerOptions converts c into Manager options.
func (c Config) ManagerOptions() []ManagerOption {
	return []ManagerOption{
		WithSettingsKey(c.SettingsKey),
		WithFullThreshold(c.FullThreshold),
	}
}
