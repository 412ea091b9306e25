package internal

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvModelURL     = "CLIPFIND_MODEL_URL"
	EnvCacheBackend = "CLIPFIND_CACHE_BACKEND"
)

// TopKCeilings are the result limits a search may ask for.
var TopKCeilings = []int{50, 100, 200, 500, 1000}

type ModelConfig struct {
	BaseURL    string        `yaml:"base_url"`
	ImageModel string        `yaml:"image_model"`
	TextModel  string        `yaml:"text_model"`
	Dimension  int           `yaml:"dimension"`
	InputSize  int           `yaml:"input_size"`
	Device     Device        `yaml:"device,omitempty"`
	Normalize  bool          `yaml:"normalize"`
	Timeout    time.Duration `yaml:"timeout"`
}

type TokenizerConfig struct {
	VocabFile     string `yaml:"vocab_file"`
	VocabURL      string `yaml:"vocab_url"`
	ContextLength int    `yaml:"context_length"`
	CacheSize     int    `yaml:"cache_size"`
}

type CacheConfig struct {
	Backend string `yaml:"backend"`
}

type PipelineConfig struct {
	BatchSize        int           `yaml:"batch_size"`
	LoadWorkers      int           `yaml:"load_workers"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

type SearchConfig struct {
	TopK     int           `yaml:"top_k"`
	Debounce time.Duration `yaml:"debounce"`
}

type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Cache     CacheConfig     `yaml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Search    SearchConfig    `yaml:"search"`
}

func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			BaseURL:    "http://127.0.0.1:8765",
			ImageModel: "clip-vit-b-32-image",
			TextModel:  "clip-vit-b-32-text",
			Dimension:  DefaultDimension,
			InputSize:  DefaultInputSize,
			Device:     DeviceAuto,
			Normalize:  true,
			Timeout:    30 * time.Second,
		},
		Tokenizer: TokenizerConfig{
			VocabFile:     DefaultVocabFilename,
			VocabURL:      DefaultVocabURL,
			ContextLength: DefaultContextLength,
			CacheSize:     DefaultBPECacheSize,
		},
		Cache: CacheConfig{
			Backend: BackendBadger,
		},
		Pipeline: PipelineConfig{
			BatchSize:        DefaultBatchSize,
			LoadWorkers:      DefaultLoadWorkers(),
			ProgressInterval: DefaultProgressInterval,
		},
		Search: SearchConfig{
			TopK:     DefaultTopK,
			Debounce: DefaultDebounce,
		},
	}
}

// LoadConfig reads the scope's config on top of the defaults and applies
// environment overrides. A missing file yields the defaults.
func LoadConfig(scope Scope) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(scope.ConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(scope Scope, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(scope.ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvModelURL); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv(EnvCacheBackend); v != "" {
		c.Cache.Backend = v
	}
}

func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("invalid cache backend %q", c.Cache.Backend)
	}
	if !c.Model.Device.Known() {
		return fmt.Errorf("invalid model device %q", c.Model.Device)
	}
	if c.Model.Dimension <= 0 {
		return fmt.Errorf("invalid model dimension %d", c.Model.Dimension)
	}
	if c.Model.InputSize <= 0 {
		return fmt.Errorf("invalid model input size %d", c.Model.InputSize)
	}
	if c.Tokenizer.CacheSize <= 0 {
		return fmt.Errorf("invalid tokenizer cache size %d", c.Tokenizer.CacheSize)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size %d", c.Pipeline.BatchSize)
	}
	if !ValidTopK(c.Search.TopK) {
		return fmt.Errorf("invalid top_k %d", c.Search.TopK)
	}
	return nil
}

// ValidTopK reports whether k is positive and within the largest ceiling.
func ValidTopK(k int) bool {
	return k > 0 && k <= slices.Max(TopKCeilings)
}
