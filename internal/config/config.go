package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/paperflow/internal/common"
)

// Config is the application configuration assembled from the config file,
// PAPERFLOW_ environment variables, and defaults.
type Config struct {
	Storage  StorageConfig
	LLM      LLMConfig
	OCR      OCRConfig
	Pipeline PipelineConfig
}

// StorageConfig locates the database.
type StorageConfig struct {
	Path string
}

// LLMConfig selects and tunes the chat completion provider.
type LLMConfig struct {
	Provider          string
	APIKey            string
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	Timeout           time.Duration
}

// OCRConfig configures the optical recognition fallback. An empty APIKey
// disables OCR; image-only documents then fail with a clear message.
type OCRConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// PipelineConfig tunes the processing run.
type PipelineConfig struct {
	Timeout            time.Duration
	MaxFileSize        int64
	SuspectAmountRatio float64
	// RedactedDir receives best-effort redacted copies of uploads.
	RedactedDir string
}

// Load reads configuration from Viper with environment variable overrides.
// Precedence: Viper (config file or PAPERFLOW_ env vars), then direct
// provider environment variables, then defaults.
func Load() (*Config, error) {
	cfg := defaults()

	if v := viper.GetString("storage.path"); v != "" {
		cfg.Storage.Path = ExpandPath(v)
	}

	if v := viper.GetString("llm.provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm.api_key"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetFloat64("llm.temperature"); v > 0 {
		cfg.LLM.Temperature = v
	}
	if v := viper.GetInt("llm.max_tokens"); v > 0 {
		cfg.LLM.MaxTokens = v
	}
	if v := viper.GetInt("llm.requests_per_minute"); v > 0 {
		cfg.LLM.RequestsPerMinute = v
	}
	if v := viper.GetDuration("llm.timeout"); v > 0 {
		cfg.LLM.Timeout = v
	}

	if v := viper.GetString("ocr.api_key"); v != "" {
		cfg.OCR.APIKey = v
	}
	if v := viper.GetString("ocr.endpoint"); v != "" {
		cfg.OCR.Endpoint = v
	}
	if v := viper.GetDuration("ocr.timeout"); v > 0 {
		cfg.OCR.Timeout = v
	}

	if v := viper.GetDuration("pipeline.timeout"); v > 0 {
		cfg.Pipeline.Timeout = v
	}
	if v := viper.GetInt64("pipeline.max_file_size"); v > 0 {
		cfg.Pipeline.MaxFileSize = v
	}
	if v := viper.GetFloat64("pipeline.suspect_amount_ratio"); v > 0 {
		cfg.Pipeline.SuspectAmountRatio = v
	}
	if v := viper.GetString("pipeline.redacted_dir"); v != "" {
		cfg.Pipeline.RedactedDir = ExpandPath(v)
	}

	// Direct environment variables win over nothing but defaults; they
	// cover the common case of keys living outside the config file.
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.OCR.APIKey == "" {
		cfg.OCR.APIKey = os.Getenv("OCR_SPACE_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	home, err := os.UserHomeDir()
	dbPath := "paperflow.db"
	redactedDir := "paperflow-redacted"
	if err == nil {
		dbPath = home + "/.local/share/paperflow/paperflow.db"
		redactedDir = home + "/.local/share/paperflow/redacted"
	}

	return &Config{
		Storage: StorageConfig{Path: dbPath},
		LLM: LLMConfig{
			Provider: "openai",
		},
		OCR: OCRConfig{
			Timeout: 60 * time.Second,
		},
		Pipeline: PipelineConfig{
			Timeout:     5 * time.Minute,
			RedactedDir: redactedDir,
		},
	}
}

func (c *Config) validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path", common.ErrMissingConfig)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "":
	default:
		return fmt.Errorf("%w: unknown llm.provider %q", common.ErrInvalidConfig, c.LLM.Provider)
	}
	return nil
}
