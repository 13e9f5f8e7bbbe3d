package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is read from the environment; command-line flags override it.
type Config struct {
	APIURL        string        `envconfig:"PHISHCHECK_API_URL" default:"https://pubsub-api-549920649116.us-central1.run.app/"`
	Language      string        `envconfig:"PHISHCHECK_LANGUAGE" default:"es-ES"`
	VerifyTimeout time.Duration `envconfig:"PHISHCHECK_VERIFY_TIMEOUT" default:"15s"`
	MaxTranscript int           `envconfig:"PHISHCHECK_MAX_TRANSCRIPT" default:"5000"` // runes, 0 = unbounded

	// Speech backend. Without a key the app runs in the unsupported mode.
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-3"`

	LogPath     string `envconfig:"PHISHCHECK_LOG_PATH"`
	MetricsAddr string `envconfig:"PHISHCHECK_METRICS_ADDR"` // empty disables /metrics
}

// Load reads .env files (missing ones are ignored) and then the environment.
// Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("PHISHCHECK_API_URL must not be empty")
	}
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("PHISHCHECK_VERIFY_TIMEOUT must be positive, got %s", c.VerifyTimeout)
	}
	if c.MaxTranscript < 0 {
		return fmt.Errorf("PHISHCHECK_MAX_TRANSCRIPT must not be negative, got %d", c.MaxTranscript)
	}
	return nil
}

// SpeechConfigured reports whether a speech backend key is present.
func (c *Config) SpeechConfigured() bool {
	return c.DeepgramAPIKey != ""
}
