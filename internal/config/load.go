package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "LECTOR"

// defaults lists every configuration key with its default value.
// Registering each key is also what lets viper bind it to an environment variable.
var defaults = map[string]any{
	"worker.log_level":        "info",
	"worker.prefetch":         1,
	"worker.retry_count":      5,
	"worker.retry_delay":      "5s",
	"worker.poll_interval":    "1s",
	"worker.shutdown_timeout": "30s",
	"worker.health_port":      8081,

	"intake.log_level":        "info",
	"intake.port":             8080,
	"intake.read_timeout":     "2m",
	"intake.shutdown_timeout": "10s",

	"broker.url":            "",
	"broker.document_queue": "pdf_queue",
	"broker.speech_queue":   "tts_queue",

	"database.url":               "",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": "30m",
	"database.auto_migrate":      true,

	"blob.endpoint":   "",
	"blob.access_key": "",
	"blob.secret_key": "",
	"blob.bucket":     "lector",
	"blob.region":     "",
	"blob.use_ssl":    false,

	"redis.url":          "",
	"redis.progress_ttl": "24h",

	"chunking.max_chars":     2000,
	"chunking.overlap_chars": 200,
	"chunking.splitter":      "english",

	"embedding.provider":   "openai",
	"embedding.model":      "text-embedding-3-small",
	"embedding.api_key":    "",
	"embedding.base_url":   "",
	"embedding.dimensions": 384,

	"speech.base_url": "",
	"speech.api_key":  "",
	"speech.model":    "kokoro",
	"speech.voice":    "af_heart",
	"speech.format":   "mp3",
	"speech.speed":    1.0,
}

// Load reads configuration from environment variables and, when present,
// a config.yaml in the working directory. Environment variables take precedence
// over values from the config file. Returns a populated Config or an error if
// loading or validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the working directory for an optional config.yaml.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// 1. Defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 3. Environment, e.g. LECTOR_BROKER_URL
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Unmarshal
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Validate
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Embedding.Provider == "gemini" && cfg.Embedding.APIKey == "" {
		return fmt.Errorf("config validation failed: embedding.api_key is required for the gemini provider")
	}
	return nil
}
