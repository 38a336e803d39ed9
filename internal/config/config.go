package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/sentryai/internal/models"
)

// Config holds all configuration settings
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Sentry  SentryConfig  `yaml:"sentry" mapstructure:"sentry"`
	OpenAI  OpenAIConfig  `yaml:"openai" mapstructure:"openai"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite", "postgres", "bolt"
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`
	BoltPath    string `yaml:"bolt_path" mapstructure:"bolt_path"`
}

type SentryConfig struct {
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Token             string        `yaml:"token,omitempty" mapstructure:"token"`
	Organization      string        `yaml:"organization,omitempty" mapstructure:"organization"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

type OpenAIConfig struct {
	APIKey            string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Model             string        `yaml:"model" mapstructure:"model"`
	BaseURL           string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Temperature       float32       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	JSONMode          bool          `yaml:"json_mode" mapstructure:"json_mode"` // gpt-4 rejects response_format
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	TokensPerMinute   int           `yaml:"tokens_per_minute" mapstructure:"tokens_per_minute"`
}

type RetryConfig struct {
	FetchAttempts    int           `yaml:"fetch_attempts" mapstructure:"fetch_attempts"`
	ProviderAttempts int           `yaml:"provider_attempts" mapstructure:"provider_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// RedisConfig enables the provider quota guard when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" mapstructure:"addr"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// HomeDir is where config, credentials and local databases live
func HomeDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".sentryai")
}

// Default returns default configuration
func Default() *Config {
	home := HomeDir()
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second, // synchronous analyze spans fetch + completion
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(home, "sentryai.db"),
			BoltPath:   filepath.Join(home, "sentryai.bolt"),
		},
		Sentry: SentryConfig{
			BaseURL:           "https://sentry.io/api/0",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 5,
		},
		OpenAI: OpenAIConfig{
			Model:             "gpt-4",
			Timeout:           60 * time.Second,
			Temperature:       0.3,
			MaxTokens:         2000,
			RequestsPerMinute: 60,
			TokensPerMinute:   90000,
		},
		Retry: RetryConfig{
			FetchAttempts:    2,
			ProviderAttempts: 2,
			InitialBackoff:   500 * time.Millisecond,
			MaxBackoff:       5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file, .env files and the environment
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".sentryai")
		v.AddConfigPath(HomeDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Storage.SQLitePath = expandPath(cfg.Storage.SQLitePath)
	cfg.Storage.BoltPath = expandPath(cfg.Storage.BoltPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.listen_addr", cfg.Server.ListenAddr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("storage.bolt_path", cfg.Storage.BoltPath)

	v.SetDefault("sentry.base_url", cfg.Sentry.BaseURL)
	v.SetDefault("sentry.timeout", cfg.Sentry.Timeout)
	v.SetDefault("sentry.requests_per_second", cfg.Sentry.RequestsPerSecond)

	v.SetDefault("openai.model", cfg.OpenAI.Model)
	v.SetDefault("openai.timeout", cfg.OpenAI.Timeout)
	v.SetDefault("openai.temperature", cfg.OpenAI.Temperature)
	v.SetDefault("openai.max_tokens", cfg.OpenAI.MaxTokens)
	v.SetDefault("openai.json_mode", cfg.OpenAI.JSONMode)
	v.SetDefault("openai.requests_per_minute", cfg.OpenAI.RequestsPerMinute)
	v.SetDefault("openai.tokens_per_minute", cfg.OpenAI.TokensPerMinute)

	v.SetDefault("retry.fetch_attempts", cfg.Retry.FetchAttempts)
	v.SetDefault("retry.provider_attempts", cfg.Retry.ProviderAttempts)
	v.SetDefault("retry.initial_backoff", cfg.Retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", cfg.Retry.MaxBackoff)

	v.SetDefault("logging.level", cfg.Logging.Level)
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overwrites variables that are already set, so earlier files win.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env", filepath.Join(HomeDir(), ".env")} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("SENTRYAI_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}

	// Sentry
	if token := os.Getenv("SENTRY_API_TOKEN"); token != "" {
		cfg.Sentry.Token = token
	}
	if org := os.Getenv("SENTRY_ORG"); org != "" {
		cfg.Sentry.Organization = org
	}
	if base := os.Getenv("SENTRY_BASE_URL"); base != "" {
		cfg.Sentry.BaseURL = base
	}

	// OpenAI
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.OpenAI.Model = model
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.OpenAI.BaseURL = base
	}
	if secs := os.Getenv("OPENAI_TIMEOUT_SECONDS"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil && n > 0 {
			cfg.OpenAI.Timeout = time.Duration(n) * time.Second
		}
	}

	// Storage
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
		if os.Getenv("STORAGE_DRIVER") == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.Storage.SQLitePath = path
	}

	// Redis
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// DefaultCredentials are the process-level credentials used when a workspace has none of its own
func (c *Config) DefaultCredentials() models.WorkspaceCredentials {
	return models.WorkspaceCredentials{
		SentryToken:        c.Sentry.Token,
		SentryOrganization: c.Sentry.Organization,
		OpenAIKey:          c.OpenAI.APIKey,
		OpenAIModel:        c.OpenAI.Model,
	}
}

// Save writes the configuration as YAML. Secrets are left out; they belong in the keychain.
func (c *Config) Save(path string) error {
	out := *c
	out.Sentry.Token = ""
	out.OpenAI.APIKey = ""
	out.Redis.Password = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
