package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Images    ImagesConfig    `yaml:"images"`
	Adventure AdventureConfig `yaml:"adventure"`
	Lessons   LessonsConfig   `yaml:"lessons"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type ImagesConfig struct {
	BaseURL  string        `yaml:"base_url"`
	CacheDir string        `yaml:"cache_dir"`
	Timeout  time.Duration `yaml:"timeout"`
}

type AdventureConfig struct {
	// Environment tags persisted blobs so test and prod data never mix.
	Environment string `yaml:"environment"`

	DefaultLength int `yaml:"default_length"`

	// VisualAwaitTimeout bounds the wait on the character-visual extraction
	// task before the next chapter's prompt falls back to a generic
	// description.
	VisualAwaitTimeout time.Duration `yaml:"visual_await_timeout"`

	// SummaryHarvestTimeout bounds how long the final summary synthesis
	// waits for outstanding per-chapter summary tasks.
	SummaryHarvestTimeout time.Duration `yaml:"summary_harvest_timeout"`
}

type LessonsConfig struct {
	BankPath string `yaml:"bank_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides for secrets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1200
	}
	if c.Adventure.Environment == "" {
		c.Adventure.Environment = "dev"
	}
	if c.Adventure.DefaultLength == 0 {
		c.Adventure.DefaultLength = 7
	}
	if c.Adventure.VisualAwaitTimeout == 0 {
		c.Adventure.VisualAwaitTimeout = 5 * time.Second
	}
	if c.Adventure.SummaryHarvestTimeout == 0 {
		c.Adventure.SummaryHarvestTimeout = 3 * time.Second
	}
	if c.Images.Timeout == 0 {
		c.Images.Timeout = 60 * time.Second
	}
}
