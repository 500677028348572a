package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Drive      DriveConfig      `yaml:"drive" mapstructure:"drive"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // "openai", "gemini"
	Model       string  `yaml:"model" mapstructure:"model"`
	OpenAIKey   string  `yaml:"openai_key" mapstructure:"openai_key"`
	GeminiKey   string  `yaml:"gemini_key" mapstructure:"gemini_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"` // OpenAI-compatible endpoint
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

type DriveConfig struct {
	CredentialsFile string        `yaml:"credentials_file" mapstructure:"credentials_file"`
	TokenFile       string        `yaml:"token_file" mapstructure:"token_file"`
	FolderID        string        `yaml:"folder_id" mapstructure:"folder_id"`
	PageSize        int64         `yaml:"page_size" mapstructure:"page_size"`
	AuthTimeout     time.Duration `yaml:"auth_timeout" mapstructure:"auth_timeout"`
}

type PipelineConfig struct {
	Verbose           bool   `yaml:"verbose" mapstructure:"verbose"`
	Memory            bool   `yaml:"memory" mapstructure:"memory"`
	Planning          bool   `yaml:"planning" mapstructure:"planning"`
	MaxRPM            int    `yaml:"max_rpm" mapstructure:"max_rpm"`
	OutputDir         string `yaml:"output_dir" mapstructure:"output_dir"`
	AgentsFile        string `yaml:"agents_file" mapstructure:"agents_file"` // overrides embedded agents.yaml
	TasksFile         string `yaml:"tasks_file" mapstructure:"tasks_file"`   // overrides embedded tasks.yaml
	TrainedAgentsFile string `yaml:"trained_agents_file" mapstructure:"trained_agents_file"`
}

type ExtractionConfig struct {
	MaxFileBytes int64  `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	MaxToolChars int    `yaml:"max_tool_chars" mapstructure:"max_tool_chars"` // corpus cap handed to the model
	CacheEnabled bool   `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CachePath    string `yaml:"cache_path" mapstructure:"cache_path"`
	ShowProgress bool   `yaml:"show_progress" mapstructure:"show_progress"`
}

type StorageConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // sqlite database for task outputs and memory
}

type RateLimitConfig struct {
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"` // empty = in-process limiter
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.1,
			MaxTokens:   4000,
		},
		Drive: DriveConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
			PageSize:        100,
			AuthTimeout:     5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Verbose:           true,
			Memory:            false,
			Planning:          true,
			MaxRPM:            10,
			OutputDir:         ".",
			TrainedAgentsFile: "trained_agents_data.json",
		},
		Extraction: ExtractionConfig{
			MaxFileBytes: 50 * 1024 * 1024,
			MaxToolChars: 400_000,
			CacheEnabled: true,
			CachePath:    filepath.Join(".reqtaker", "extract_cache.db"),
			ShowProgress: true,
		},
		Storage: StorageConfig{
			Path: filepath.Join(".reqtaker", "reqtaker.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "requirements_analysis.log",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("llm", cfg.LLM)
	v.SetDefault("drive", cfg.Drive)
	v.SetDefault("pipeline", cfg.Pipeline)
	v.SetDefault("extraction", cfg.Extraction)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("logging", cfg.Logging)

	v.SetEnvPrefix("REQTAKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("reqtaker")
		v.AddConfigPath(".reqtaker")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".reqtaker"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg, NewKeyringManager())

	return cfg, nil
}

// loadEnvFiles loads .env files; godotenv never overrides variables that
// are already set, so earlier files win.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".reqtaker", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// apiKeySource is the subset of KeyringManager used while resolving keys.
type apiKeySource interface {
	IsAvailable() bool
	GetAPIKey() (string, error)
}

// applyEnvOverrides applies the well-known environment variables.
// OpenAI key precedence: env var, then OS keychain, then config file.
func applyEnvOverrides(cfg *Config, keys apiKeySource) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	} else if cfg.LLM.OpenAIKey == "" && keys != nil && keys.IsAvailable() {
		if keychainKey, err := keys.GetAPIKey(); err == nil && keychainKey != "" {
			cfg.LLM.OpenAIKey = keychainKey
		}
	}

	cfg.LLM.GeminiKey = GetString("GEMINI_API_KEY", cfg.LLM.GeminiKey)
	cfg.LLM.Provider = strings.ToLower(GetString("LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.Model = GetString("MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = GetString("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderForModel(cfg.LLM.Model)
	}

	cfg.Drive.FolderID = GetString("GOOGLE_DRIVE_FOLDER_ID", cfg.Drive.FolderID)
	cfg.Drive.CredentialsFile = expandPath(GetString("GOOGLE_CREDENTIALS_FILE", cfg.Drive.CredentialsFile))
	cfg.Drive.TokenFile = expandPath(GetString("GOOGLE_TOKEN_FILE", cfg.Drive.TokenFile))

	cfg.Pipeline.Verbose = GetBool("CREW_VERBOSE", cfg.Pipeline.Verbose)
	cfg.Pipeline.Memory = GetBool("CREW_MEMORY", cfg.Pipeline.Memory)
	cfg.Pipeline.Planning = GetBool("CREW_PLANNING", cfg.Pipeline.Planning)
	cfg.Pipeline.MaxRPM = GetInt("MAX_RPM", cfg.Pipeline.MaxRPM)
	cfg.Pipeline.OutputDir = expandPath(GetString("OUTPUT_DIR", cfg.Pipeline.OutputDir))

	cfg.Extraction.CacheEnabled = GetBool("EXTRACT_CACHE", cfg.Extraction.CacheEnabled)

	cfg.Storage.Path = expandPath(GetString("LOCAL_DB_PATH", cfg.Storage.Path))

	cfg.RateLimit.RedisAddr = GetString("RATE_LIMIT_REDIS_ADDR", cfg.RateLimit.RedisAddr)
	cfg.RateLimit.RedisPassword = GetString("RATE_LIMIT_REDIS_PASSWORD", cfg.RateLimit.RedisPassword)

	cfg.Logging.Level = GetString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = expandPath(GetString("LOG_FILE", cfg.Logging.File))
}

// ProviderForModel infers the LLM provider from a model name.
func ProviderForModel(model string) string {
	if strings.HasPrefix(strings.ToLower(model), "gemini") {
		return "gemini"
	}
	return "openai"
}

// APIKeyFor returns the configured key for a provider.
func (c *Config) APIKeyFor(provider string) string {
	if provider == "gemini" {
		return c.LLM.GeminiKey
	}
	return c.LLM.OpenAIKey
}

// OutputPath joins name onto the configured output directory.
func (c *Config) OutputPath(name string) string {
	if filepath.IsAbs(name) || c.Pipeline.OutputDir == "" || c.Pipeline.OutputDir == "." {
		return name
	}
	return filepath.Join(c.Pipeline.OutputDir, name)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, path[1:])
}

// Save writes the configuration as YAML. API keys are never written.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	llm := c.LLM
	llm.OpenAIKey = ""
	llm.GeminiKey = ""
	v.Set("llm", llm)
	v.Set("drive", c.Drive)
	v.Set("pipeline", c.Pipeline)
	v.Set("extraction", c.Extraction)
	v.Set("storage", c.Storage)
	v.Set("logging", c.Logging)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
