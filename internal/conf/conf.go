package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Bot behaviour
	Bot BotConfig

	// Per-user command rate limiting
	Limiter LimiterConfig

	// Assistant configuration (optional)
	Assistant AssistantConfig

	// HTTP status server
	HTTP HTTPConfig

	// Reply texts and usage guides (loaded from YAML)
	Messages *MessagesConfig

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID       string
	AppSecret   string
	BotName     string
	OutboundRPS float64 // Shared rate for outbound API calls
}

// BotConfig contains command and storage settings
type BotConfig struct {
	Prefix         string
	OwnerClaim     string // Command name that claims ownership of an unowned bot
	DataDir        string
	FuzzyThreshold float64
}

// LimiterConfig contains rate limiter settings
type LimiterConfig struct {
	Enabled       bool
	MaxPerMinute  int
	BlockDuration time.Duration
}

// AssistantConfig contains the OpenAI-compatible assistant settings
type AssistantConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// HTTPConfig contains the status server settings
type HTTPConfig struct {
	Port int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		homeDir, _ := os.UserHomeDir()
		dataDir = filepath.Join(homeDir, ".feishu-guard")
	}

	prefix := os.Getenv("COMMAND_PREFIX")
	if prefix == "" {
		prefix = "!"
	}

	ownerClaim := strings.ToLower(strings.TrimSpace(os.Getenv("OWNER_CLAIM_COMMAND")))
	if ownerClaim == "" {
		ownerClaim = "admin"
	}

	// Assistant key falls back to the Moonshot variable
	apiKey := os.Getenv("ASSISTANT_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("MOONSHOT_API_KEY")
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:       os.Getenv("FEISHU_APP_ID"),
			AppSecret:   os.Getenv("FEISHU_APP_SECRET"),
			BotName:     os.Getenv("BOT_NAME"),
			OutboundRPS: envFloat("OUTBOUND_RPS", 5),
		},
		Bot: BotConfig{
			Prefix:         prefix,
			OwnerClaim:     ownerClaim,
			DataDir:        dataDir,
			FuzzyThreshold: envFloat("FUZZY_THRESHOLD", usecase.DefaultFuzzyThreshold),
		},
		Limiter: LimiterConfig{
			Enabled:       os.Getenv("RATE_LIMIT_ENABLED") != "false",
			MaxPerMinute:  envInt("MAX_CMDS_MINUTE", 5),
			BlockDuration: time.Duration(envInt("BLOCK_TIME_SECONDS", 60)) * time.Second,
		},
		Assistant: AssistantConfig{
			APIKey:  apiKey,
			BaseURL: os.Getenv("ASSISTANT_BASE_URL"),
			Model:   os.Getenv("ASSISTANT_MODEL"),
		},
		HTTP: HTTPConfig{
			Port: envInt("HTTP_PORT", 9876),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}
}

// OwnerClaimToken is the exact message body that claims ownership
func (c *Config) OwnerClaimToken() string {
	return strings.ToLower(c.Bot.Prefix + c.Bot.OwnerClaim)
}

// DBPath is the SQLite policy database location
func (c *Config) DBPath() string {
	return filepath.Join(c.Bot.DataDir, "guard.db")
}

// ToRateLimitConfig converts to the limiter usecase configuration
func (c *LimiterConfig) ToRateLimitConfig() usecase.RateLimitConfig {
	return usecase.RateLimitConfig{
		Enabled:      c.Enabled,
		MaxPerMinute: c.MaxPerMinute,
		BlockTime:    c.BlockDuration,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if strings.TrimSpace(c.Bot.Prefix) == "" || strings.ContainsAny(c.Bot.Prefix, " \t\n") {
		return &ConfigError{Field: "COMMAND_PREFIX", Message: "must be non-empty without whitespace"}
	}
	if c.Limiter.Enabled && c.Limiter.MaxPerMinute <= 0 {
		return &ConfigError{Field: "MAX_CMDS_MINUTE", Message: "must be positive"}
	}
	if c.Limiter.BlockDuration < 0 {
		return &ConfigError{Field: "BLOCK_TIME_SECONDS", Message: "must not be negative"}
	}
	if c.Bot.FuzzyThreshold < 0 || c.Bot.FuzzyThreshold > 1 {
		return &ConfigError{Field: "FUZZY_THRESHOLD", Message: "must be between 0 and 1"}
	}
	if c.Feishu.OutboundRPS <= 0 {
		return &ConfigError{Field: "OUTBOUND_RPS", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
