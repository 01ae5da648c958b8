package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("FEISHU_APP_ID", "cli_x")
	t.Setenv("FEISHU_APP_SECRET", "secret")
	t.Setenv("COMMAND_PREFIX", "")
	t.Setenv("MAX_CMDS_MINUTE", "")
	t.Setenv("BLOCK_TIME_SECONDS", "")
	t.Setenv("RATE_LIMIT_ENABLED", "")
	t.Setenv("OWNER_CLAIM_COMMAND", "")

	cfg := LoadFromEnv()
	if cfg.Bot.Prefix != "!" {
		t.Errorf("expected default prefix '!', got %q", cfg.Bot.Prefix)
	}
	if cfg.OwnerClaimToken() != "!admin" {
		t.Errorf("expected owner claim token '!admin', got %q", cfg.OwnerClaimToken())
	}
	if !cfg.Limiter.Enabled || cfg.Limiter.MaxPerMinute != 5 || cfg.Limiter.BlockDuration != time.Minute {
		t.Errorf("unexpected limiter defaults: %+v", cfg.Limiter)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("COMMAND_PREFIX", "/")
	t.Setenv("OWNER_CLAIM_COMMAND", "Claim")
	t.Setenv("MAX_CMDS_MINUTE", "12")
	t.Setenv("BLOCK_TIME_SECONDS", "30")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("FUZZY_THRESHOLD", "0.25")
	t.Setenv("ASSISTANT_API_KEY", "")
	t.Setenv("MOONSHOT_API_KEY", "sk-moon")

	cfg := LoadFromEnv()
	if cfg.OwnerClaimToken() != "/claim" {
		t.Errorf("expected '/claim', got %q", cfg.OwnerClaimToken())
	}
	rl := cfg.Limiter.ToRateLimitConfig()
	if rl.Enabled || rl.MaxPerMinute != 12 || rl.BlockTime != 30*time.Second {
		t.Errorf("unexpected limiter config: %+v", rl)
	}
	if cfg.Bot.FuzzyThreshold != 0.25 {
		t.Errorf("expected threshold 0.25, got %v", cfg.Bot.FuzzyThreshold)
	}
	if cfg.Assistant.APIKey != "sk-moon" {
		t.Errorf("expected Moonshot key fallback, got %q", cfg.Assistant.APIKey)
	}
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Feishu:  FeishuConfig{AppID: "a", AppSecret: "b", OutboundRPS: 5},
			Bot:     BotConfig{Prefix: "!", FuzzyThreshold: 0.4},
			Limiter: LimiterConfig{Enabled: true, MaxPerMinute: 5},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing credentials", func(c *Config) { c.Feishu.AppSecret = "" }, "FEISHU_APP_ID/FEISHU_APP_SECRET"},
		{"prefix with space", func(c *Config) { c.Bot.Prefix = "! " }, "COMMAND_PREFIX"},
		{"zero limit", func(c *Config) { c.Limiter.MaxPerMinute = 0 }, "MAX_CMDS_MINUTE"},
		{"threshold out of range", func(c *Config) { c.Bot.FuzzyThreshold = 1.5 }, "FUZZY_THRESHOLD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			var cfgErr *ConfigError
			if err := cfg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("expected ConfigError on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoadMessagesConfig_MergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	content := "guard:\n  antilink: \"no links {user}\"\nusage:\n  mute: \"{prefix}mute @someone\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, loaded, err := LoadMessagesConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded != path {
		t.Errorf("expected loaded path %s, got %s", path, loaded)
	}
	if cfg.Guard.AntiLink != "no links {user}" {
		t.Errorf("file value not applied: %q", cfg.Guard.AntiLink)
	}
	if cfg.Guard.AntiFlood != DefaultMessagesConfig().Guard.AntiFlood {
		t.Errorf("default not filled: %q", cfg.Guard.AntiFlood)
	}
	if cfg.Usage["mute"] != "{prefix}mute @someone" {
		t.Errorf("usage override missing: %v", cfg.Usage)
	}
	if cfg.GuardMessages().AntiLink != "no links {user}" {
		t.Error("guard messages not converted")
	}
}

func TestLoadMessagesConfig_MissingExplicitFile(t *testing.T) {
	if _, _, err := LoadMessagesConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}
}
