package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://groovie:groovie@db:5432/groovie?sslmode=disable")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("GROOVIE_CHAT_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("GROOVIE_TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 192.168.0.1")

	path := writeConfig(t, `
port: "9090"
logLevel: "debug"
databaseURL: "postgres://local"
historyLimit: 4
jwtLeeway: "45s"
accessCacheTTL: "2m"
generationProvider: "ollama"
generationModel: "llama3"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9090" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected port/log level: %+v", cfg)
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "postgres://groovie") {
		t.Fatalf("databaseURL not overridden: %q", cfg.DatabaseURL)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("redisAddr = %q", cfg.RedisAddr)
	}
	if cfg.ChatRateLimitPerMinute != 5 {
		t.Fatalf("chatRateLimitPerMinute = %d, want 5", cfg.ChatRateLimitPerMinute)
	}
	if len(cfg.TrustedProxyCIDRs) != 2 || cfg.TrustedProxyCIDRs[1] != "192.168.0.1" {
		t.Fatalf("trustedProxyCidrs = %v", cfg.TrustedProxyCIDRs)
	}
	if cfg.HistoryLimit != 4 {
		t.Fatalf("historyLimit = %d, want 4", cfg.HistoryLimit)
	}
	if got := cfg.AccessCacheTTLDuration(); got != 2*time.Minute {
		t.Fatalf("accessCacheTTL = %v", got)
	}
	if leeway, _ := ParseJWTLeeway(cfg.JWTLeeway); leeway != 45*time.Second {
		t.Fatalf("jwtLeeway = %v", leeway)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "8080" || cfg.ChatRateLimitPerMinute != 20 || cfg.HistoryLimit != 10 || !cfg.SourceFetchEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadUsesGroovieConfigEnv(t *testing.T) {
	path := writeConfig(t, "port: \"7070\"\n")
	t.Setenv("GROOVIE_CONFIG", path)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("port = %q, want 7070", cfg.Port)
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	base := FileConfig{Port: "8080"}
	tests := []struct {
		name   string
		mutate func(*FileConfig)
	}{
		{name: "empty port", mutate: func(c *FileConfig) { c.Port = "" }},
		{name: "negative rate limit", mutate: func(c *FileConfig) { c.ChatRateLimitPerMinute = -1 }},
		{name: "bad leeway", mutate: func(c *FileConfig) { c.JWTLeeway = "soon" }},
		{name: "bad artifact expiry", mutate: func(c *FileConfig) { c.ArtifactURLExpiry = "-1h" }},
		{name: "unknown provider", mutate: func(c *FileConfig) { c.GenerationProvider = "markov" }},
		{name: "gemini without key", mutate: func(c *FileConfig) { c.GenerationProvider = "gemini" }},
		{name: "minio without bucket", mutate: func(c *FileConfig) {
			c.MinioEndpoint = "minio:9000"
			c.MinioAccessKey = "a"
			c.MinioSecretKey = "b"
		}},
	}
	if err := validateConfig(base); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "port: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
