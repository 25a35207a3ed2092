package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, relative to the working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Empty databaseURL keeps everything in memory.
	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// Empty authJwksURL switches to X-User-Id header auth for local runs.
	AuthJWKSURL string `yaml:"authJwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	ChatRateLimitPerMinute int      `yaml:"chatRateLimitPerMinute"`
	HistoryLimit           int      `yaml:"historyLimit"`
	AccessCacheTTL         string   `yaml:"accessCacheTTL"`
	TrustedProxyCIDRs      []string `yaml:"trustedProxyCidrs"`
	CORSAllowedOrigins     []string `yaml:"corsAllowedOrigins"`

	GenerationProvider string `yaml:"generationProvider"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationAPIKey"`
	GenerationModel    string `yaml:"generationModel"`

	SourceFetchEnabled bool `yaml:"sourceFetchEnabled"`

	MinioEndpoint     string `yaml:"minioEndpoint"`
	MinioAccessKey    string `yaml:"minioAccessKey"`
	MinioSecretKey    string `yaml:"minioSecretKey"`
	MinioBucket       string `yaml:"minioBucket"`
	MinioUseSSL       bool   `yaml:"minioUseSSL"`
	ArtifactURLExpiry string `yaml:"artifactURLExpiry"`
}

// Load reads config from path, then applies environment overrides.
// GROOVIE_CONFIG replaces an empty path. A missing file is fine: defaults
// and environment still apply.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		Port:                   "8080",
		LogLevel:               "info",
		ChatRateLimitPerMinute: 20,
		HistoryLimit:           10,
		SourceFetchEnabled:     true,
	}
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GROOVIE_CONFIG"))
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.AuthJWKSURL, "GROOVIE_AUTH_JWKS_URL")
	setString(&cfg.JWTIssuer, "GROOVIE_JWT_ISSUER")
	setString(&cfg.JWTAudience, "GROOVIE_JWT_AUDIENCE")
	setString(&cfg.GenerationProvider, "GROOVIE_GENERATION_PROVIDER")
	setString(&cfg.GenerationBaseURL, "GROOVIE_GENERATION_BASE_URL")
	setString(&cfg.GenerationAPIKey, "GROOVIE_GENERATION_API_KEY")
	setString(&cfg.GenerationModel, "GROOVIE_GENERATION_MODEL")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	if v := strings.TrimSpace(os.Getenv("GROOVIE_CHAT_RATE_LIMIT_PER_MINUTE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChatRateLimitPerMinute = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GROOVIE_TRUSTED_PROXY_CIDRS")); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("GROOVIE_CORS_ALLOWED_ORIGINS")); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	if cfg.ChatRateLimitPerMinute < 0 {
		return errors.New("config: chatRateLimitPerMinute must be >= 0")
	}
	if cfg.HistoryLimit < 0 {
		return errors.New("config: historyLimit must be >= 0")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	if _, err := parseDuration("accessCacheTTL", cfg.AccessCacheTTL); err != nil {
		return err
	}
	if _, err := parseDuration("artifactURLExpiry", cfg.ArtifactURLExpiry); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.GenerationProvider)) {
	case "", "echo", "openai", "openai-compat", "ollama":
	case "gemini":
		if strings.TrimSpace(cfg.GenerationAPIKey) == "" {
			return errors.New("config: generationAPIKey is required for gemini (set in config.yaml or GROOVIE_GENERATION_API_KEY)")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
		}
	}
	return nil
}

// ParseJWTLeeway parses the leeway duration. Empty means the verifier default.
func ParseJWTLeeway(raw string) (time.Duration, error) {
	return parseDuration("jwtLeeway", raw)
}

// AccessCacheTTLDuration returns the parsed TTL, zero when unset.
func (c FileConfig) AccessCacheTTLDuration() time.Duration {
	d, _ := parseDuration("accessCacheTTL", c.AccessCacheTTL)
	return d
}

func (c FileConfig) ArtifactURLExpiryDuration() time.Duration {
	d, _ := parseDuration("artifactURLExpiry", c.ArtifactURLExpiry)
	return d
}

func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: invalid %s %q", field, raw)
	}
	return d, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
