// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/apoolo-gateway/config.toml",
	"configs/config.toml",
}

// IDPlaceholder marks where the entity id goes in graphql.upstream_url.
const IDPlaceholder = "{id}"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	ChatAPIKey string `kong:"help='Chat completion API key (overrides config).',env='CHAT_API_KEY'"`
	ChatModel  string `kong:"help='Chat completion model (overrides config).',env='CHAT_MODEL'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	GraphQL  GraphQLConfig  `toml:"graphql"`
	Chat     ChatConfig     `toml:"chat"`
	Upstream UpstreamConfig `toml:"upstream"`
	Cache    CacheConfig    `toml:"cache"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8787); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// GraphQLConfig holds the typed query gateway settings.
type GraphQLConfig struct {
	// UpstreamURL is the REST lookup template; {id} is replaced per query.
	UpstreamURL     string `toml:"upstream_url"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
	// CacheEverything is a pointer so an explicit false survives setDefaults.
	CacheEverything *bool `toml:"cache_everything"`
	Console         *bool `toml:"console"`
}

// ChatConfig holds the conversational proxy settings.
type ChatConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	// APIKeyEnv names the environment variable consulted at request time
	// when APIKey is empty.
	APIKeyEnv string `toml:"api_key_env"`
	Model     string `toml:"model"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
}

// CacheConfig sizes the edge cache.
type CacheConfig struct {
	Size int `toml:"size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/apoolo-gateway/config.toml then configs/config.toml; if neither exists
// the built-in defaults are used.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.ChatAPIKey != "" {
		c.Chat.APIKey = cli.ChatAPIKey
	}
	if cli.ChatModel != "" {
		c.Chat.Model = cli.ChatModel
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Chat.APIKey == "YOUR_API_KEY_HERE" {
		return fmt.Errorf("chat.api_key contains placeholder value; set a real key or leave empty to read %s at request time", c.Chat.APIKeyEnv)
	}

	if err := validateHTTPS("chat.base_url", c.Chat.BaseURL); err != nil {
		return err
	}
	if !strings.Contains(c.GraphQL.UpstreamURL, IDPlaceholder) {
		return fmt.Errorf("graphql.upstream_url must contain %s; got %q", IDPlaceholder, c.GraphQL.UpstreamURL)
	}
	if err := validateHTTPS("graphql.upstream_url", strings.ReplaceAll(c.GraphQL.UpstreamURL, IDPlaceholder, "0")); err != nil {
		return err
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.GraphQL.CacheTTLSeconds < 0 {
		return fmt.Errorf("graphql.cache_ttl_seconds must be non-negative; got %d", c.GraphQL.CacheTTLSeconds)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must be non-negative; got %d", c.Cache.Size)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p == "" || p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/graphql", "/api/chat", "/healthz", "/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
		if p == "/" {
			return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, "/")
		}
	}

	return nil
}

func validateHTTPS(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%s must use HTTPS; got %q", field, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB
	}
	if c.GraphQL.UpstreamURL == "" {
		c.GraphQL.UpstreamURL = "https://pokeapi.co/api/v2/pokemon/{id}"
	}
	if c.GraphQL.CacheTTLSeconds == 0 {
		c.GraphQL.CacheTTLSeconds = 50
	}
	if c.GraphQL.CacheEverything == nil {
		c.GraphQL.CacheEverything = boolPtr(true)
	}
	if c.GraphQL.Console == nil {
		c.GraphQL.Console = boolPtr(true)
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = "https://api.openai.com"
	}
	if c.Chat.APIKeyEnv == "" {
		c.Chat.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-3.5-turbo"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 60
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 1024
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func boolPtr(v bool) *bool { return &v }

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConsoleEnabled reports whether GET /graphql serves the query console.
func (c *GraphQLConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

// CacheAll reports whether lookups are cached regardless of content type.
func (c *GraphQLConfig) CacheAll() bool {
	return c.CacheEverything == nil || *c.CacheEverything
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && c.Chat.APIKey != "" {
		logger.Warn("config file holds a chat API key and is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
