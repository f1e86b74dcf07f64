package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process configuration. Every field is bound to one
// environment variable.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	STT       STTConfig       `mapstructure:"stt"`
	LLM       LLMConfig       `mapstructure:"llm"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Mood      MoodConfig      `mapstructure:"mood"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	Host       string `mapstructure:"host"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expiry string `mapstructure:"expiry"`
}

type STTConfig struct {
	Provider  string `mapstructure:"provider"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	Language  string `mapstructure:"language"`
	APIKey    string `mapstructure:"api_key"`

	// MockTranscript is what the mock provider "hears"
	MockTranscript string `mapstructure:"mock_transcript"`
}

type LLMConfig struct {
	Provider        string `mapstructure:"provider"`
	TimeoutMs       int    `mapstructure:"timeout_ms"`
	AllowHeuristics bool   `mapstructure:"allow_heuristics_fallback"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	GeminiModel     string `mapstructure:"gemini_model"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIModel     string `mapstructure:"openai_model"`
	PromptFile      string `mapstructure:"prompt_file"`
	PromptSHA256    string `mapstructure:"prompt_sha256"`
}

type MCPConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutMs      int    `mapstructure:"timeout_ms"`
	ToolAllowlist  string `mapstructure:"tool_allowlist"`
	CatalogTTLMs   int    `mapstructure:"catalog_ttl_ms"`
	RoomGroupLimit int    `mapstructure:"room_group_limit"`
}

type WebSocketConfig struct {
	MaxConnections      int  `mapstructure:"max_connections"`
	HeartbeatIntervalMs int  `mapstructure:"heartbeat_interval"`
	AllowTextCommands   bool `mapstructure:"allow_text_commands"`
}

type MoodConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MusicSource string `mapstructure:"music_source"`
}

type StorageConfig struct {
	AliasStore            string `mapstructure:"alias_store"`
	RedisURL              string `mapstructure:"redis_url"`
	MongoURI              string `mapstructure:"mongodb_uri"`
	MongoDatabase         string `mapstructure:"mongodb_database"`
	HistoryRetentionHours int    `mapstructure:"history_retention_hours"`
}

type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var bindings = []struct {
	key  string
	envs []string
	def  interface{}
}{
	{"server.port", []string{"PORT"}, 3000},
	{"server.host", []string{"HOST"}, "0.0.0.0"},
	{"server.cors_origin", []string{"CORS_ORIGIN"}, "*"},

	{"jwt.secret", []string{"JWT_SECRET"}, ""},
	{"jwt.expiry", []string{"JWT_EXPIRY"}, "7d"},

	{"stt.provider", []string{"STT_PROVIDER"}, "google"},
	{"stt.timeout_ms", []string{"STT_TIMEOUT_MS"}, 15000},
	{"stt.language", []string{"STT_LANGUAGE"}, "en-US"},
	{"stt.api_key", []string{"GOOGLE_STT_API_KEY"}, ""},
	{"stt.mock_transcript", []string{"STT_MOCK_TRANSCRIPT"}, "turn on the kitchen lights"},

	{"llm.provider", []string{"LLM_PROVIDER"}, "gemini"},
	{"llm.timeout_ms", []string{"LLM_TIMEOUT_MS"}, 15000},
	{"llm.allow_heuristics_fallback", []string{"LLM_ALLOW_HEURISTICS_FALLBACK"}, true},
	{"llm.gemini_api_key", []string{"GOOGLE_GEMINI_API_KEY", "GEMINI_API_KEY"}, ""},
	{"llm.gemini_model", []string{"GOOGLE_GEMINI_MODEL"}, "gemini-2.0-flash"},
	{"llm.openai_api_key", []string{"OPENAI_API_KEY"}, ""},
	{"llm.openai_model", []string{"OPENAI_MODEL"}, "gpt-4o-mini"},
	{"llm.prompt_file", []string{"PLANNER_PROMPT_FILE"}, "prompts/planner_system_prompt.md"},
	{"llm.prompt_sha256", []string{"PLANNER_PROMPT_SHA256"}, ""},

	{"mcp.base_url", []string{"C4_MCP_BASE_URL", "MCP_BASE_URL"}, "http://127.0.0.1:3333"},
	{"mcp.timeout_ms", []string{"C4_MCP_TIMEOUT_MS"}, 8000},
	{"mcp.tool_allowlist", []string{"MCP_TOOL_ALLOWLIST"}, ""},
	{"mcp.catalog_ttl_ms", []string{"MCP_TOOL_CATALOG_TTL_MS"}, 300000},
	{"mcp.room_group_limit", []string{"ROOM_GROUP_LIMIT"}, 12},

	{"websocket.max_connections", []string{"WS_MAX_CONNECTIONS"}, 10},
	{"websocket.heartbeat_interval", []string{"WS_HEARTBEAT_INTERVAL"}, 30000},
	{"websocket.allow_text_commands", []string{"WS_ALLOW_TEXT_COMMANDS"}, true},

	{"mood.enabled", []string{"MOOD_ENABLED"}, true},
	{"mood.music_source", []string{"MOOD_MUSIC_SOURCE"}, ""},

	{"storage.alias_store", []string{"ALIAS_STORE"}, "memory"},
	{"storage.redis_url", []string{"REDIS_URL"}, ""},
	{"storage.mongodb_uri", []string{"MONGODB_URI"}, ""},
	{"storage.mongodb_database", []string{"MONGODB_DATABASE"}, "c4_voice_relay"},
	{"storage.history_retention_hours", []string{"HISTORY_RETENTION_HOURS"}, 720},

	{"rate_limit.per_second", []string{"RATE_LIMIT_PER_SECOND"}, 1.0},
	{"rate_limit.burst", []string{"RATE_LIMIT_BURST"}, 60},

	{"logging.level", []string{"LOG_LEVEL"}, "info"},
	{"logging.format", []string{"LOG_FORMAT"}, "json"},
}

// Load reads envFile when it exists, then the environment. Variables already
// set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		if err := v.BindEnv(append([]string{b.key}, b.envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", b.key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.STT.Provider = strings.ToLower(strings.TrimSpace(c.STT.Provider))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Storage.AliasStore = strings.ToLower(strings.TrimSpace(c.Storage.AliasStore))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.MCP.BaseURL = strings.TrimRight(strings.TrimSpace(c.MCP.BaseURL), "/")
}

// Validate fails fast on settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, err := c.JWTExpiry(); err != nil {
		errs = append(errs, err)
	}

	switch c.STT.Provider {
	case "google", "mock":
	default:
		errs = append(errs, fmt.Errorf("STT_PROVIDER must be google or mock, got %q", c.STT.Provider))
	}

	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_GEMINI_API_KEY is required for the gemini planner"))
		}
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai planner"))
		}
	case "heuristic":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be gemini, openai or heuristic, got %q", c.LLM.Provider))
	}

	if c.MCP.BaseURL == "" {
		errs = append(errs, errors.New("C4_MCP_BASE_URL is required"))
	}
	if c.WebSocket.MaxConnections <= 0 {
		errs = append(errs, errors.New("WS_MAX_CONNECTIONS must be positive"))
	}

	switch c.Storage.AliasStore {
	case "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when ALIAS_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("ALIAS_STORE must be memory or redis, got %q", c.Storage.AliasStore))
	}

	return errors.Join(errs...)
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

var (
	expiryPattern    = regexp.MustCompile(`^(\d+)\s*([smhdw]?)$`)
	allowlistPattern = regexp.MustCompile(`[,;]+`)
)

// JWTExpiry parses JWT_EXPIRY. Zero means tokens never expire ("0", "none",
// "never", "false"). Bare numbers are seconds; s, m, h, d and w suffixes are
// accepted.
func (c *Config) JWTExpiry() (time.Duration, error) {
	raw := strings.ToLower(strings.TrimSpace(c.JWT.Expiry))
	switch raw {
	case "", "0", "none", "never", "false":
		return 0, nil
	}

	m := expiryPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("JWT_EXPIRY %q is not a duration like 3600, 12h or 7d", c.JWT.Expiry)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("JWT_EXPIRY %q: %w", c.JWT.Expiry, err)
	}

	unit := time.Second
	switch m[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(n) * unit, nil
}

// ToolAllowlist splits MCP_TOOL_ALLOWLIST on commas and semicolons. An empty
// result means the built-in list.
func (c *Config) ToolAllowlist() []string {
	var tools []string
	for _, part := range allowlistPattern.Split(c.MCP.ToolAllowlist, -1) {
		if t := strings.TrimSpace(part); t != "" {
			tools = append(tools, t)
		}
	}
	return tools
}

func (c *Config) STTTimeout() time.Duration {
	return time.Duration(c.STT.TimeoutMs) * time.Millisecond
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutMs) * time.Millisecond
}

func (c *Config) MCPTimeout() time.Duration {
	return time.Duration(c.MCP.TimeoutMs) * time.Millisecond
}

func (c *Config) CatalogTTL() time.Duration {
	return time.Duration(c.MCP.CatalogTTLMs) * time.Millisecond
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.WebSocket.HeartbeatIntervalMs) * time.Millisecond
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Storage.HistoryRetentionHours) * time.Hour
}
