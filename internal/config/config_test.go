package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LLM_PROVIDER", "heuristic")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 3000 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v, want 0.0.0.0:3000", cfg.Server)
	}
	if cfg.MCP.BaseURL != "http://127.0.0.1:3333" {
		t.Errorf("MCP base url = %q", cfg.MCP.BaseURL)
	}
	if cfg.MCPTimeout() != 8*time.Second {
		t.Errorf("MCP timeout = %v, want 8s", cfg.MCPTimeout())
	}
	if cfg.STTTimeout() != 15*time.Second || cfg.LLMTimeout() != 15*time.Second {
		t.Errorf("provider timeouts = %v / %v, want 15s", cfg.STTTimeout(), cfg.LLMTimeout())
	}
	if cfg.WebSocket.MaxConnections != 10 {
		t.Errorf("max connections = %d, want 10", cfg.WebSocket.MaxConnections)
	}
	if cfg.HeartbeatInterval() != 30*time.Second {
		t.Errorf("heartbeat = %v, want 30s", cfg.HeartbeatInterval())
	}
	if cfg.Server.CORSOrigin != "*" {
		t.Errorf("cors origin = %q", cfg.Server.CORSOrigin)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "WS_MAX_CONNECTIONS=3\nC4_MCP_BASE_URL=http://nas.local:3333/\nWS_ALLOW_TEXT_COMMANDS=false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// the env file does not override the real environment; clear what it sets
	for _, key := range []string{"WS_MAX_CONNECTIONS", "C4_MCP_BASE_URL", "WS_ALLOW_TEXT_COMMANDS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("PORT", "8080")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebSocket.MaxConnections != 3 {
		t.Errorf("max connections = %d, want 3", cfg.WebSocket.MaxConnections)
	}
	if cfg.MCP.BaseURL != "http://nas.local:3333" {
		t.Errorf("base url = %q, want trailing slash trimmed", cfg.MCP.BaseURL)
	}
	if cfg.WebSocket.AllowTextCommands {
		t.Error("text commands should be disabled")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 3000},
			JWT:       JWTConfig{Secret: "s", Expiry: "7d"},
			STT:       STTConfig{Provider: "mock"},
			LLM:       LLMConfig{Provider: "heuristic"},
			MCP:       MCPConfig{BaseURL: "http://127.0.0.1:3333"},
			WebSocket: WebSocketConfig{MaxConnections: 10},
			Storage:   StorageConfig{AliasStore: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"bad expiry", func(c *Config) { c.JWT.Expiry = "soon" }, "JWT_EXPIRY"},
		{"bad stt", func(c *Config) { c.STT.Provider = "azure" }, "STT_PROVIDER"},
		{"gemini without key", func(c *Config) { c.LLM.Provider = "gemini" }, "GOOGLE_GEMINI_API_KEY"},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai" }, "OPENAI_API_KEY"},
		{"redis without url", func(c *Config) { c.Storage.AliasStore = "redis" }, "REDIS_URL"},
		{"no connections", func(c *Config) { c.WebSocket.MaxConnections = 0 }, "WS_MAX_CONNECTIONS"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestJWTExpiry(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"12h", 12 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"3600", time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"never", 0, false},
		{"none", 0, false},
		{"0", 0, false},
		{"false", 0, false},
		{"", 0, false},
		{"later", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cfg := &Config{JWT: JWTConfig{Expiry: tt.raw}}
			got, err := cfg.JWTExpiry()
			if (err != nil) != tt.wantErr {
				t.Fatalf("JWTExpiry(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("JWTExpiry(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestToolAllowlist(t *testing.T) {
	cfg := &Config{MCP: MCPConfig{ToolAllowlist: " c4_list_rooms, c4_tv_off ;;c4_room_lights_set,"}}
	want := []string{"c4_list_rooms", "c4_tv_off", "c4_room_lights_set"}
	if got := cfg.ToolAllowlist(); !reflect.DeepEqual(got, want) {
		t.Errorf("ToolAllowlist() = %v, want %v", got, want)
	}

	empty := &Config{}
	if got := empty.ToolAllowlist(); len(got) != 0 {
		t.Errorf("ToolAllowlist() = %v, want empty", got)
	}
}
