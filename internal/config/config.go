package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Simulation SimulationConfig `json:"simulation"`
	Providers  []ProviderConfig `json:"providers"`
	Bindings   []BindingConfig  `json:"bindings,omitempty"`
	World      WorldConfig      `json:"world"`
	Gateway    GatewayConfig    `json:"gateway"`
	Database   DatabaseConfig   `json:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type SimulationConfig struct {
	TickInterval  Duration `json:"tick_interval"`
	PoolSize      int      `json:"pool_size"`
	AmbientEvery  int      `json:"ambient_every"`  // ticks between ambient stimuli
	EventBuffer   int      `json:"event_buffer"`   // subscriber mailbox size
	OracleRetries int      `json:"oracle_retries"` // attempts before degrading
	AutoStart     bool     `json:"auto_start"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model,omitempty"`
}

// BindingConfig routes one agent's oracle calls to a provider, with an
// ordered fallback chain.
type BindingConfig struct {
	Agent     string   `json:"agent"`
	Provider  string   `json:"provider"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// WorldConfig seeds the initial rooms and residents.
type WorldConfig struct {
	Rooms  []RoomSeed  `json:"rooms"`
	Agents []AgentSeed `json:"agents"`
}

type RoomSeed struct {
	Name     string `json:"name"`
	Ambience string `json:"ambience,omitempty"`
}

type AgentSeed struct {
	Name  string     `json:"name"`
	Bio   string     `json:"bio"`
	Room  string     `json:"room"`
	Goals []GoalSeed `json:"goals,omitempty"`
}

type GoalSeed struct {
	Description string  `json:"description"`
	Priority    float64 `json:"priority"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
	Channel  string `json:"channel,omitempty"` // platform channel mirrored to/from
	Room     string `json:"room,omitempty"`    // world room the channel maps to
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel,omitempty"`
	Room     string `json:"room,omitempty"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL    string `json:"url"`
	Stream string `json:"stream,omitempty"`
}

// Duration unmarshals from a JSON string like "2s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Simulation.TickInterval == 0 {
		c.Simulation.TickInterval = Duration(2 * time.Second)
	}
	if c.Simulation.PoolSize == 0 {
		c.Simulation.PoolSize = 10
	}
	if c.Simulation.AmbientEvery == 0 {
		c.Simulation.AmbientEvery = 5
	}
	if c.Simulation.EventBuffer == 0 {
		c.Simulation.EventBuffer = 64
	}
	if c.Simulation.OracleRetries == 0 {
		c.Simulation.OracleRetries = 3
	}
}
