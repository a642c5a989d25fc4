package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	App        AppConfig                 `json:"app"`
	Gateways   map[string]GatewayConfig  `json:"gateways"`
	Providers  map[string]ProviderConfig `json:"providers"`
	Memory     MemoryConfig              `json:"memory"`
	Engine     EngineConfig              `json:"engine"`
	Prompts    PromptsConfig             `json:"prompts"`
	Governance GovernanceConfig          `json:"governance"`
	Search     SearchConfig              `json:"search"`
	Logging    LoggingConfig             `json:"logging"`
	Metrics    MetricsConfig             `json:"metrics"`
	Pipelines  map[string][]string       `json:"pipelines,omitempty"`
}

type AppConfig struct {
	Name string `json:"name"`
}

type GatewayConfig struct {
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

// MemoryConfig points at the project catalog database.
type MemoryConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Seed string `json:"seed,omitempty"`
}

type EngineConfig struct {
	FanOutLimit    int      `json:"fan_out_limit"`
	StepTimeout    Duration `json:"step_timeout"`
	RequestTimeout Duration `json:"request_timeout"`
}

type PromptsConfig struct {
	Dir string `json:"dir"`
}

type GovernanceConfig struct {
	DeniedTools     []string `json:"denied_tools"`
	DeniedArguments []string `json:"denied_arguments"`
}

type SearchConfig struct {
	MaxResults int `json:"max_results"`
}

type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
	LLMLog      string `json:"llm_log"`
}

type MetricsConfig struct {
	Addr string `json:"addr"`
}

// Duration reads "20s"-style strings from JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"20s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.expandSecrets()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "WhatsMAP"
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "sqlite"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "whatsmap.db"
	}
	if c.Engine.FanOutLimit <= 0 {
		c.Engine.FanOutLimit = 8
	}
	if c.Engine.StepTimeout.Duration <= 0 {
		c.Engine.StepTimeout.Duration = 20 * time.Second
	}
	if c.Engine.RequestTimeout.Duration <= 0 {
		c.Engine.RequestTimeout.Duration = 60 * time.Second
	}
	if c.Prompts.Dir == "" {
		c.Prompts.Dir = "./prompts"
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.LLMLog == "" {
		c.Logging.LLMLog = "logs/llm.jsonl"
	}
}

// expandSecrets resolves ${VAR} references in keys and tokens.
func (c *Config) expandSecrets() {
	for name, p := range c.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		c.Providers[name] = p
	}
	for name, g := range c.Gateways {
		g.Token = os.ExpandEnv(g.Token)
		c.Gateways[name] = g
	}
}

// GetDefaultProvider returns the first enabled provider, by name order so
// the choice is stable.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	var first string
	for name, p := range c.Providers {
		if p.Enabled && (first == "" || strings.Compare(name, first) < 0) {
			first = name
		}
	}
	if first == "" {
		return "", ProviderConfig{}
	}
	return first, c.Providers[first]
}

// GetGatewayConfig returns a gateway's config if it is enabled and has a token.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
