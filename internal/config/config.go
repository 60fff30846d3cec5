// Package config loads vidcoach settings from a JSON5 file with environment
// overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/vidcoach/internal/usage"
)

const (
	DefaultConfigPath = "~/.vidcoach/config.json5"
	DefaultDataDir    = "~/.vidcoach"
)

// Config is the root configuration.
type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Agent     AgentConfig     `json:"agent"`
	Pricing   usage.Pricing   `json:"pricing,omitempty"`
	Tools     ToolsConfig     `json:"tools"`
	Store     StoreConfig     `json:"store"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Log       LogConfig       `json:"log"`
}

type ProviderConfig struct {
	Name              string `json:"name"` // only "anthropic" today
	APIKey            string `json:"api_key,omitempty"`
	APIBase           string `json:"api_base,omitempty"`
	Model             string `json:"model"`
	RequestsPerMinute int    `json:"requests_per_minute,omitempty"` // 0 = unlimited
	Burst             int    `json:"burst,omitempty"`
}

type AgentConfig struct {
	MaxTurns        int    `json:"max_turns"`
	MaxTokens       int    `json:"max_tokens"`
	SystemPrompt    string `json:"system_prompt,omitempty"` // replaces the built-in prompt
	Instruction     string `json:"instruction,omitempty"`   // appended to the built-in prompt
	InjectionAction string `json:"injection_action"`        // log, warn, block, off
}

type ToolsConfig struct {
	MediaDir        string       `json:"media_dir"`
	YtDlpPath       string       `json:"ytdlp_path"`
	FFmpegPath      string       `json:"ffmpeg_path"`
	FFprobePath     string       `json:"ffprobe_path"`
	Format          string       `json:"format,omitempty"`
	MediaCacheSize  int          `json:"media_cache_size"`
	MaxCallsPerHour int          `json:"max_calls_per_hour,omitempty"` // per capability; 0 = unlimited
	ScrubResults    bool         `json:"scrub_results"`
	Frames          FramesConfig `json:"frames"`
	Vision          VisionConfig `json:"vision"`
}

type FramesConfig struct {
	MaxSide  int `json:"max_side"`
	MaxBytes int `json:"max_bytes"`
}

type VisionConfig struct {
	Model           string `json:"model,omitempty"` // defaults to provider.model
	MaxTokens       int    `json:"max_tokens"`
	MaxObservations int    `json:"max_observations"`
}

type StoreConfig struct {
	Driver string `json:"driver"` // none, sqlite, postgres
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty"`
}

type TelemetryConfig struct {
	Enabled     bool              `json:"enabled"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // grpc, http
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
	JSON  bool   `json:"json,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:  "anthropic",
			Model: "claude-sonnet-4-5",
			Burst: 1,
		},
		Agent: AgentConfig{
			MaxTurns:        10,
			MaxTokens:       4096,
			InjectionAction: "warn",
		},
		Tools: ToolsConfig{
			MediaDir:       filepath.Join(DefaultDataDir, "media"),
			YtDlpPath:      "yt-dlp",
			FFmpegPath:     "ffmpeg",
			FFprobePath:    "ffprobe",
			MediaCacheSize: 64,
			ScrubResults:   true,
			Frames:         FramesConfig{MaxSide: 1200, MaxBytes: 1024 * 1024},
			Vision:         VisionConfig{MaxTokens: 2048, MaxObservations: 5},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DefaultDataDir, "runs.db"),
		},
		Telemetry: TelemetryConfig{Protocol: "grpc", ServiceName: "vidcoach"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads path on top of Default and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as indented JSON, which JSON5 readers accept.
func Save(path string, cfg *Config) error {
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		c.Provider.APIBase = v
	}
	if v := os.Getenv("VIDCOACH_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("VIDCOACH_MAX_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VIDCOACH_MAX_TURNS: %w", err)
		}
		c.Agent.MaxTurns = n
	}
	if v := os.Getenv("VIDCOACH_POSTGRES_DSN"); v != "" {
		c.Store.Driver = "postgres"
		c.Store.DSN = v
	}
	if v := os.Getenv("VIDCOACH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Provider.Name != "anthropic" {
		errs = append(errs, fmt.Errorf("provider.name: unsupported provider %q", c.Provider.Name))
	}
	if c.Agent.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("agent.max_turns must be at least 1, got %d", c.Agent.MaxTurns))
	}
	switch c.Agent.InjectionAction {
	case "", "log", "warn", "block", "off":
	default:
		errs = append(errs, fmt.Errorf("agent.injection_action: unknown action %q", c.Agent.InjectionAction))
	}
	if c.Provider.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("provider.requests_per_minute must not be negative"))
	}
	if n := c.Tools.Vision.MaxObservations; n < 0 || n > 20 {
		errs = append(errs, fmt.Errorf("tools.vision.max_observations must be within 0..20, got %d", n))
	}
	switch c.Store.Driver {
	case "", "none", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol: unknown protocol %q", c.Telemetry.Protocol))
	}
	for model, p := range c.Pricing {
		if p.InputPer1M < 0 || p.OutputPer1M < 0 {
			errs = append(errs, fmt.Errorf("pricing.%s: prices must not be negative", model))
		}
	}
	return errors.Join(errs...)
}

// ArchiveEnabled reports whether runs are persisted.
func (c *Config) ArchiveEnabled() bool {
	return c.Store.Driver != "" && c.Store.Driver != "none"
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
