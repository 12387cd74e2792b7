// Package config loads specgraph settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds specgraph configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Server    ServerConfig    `toml:"server"`
	Surface   SurfaceConfig   `toml:"surface"`
	Physics   PhysicsConfig   `toml:"physics"`
	Highlight HighlightConfig `toml:"highlight"`
	Log       LogConfig       `toml:"log"`
}

// APIConfig points at the graph-data and query collaborators.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// ServerConfig controls the reference backend.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	Dataset        string   `toml:"dataset"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// SurfaceConfig controls the render surface.
type SurfaceConfig struct {
	Width      float64 `toml:"width"`
	Height     float64 `toml:"height"`
	FPS        int     `toml:"fps"`
	NodeRadius float64 `toml:"node_radius"`
	LabelSize  float64 `toml:"label_size"`
	FitPadding float64 `toml:"fit_padding"`
}

// PhysicsConfig holds the force simulation parameters.
type PhysicsConfig struct {
	LinkDistance    float64 `toml:"link_distance"`
	Charge          float64 `toml:"charge"`
	Theta           float64 `toml:"theta"`
	DistanceMin     float64 `toml:"distance_min"`
	AlphaMin        float64 `toml:"alpha_min"`
	AlphaDecay      float64 `toml:"alpha_decay"`
	AlphaTargetDrag float64 `toml:"alpha_target_drag"`
	VelocityDecay   float64 `toml:"velocity_decay"`
	CenterStrength  float64 `toml:"center_strength"`
	MaxTicks        int     `toml:"max_ticks"`
}

// HighlightConfig selects how highlights from a previous snapshot are treated.
type HighlightConfig struct {
	StalePolicy string `toml:"stale_policy"` // "inert" or "discard"
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration is a time.Duration written as a string such as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000",
			Timeout: Duration{10 * time.Second},
		},
		Server: ServerConfig{
			Addr:           ":5000",
			Dataset:        "data/unified_graph.json",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Surface: SurfaceConfig{
			Width:      1200,
			Height:     900,
			FPS:        60,
			NodeRadius: 4,
			LabelSize:  10,
			FitPadding: 10,
		},
		Physics: PhysicsConfig{
			LinkDistance:    30,
			Charge:          -30,
			Theta:           0.9,
			DistanceMin:     1,
			AlphaMin:        0.001,
			AlphaDecay:      0.0228,
			AlphaTargetDrag: 0.3,
			VelocityDecay:   0.4,
			CenterStrength:  0.1,
			MaxTicks:        1000,
		},
		Highlight: HighlightConfig{StalePolicy: "inert"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load overlays the TOML file at path onto the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks values the simulation cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Surface.Width <= 0 || c.Surface.Height <= 0:
		return fmt.Errorf("surface dimensions must be positive, got %gx%g", c.Surface.Width, c.Surface.Height)
	case c.Surface.FPS <= 0:
		return fmt.Errorf("surface fps must be positive, got %d", c.Surface.FPS)
	case c.Physics.AlphaDecay <= 0 || c.Physics.AlphaDecay >= 1:
		return fmt.Errorf("physics alpha_decay must be in (0,1), got %g", c.Physics.AlphaDecay)
	case c.Physics.VelocityDecay < 0 || c.Physics.VelocityDecay > 1:
		return fmt.Errorf("physics velocity_decay must be in [0,1], got %g", c.Physics.VelocityDecay)
	case c.Physics.AlphaMin <= 0:
		return fmt.Errorf("physics alpha_min must be positive, got %g", c.Physics.AlphaMin)
	}
	switch c.Highlight.StalePolicy {
	case "inert", "discard":
	default:
		return fmt.Errorf("highlight stale_policy must be inert or discard, got %q", c.Highlight.StalePolicy)
	}
	return nil
}
