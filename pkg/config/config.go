// Package config handles loading and saving fg configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config: ~/.config/forcegraph/config.yaml
//
// Every field has a default, so a missing file is not an error. A handful of
// values can be overridden from the environment for quick experiments:
//
//	FG_QUERY_TIMEOUT_MS  interaction.query_timeout
//	FG_FRAME_MS          simulation.frame_interval
//	FG_DRAG_ALPHA        interaction.drag_alpha
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/forcegraph/pkg/model"
)

const appName = "forcegraph"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// SimulationConfig tunes the force integrator.
type SimulationConfig struct {
	Settings      model.Settings `yaml:"settings"`
	InitialAlpha  float64        `yaml:"initial_alpha"`
	AlphaMin      float64        `yaml:"alpha_min"`
	AlphaDecay    float64        `yaml:"alpha_decay,omitempty"` // 0 = derive from alpha_min over 300 steps
	VelocityDecay float64        `yaml:"velocity_decay"`
	FrameInterval time.Duration  `yaml:"frame_interval"` // 0 = step as fast as possible
}

// InteractionConfig tunes the pointer router.
type InteractionConfig struct {
	QueryTimeout      time.Duration `yaml:"query_timeout"`
	HitTolerance      float64       `yaml:"hit_tolerance"` // screen pixels
	DragAlpha         float64       `yaml:"drag_alpha"`
	DoubleTapInterval time.Duration `yaml:"double_tap_interval"`
	DoubleTapDistance float64       `yaml:"double_tap_distance"`
	MinScale          float64       `yaml:"min_scale"`
	MaxScale          float64       `yaml:"max_scale"`
}

// UIConfig holds terminal host preferences.
type UIConfig struct {
	FPS     int  `yaml:"fps"`
	NoColor bool `yaml:"no_color,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Simulation  SimulationConfig  `yaml:"simulation"`
	Interaction InteractionConfig `yaml:"interaction"`
	UI          UIConfig          `yaml:"ui"`
}

// DefaultConfig returns a Config with the widget's defaults.
func DefaultConfig() Config {
	return Config{
		Simulation: SimulationConfig{
			Settings:      model.DefaultSettings(),
			InitialAlpha:  1,
			AlphaMin:      0.001,
			VelocityDecay: 0.4,
			FrameInterval: 16 * time.Millisecond,
		},
		Interaction: InteractionConfig{
			QueryTimeout:      time.Second,
			HitTolerance:      4,
			DragAlpha:         0.05,
			DoubleTapInterval: 500 * time.Millisecond,
			DoubleTapDistance: 12,
			MinScale:          0.05,
			MaxScale:          20,
		},
		UI: UIConfig{
			FPS: 30,
		},
	}
}

// EffectiveAlphaDecay returns the per-step energy decay, deriving it from AlphaMin when unset.
func (s SimulationConfig) EffectiveAlphaDecay() float64 {
	if s.AlphaDecay > 0 {
		return s.AlphaDecay
	}
	return 1 - math.Pow(s.AlphaMin, 1.0/300)
}

// ConfigDir returns the XDG config directory for fg.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		applyEnv(&cfg)
		return cfg, cfg.Validate()
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks ranges the engine and router rely on.
func (c Config) Validate() error {
	if err := c.Simulation.Settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	s := c.Simulation
	if s.AlphaMin <= 0 || s.AlphaMin >= 1 {
		return fmt.Errorf("%w: simulation.alpha_min must be in (0,1), got %v", ErrInvalidConfig, s.AlphaMin)
	}
	if s.AlphaDecay < 0 || s.AlphaDecay >= 1 {
		return fmt.Errorf("%w: simulation.alpha_decay must be in [0,1), got %v", ErrInvalidConfig, s.AlphaDecay)
	}
	if s.VelocityDecay < 0 || s.VelocityDecay > 1 {
		return fmt.Errorf("%w: simulation.velocity_decay must be in [0,1], got %v", ErrInvalidConfig, s.VelocityDecay)
	}
	if s.InitialAlpha < 0 {
		return fmt.Errorf("%w: simulation.initial_alpha must be >= 0", ErrInvalidConfig)
	}
	if s.FrameInterval < 0 {
		return fmt.Errorf("%w: simulation.frame_interval must be >= 0", ErrInvalidConfig)
	}

	i := c.Interaction
	if i.QueryTimeout <= 0 {
		return fmt.Errorf("%w: interaction.query_timeout must be > 0", ErrInvalidConfig)
	}
	if i.MinScale <= 0 || i.MaxScale < i.MinScale {
		return fmt.Errorf("%w: interaction scale extent [%v, %v] is empty", ErrInvalidConfig, i.MinScale, i.MaxScale)
	}
	if i.DragAlpha < 0 || i.HitTolerance < 0 {
		return fmt.Errorf("%w: interaction.drag_alpha and hit_tolerance must be >= 0", ErrInvalidConfig)
	}
	if c.UI.FPS <= 0 {
		return fmt.Errorf("%w: ui.fps must be > 0", ErrInvalidConfig)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if ms, ok := envPositiveInt("FG_QUERY_TIMEOUT_MS"); ok {
		cfg.Interaction.QueryTimeout = time.Duration(ms) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("FG_FRAME_MS")); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.Simulation.FrameInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("FG_DRAG_ALPHA")); v != "" {
		if a, err := strconv.ParseFloat(v, 64); err == nil && a >= 0 {
			cfg.Interaction.DragAlpha = a
		}
	}
}

func envPositiveInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
