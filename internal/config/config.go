// Package config loads seqsync settings from seqsync.yaml, SEQSYNC_*
// environment variables and an optional .env file, in increasing order of
// precedence over the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// EnvPrefix prefixes every environment override, e.g. SEQSYNC_SEQUENCE_BPM.
const EnvPrefix = "SEQSYNC"

type SequenceConfig struct {
	Bars        int     `mapstructure:"bars" yaml:"bars"`
	StepsPerBar int     `mapstructure:"steps_per_bar" yaml:"steps_per_bar"`
	BPM         float64 `mapstructure:"bpm" yaml:"bpm"`
	History     int     `mapstructure:"history" yaml:"history"` // 0 keeps everything
}

type PlaybackConfig struct {
	Loop           bool    `mapstructure:"loop" yaml:"loop"`
	FrameRate      int     `mapstructure:"frame_rate" yaml:"frame_rate"`
	RecordMinScore float64 `mapstructure:"record_min_score" yaml:"record_min_score"`
}

type RotationConfig struct {
	Friction    float64 `mapstructure:"friction" yaml:"friction"`
	MinVelocity float64 `mapstructure:"min_velocity" yaml:"min_velocity"`
}

type ClassifierConfig struct {
	MinScore    float64 `mapstructure:"min_score" yaml:"min_score"`
	DepthPolicy string  `mapstructure:"depth_policy" yaml:"depth_policy"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Config is the effective configuration.
type Config struct {
	Sequence   SequenceConfig   `mapstructure:"sequence" yaml:"sequence"`
	Playback   PlaybackConfig   `mapstructure:"playback" yaml:"playback"`
	Rotation   RotationConfig   `mapstructure:"rotation" yaml:"rotation"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Journal    JournalConfig    `mapstructure:"journal" yaml:"journal"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Sequence: SequenceConfig{
			Bars:        1,
			StepsPerBar: sequence.DefaultStepsPerBar,
			BPM:         sequence.DefaultBPM,
			History:     0,
		},
		Playback: PlaybackConfig{
			Loop:           false,
			FrameRate:      60,
			RecordMinScore: 0.5,
		},
		Rotation: RotationConfig{
			Friction:    0.95,
			MinVelocity: 0.02,
		},
		Classifier: ClassifierConfig{
			MinScore:    biomech.MinScore,
			DepthPolicy: biomech.DefaultDepthPolicy().Name(),
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "seqsync.db",
		},
		Log: LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("sequence.bars", d.Sequence.Bars)
	v.SetDefault("sequence.steps_per_bar", d.Sequence.StepsPerBar)
	v.SetDefault("sequence.bpm", d.Sequence.BPM)
	v.SetDefault("sequence.history", d.Sequence.History)
	v.SetDefault("playback.loop", d.Playback.Loop)
	v.SetDefault("playback.frame_rate", d.Playback.FrameRate)
	v.SetDefault("playback.record_min_score", d.Playback.RecordMinScore)
	v.SetDefault("rotation.friction", d.Rotation.Friction)
	v.SetDefault("rotation.min_velocity", d.Rotation.MinVelocity)
	v.SetDefault("classifier.min_score", d.Classifier.MinScore)
	v.SetDefault("classifier.depth_policy", d.Classifier.DepthPolicy)
	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("log.level", d.Log.Level)
}

// Load reads configuration. With an empty path it looks for seqsync.yaml in
// the working directory and falls back to defaults when none exists; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("seqsync")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv exports the variables of a .env file into the process
// environment. A missing file is not an error; variables already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	if c.Sequence.Bars < 1 {
		return fmt.Errorf("sequence.bars must be at least 1, got %d", c.Sequence.Bars)
	}
	if c.Sequence.StepsPerBar < 1 {
		return fmt.Errorf("sequence.steps_per_bar must be at least 1, got %d", c.Sequence.StepsPerBar)
	}
	if c.Sequence.BPM < sequence.MinBPM || c.Sequence.BPM > sequence.MaxBPM {
		return fmt.Errorf("sequence.bpm must be within [%v, %v], got %v", sequence.MinBPM, sequence.MaxBPM, c.Sequence.BPM)
	}
	if c.Sequence.History != 0 && c.Sequence.History < 2 {
		return fmt.Errorf("sequence.history must be 0 (unlimited) or at least 2, got %d", c.Sequence.History)
	}
	if c.Playback.FrameRate < 1 || c.Playback.FrameRate > 1000 {
		return fmt.Errorf("playback.frame_rate must be within [1, 1000], got %d", c.Playback.FrameRate)
	}
	if c.Playback.RecordMinScore < 0 || c.Playback.RecordMinScore > 1 {
		return fmt.Errorf("playback.record_min_score must be within [0, 1], got %v", c.Playback.RecordMinScore)
	}
	if c.Rotation.Friction <= 0 || c.Rotation.Friction >= 1 {
		return fmt.Errorf("rotation.friction must be within (0, 1), got %v", c.Rotation.Friction)
	}
	if c.Rotation.MinVelocity <= 0 {
		return fmt.Errorf("rotation.min_velocity must be positive, got %v", c.Rotation.MinVelocity)
	}
	if c.Classifier.MinScore < 0 || c.Classifier.MinScore > 1 {
		return fmt.Errorf("classifier.min_score must be within [0, 1], got %v", c.Classifier.MinScore)
	}
	if _, err := biomech.DepthPolicyByName(c.Classifier.DepthPolicy); err != nil {
		return fmt.Errorf("classifier.depth_policy: %w", err)
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// FrameInterval is the playback frame period.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Playback.FrameRate)
}

// NewClassifier builds the configured pose classifier.
func (c *Config) NewClassifier() (biomech.Classifier, error) {
	policy, err := biomech.DepthPolicyByName(c.Classifier.DepthPolicy)
	if err != nil {
		return biomech.Classifier{}, err
	}
	return biomech.Classifier{MinScore: c.Classifier.MinScore, Depth: policy}, nil
}

// SlogLevel maps log.level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
