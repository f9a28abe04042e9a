// Package config layers defaults, a config file, a .env file, ODIN_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	log "log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	PlatformLocal  = "local"
	PlatformBridge = "bridge"
	PlatformReplay = "replay"
)

type Config struct {
	Log    string `mapstructure:"log"`
	Env    string `mapstructure:"env"`
	Config string `mapstructure:"config"`

	Platform     string   `mapstructure:"platform"`
	BridgeURL    string   `mapstructure:"bridge_url"`
	WhisperModel string   `mapstructure:"whisper_model"`
	Lang         string   `mapstructure:"lang"`
	Replay       []string `mapstructure:"replay"`
	Duck         bool     `mapstructure:"duck"`

	Assistant      string        `mapstructure:"assistant"`
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	VisionModel    string        `mapstructure:"vision_model"`
	AssistantModel string        `mapstructure:"assistant_model"`
	Proxy          string        `mapstructure:"proxy"`
	QuotaCooldown  time.Duration `mapstructure:"quota_cooldown"`

	Volume float64 `mapstructure:"volume"`
	Rate   float64 `mapstructure:"rate"`
	Haptic string  `mapstructure:"haptic"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	DataDir     string `mapstructure:"data_dir"`
	Socket      string `mapstructure:"socket"`
}

// Flags declares the daemon's command-line surface.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("odin-daemon", pflag.ContinueOnError)
	f.StringP("log", "l", "info", "Log level (debug, info, warn, error)")
	f.StringP("env", "e", ".env", "Env file path")
	f.StringP("config", "c", "", "Config file (yaml, json or toml)")
	f.StringP("platform", "P", PlatformLocal, "Capability platform (local, bridge, replay)")
	f.StringP("bridge-url", "u", "ws://localhost:8092/odin", "Websocket url of the device bridge")
	f.StringP("whisper-model", "m", "third_party/whisper.cpp/models/ggml-base.en.bin", "Whisper model path")
	f.String("lang", "en-US", "Recognition language")
	f.StringSlice("replay", nil, "Audio files heard in order by the replay platform")
	f.Bool("duck", true, "Lower other audio while capturing a phrase")
	f.StringP("assistant", "a", "gemini", "Assistant backend (gemini, openai)")
	f.String("vision-model", "", "Vision model name")
	f.String("assistant-model", "", "Assistant model name")
	f.StringP("proxy", "p", "", "Socks proxy address")
	f.Duration("quota-cooldown", 10*time.Second, "Pause after a collaborator quota error")
	f.Float64("volume", 1, "Initial voice volume (0-1)")
	f.Float64("rate", 1, "Initial voice rate (0.5-2)")
	f.String("haptic", "medium", "Haptic intensity (off, low, medium, high)")
	f.String("metrics-addr", ":9464", "Prometheus listen address, empty to disable")
	f.StringP("data-dir", "d", "", "History directory, empty for in-memory")
	f.StringP("socket", "s", "/tmp/odin.sock", "Control socket path")
	return f
}

// Load resolves the configuration for the parsed flags.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			log.Warn("Failed to bind flag", "flag", f.Name, "err", err)
		}
	})

	if err := loadDotenv(v.GetString("env")); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("ODIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.BindEnv("gemini_api_key", "ODIN_GEMINI_API_KEY", "GEMINI_API_KEY", "API_KEY")
	v.BindEnv("openai_api_key", "ODIN_OPENAI_API_KEY", "OPENAI_API_KEY")

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func (c *Config) validate() error {
	switch c.Platform {
	case PlatformLocal, PlatformBridge, PlatformReplay:
	default:
		return fmt.Errorf("unknown platform %q", c.Platform)
	}
	switch c.Assistant {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown assistant %q", c.Assistant)
	}
	if c.Platform == PlatformReplay && len(c.Replay) == 0 {
		return errors.New("replay platform needs at least one --replay file")
	}
	return nil
}

// LogLevel maps the log key to a slog level, info when unknown.
func (c *Config) LogLevel() log.Level {
	switch strings.ToLower(c.Log) {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
