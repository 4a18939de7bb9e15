// Package config loads server settings from a yaml file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// DefaultPath is read when THIRTY_CONFIG is unset.
const DefaultPath = "config.yaml"

type Config struct {
	Server   ServerConfig `yaml:"server"`
	Game     GameConfig   `yaml:"game"`
	NATS     NATSConfig   `yaml:"nats"`
	Redis    RedisConfig  `yaml:"redis"`
	Video    VideoConfig  `yaml:"video"`
	Relay    RelayConfig  `yaml:"relay"`
	LogLevel string       `yaml:"log_level"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GameConfig holds the defaults a new game starts with.
type GameConfig struct {
	Segments          map[string]int `yaml:"segments"`
	MinPlayers        int            `yaml:"min_players"`
	PresenceTTL       time.Duration  `yaml:"presence_ttl"`
	HeartbeatInterval time.Duration  `yaml:"heartbeat_interval"`
	TickInterval      time.Duration  `yaml:"tick_interval"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

type VideoConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type RelayConfig struct {
	Channel      string        `yaml:"channel"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	HealthPort   string        `yaml:"health_port"`
}

// Default returns the built-in settings. Infrastructure URLs are empty,
// which means that piece runs degraded.
func Default() Config {
	segments := make(map[string]int)
	for code, n := range models.DefaultSegmentSettings() {
		segments[string(code)] = n
	}
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Game: GameConfig{
			Segments:          segments,
			MinPlayers:        2,
			PresenceTTL:       30 * time.Second,
			HeartbeatInterval: 10 * time.Second,
			TickInterval:      time.Second,
		},
		Redis: RedisConfig{TTL: 5 * time.Second},
		Relay: RelayConfig{
			Channel:      "thirty_row_changes",
			PollInterval: 5 * time.Second,
			BatchSize:    100,
			HealthPort:   "8082",
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults and then overlays the environment. A
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = getEnv("THIRTY_CONFIG", DefaultPath)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("path", path).Msg("config file not found, using defaults")
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	default:
		// A file that lists segments replaces the default map instead of
		// merging into it.
		defaults := cfg.Game.Segments
		cfg.Game.Segments = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
		if cfg.Game.Segments == nil {
			cfg.Game.Segments = defaults
		}
	}

	cfg.applyEnv()
	if _, err := cfg.SegmentSettings(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Video.URL = getEnv("VIDEO_API_URL", c.Video.URL)
	c.Video.APIKey = getEnv("VIDEO_API_KEY", c.Video.APIKey)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Game.MinPlayers = getEnvAsInt("MIN_PLAYERS", c.Game.MinPlayers)
	c.Relay.HealthPort = getEnv("RELAY_HEALTH_PORT", c.Relay.HealthPort)
}

// SegmentSettings converts the configured question counts.
func (c Config) SegmentSettings() (models.SegmentSettings, error) {
	out := make(models.SegmentSettings, len(c.Game.Segments))
	for code, n := range c.Game.Segments {
		out[models.SegmentCode(strings.ToUpper(code))] = n
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("game.segments: %w", err)
	}
	return out, nil
}

// Level parses LogLevel, falling back to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
