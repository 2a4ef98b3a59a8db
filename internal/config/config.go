package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Environment string            `yaml:"-"`
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Redis       RedisConfig       `yaml:"redis"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Room        RoomConfig        `yaml:"room"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	HSTS           bool     `yaml:"hsts"`
}

type AuthConfig struct {
	// Required rejects identify requests without a signed token
	Required bool   `yaml:"required"`
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
}

// RedisConfig enables shared presence tracking when Addr is set
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PresenceTTL time.Duration `yaml:"presenceTTL"`
}

type ArchiveConfig struct {
	Driver   string `yaml:"driver"` // none, mongodb or postgres
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type MatchmakingConfig struct {
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

type RoomConfig struct {
	GracePeriod      time.Duration `yaml:"gracePeriod"`
	Retention        time.Duration `yaml:"retention"`
	ForfeitOnAbandon *bool         `yaml:"forfeitOnAbandon"`
}

type RateLimitConfig struct {
	UpgradesPerMinute int `yaml:"upgradesPerMinute"`
}

// Load reads configs/config.<env>.yaml, or the same name under CONFIG_DIR
func Load(env string) (*Config, error) {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "configs"
	}

	filename := fmt.Sprintf("config.%s.yaml", env)
	configPath := filepath.Join(configDir, filename)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	cfg.Environment = env
	return cfg, nil
}

// Parse expands ${VAR} references, decodes the YAML and fills defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "chess-arena"
	}
	if c.Redis.PresenceTTL == 0 {
		c.Redis.PresenceTTL = 2 * time.Minute
	}
	if c.Archive.Driver == "" {
		c.Archive.Driver = "none"
	}
	if c.Matchmaking.SweepInterval == 0 {
		c.Matchmaking.SweepInterval = 2 * time.Second
	}
	if c.Room.GracePeriod == 0 {
		c.Room.GracePeriod = 5 * time.Minute
	}
	if c.Room.Retention == 0 {
		c.Room.Retention = 60 * time.Second
	}
	if c.Room.ForfeitOnAbandon == nil {
		forfeit := true
		c.Room.ForfeitOnAbandon = &forfeit
	}
	if c.RateLimit.UpgradesPerMinute == 0 {
		c.RateLimit.UpgradesPerMinute = 20
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.Required && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth.required is set")
	}
	switch c.Archive.Driver {
	case "none":
	case "mongodb", "postgres":
		if c.Archive.URI == "" {
			return fmt.Errorf("archive.uri is required for driver %s", c.Archive.Driver)
		}
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}
	if c.Room.GracePeriod < 0 || c.Room.Retention < 0 || c.Matchmaking.SweepInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// Addr is the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func GetEnv() string {
	env := os.Getenv("ARENA_ENV")
	if env == "" {
		return "dev"
	}
	return env
}
