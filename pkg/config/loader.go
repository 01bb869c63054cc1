package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// SetDefaults installs the server defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.connectionLimit.maxPerIP", 0)
	v.SetDefault("server.connectionLimit.mode", "reject")
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.pingInterval", "20s")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("transport.maxMessageSize", 1<<20)
	v.SetDefault("rooms.idleTTL", "30m")
	v.SetDefault("rooms.sweepInterval", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("events", map[string]any{
		"cursor": map[string]any{
			"modifiers": []map[string]any{
				{"name": "rate_limit", "params": []string{"60/s"}},
			},
		},
	})
}

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	SetDefaults(v)

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("GOCANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	return Decode(v)
}

// Decode unmarshals an already populated viper instance.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Server.ConnectionLimit.Mode {
	case "reject", "cycle":
	default:
		return errors.New("server.connectionLimit.mode must be 'reject' or 'cycle'")
	}
	if c.Rooms.IdleTTL > 0 && c.Rooms.SweepInterval <= 0 {
		return errors.New("rooms.sweepInterval must be positive when rooms.idleTTL is set")
	}
	return nil
}
