package config

import (
	"time"

	"github.com/a-essam23/go-canvas/pkg/pipeline"
	"github.com/a-essam23/go-canvas/pkg/protocol"
)

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Rooms     RoomsConfig
	Log       LogConfig
	Events    map[string]EventConfig `mapstructure:"events"`

	// filled by CompilePipelines
	Pipelines map[protocol.Event][]pipeline.Step `mapstructure:"-"`
}

type ServerConfig struct {
	Address         string
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type ConnectionLimitConfig struct {
	MaxPerIP int    `mapstructure:"maxPerIP"`
	Mode     string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	PingInterval   time.Duration `mapstructure:"pingInterval"`
	SendBuffer     int           `mapstructure:"sendBuffer"`
	MaxMessageSize int64         `mapstructure:"maxMessageSize"`
}

// RoomsConfig controls eviction of empty rooms. An IdleTTL of zero keeps
// rooms for the lifetime of the process.
type RoomsConfig struct {
	IdleTTL       time.Duration `mapstructure:"idleTTL"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

type EventConfig struct {
	Modifiers []ModifierConfig `mapstructure:"modifiers"`
}

type ModifierConfig struct {
	Name   string   `mapstructure:"name"`
	Params []string `mapstructure:"params"`
}
