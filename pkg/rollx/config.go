package rollx

import (
	"github.com/gangulwar/rollX/internal/adapters/sensor"
	"github.com/gangulwar/rollX/internal/adapters/transport"
	"github.com/gangulwar/rollX/internal/app/config"
	"github.com/gangulwar/rollX/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// ProducerConfig configures the streaming side.
	ProducerConfig = config.ProducerConfig
	// SensorConfig selects and configures the reading source.
	SensorConfig = config.SensorConfig
	// OPCUAConfig points the OPC UA sensor at its axis nodes.
	OPCUAConfig = sensor.OPCUAConfig
	// TransportConfig tunes the TCP connection to the collector.
	TransportConfig = transport.Config
	// CollectorConfig configures the receiving side.
	CollectorConfig = config.CollectorConfig
	// Policy controls WAL/queue thresholds.
	Policy = ports.Policy
	// TimescaleConfig configures the sink.
	TimescaleConfig = config.TimescaleConfig
	// MetricsConfig configures the collector metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// WALConfig configures on-disk durability.
	WALConfig = config.WALConfig
	// LogConfig configures the zap logger.
	LogConfig = config.LogConfig
)

const (
	SensorSimulated = config.SensorSimulated
	SensorOPCUA     = config.SensorOPCUA
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig is LoadConfig for YAML already in memory.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
