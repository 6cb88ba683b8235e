package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gangulwar/rollX/internal/adapters/sensor"
	"github.com/gangulwar/rollX/internal/adapters/transport"
	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

const (
	SensorSimulated = "simulated"
	SensorOPCUA     = "opcua"
)

type Config struct {
	Producer  ProducerConfig  `yaml:"producer"`
	Collector CollectorConfig `yaml:"collector"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type ProducerConfig struct {
	Host           string           `yaml:"host"`
	Port           int              `yaml:"port"`
	SampleInterval time.Duration    `yaml:"sample_interval"`
	StatusAddr     string           `yaml:"status_addr"`
	Transport      transport.Config `yaml:",inline"`
	Sensor         SensorConfig     `yaml:"sensor"`
}

type SensorConfig struct {
	Kind  string             `yaml:"kind"`
	Seed  uint64             `yaml:"seed"`
	OPCUA sensor.OPCUAConfig `yaml:"opcua"`
}

type CollectorConfig struct {
	ListenAddr string          `yaml:"listen_addr"`
	Policy     ports.Policy    `yaml:"policy"`
	Timescale  TimescaleConfig `yaml:"timescale"`
	WAL        WALConfig       `yaml:"wal"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WALConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes raw YAML, applies defaults and checks the shared sections.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	p := &c.Producer
	if p.Host == "" {
		p.Host = "127.0.0.1"
	}
	if p.Port == 0 {
		p.Port = 9000
	}
	if p.SampleInterval <= 0 {
		p.SampleInterval = 100 * time.Millisecond
	}
	if p.StatusAddr == "" {
		p.StatusAddr = ":9101"
	}
	if p.Sensor.Kind == "" {
		p.Sensor.Kind = SensorSimulated
	}
	if p.Sensor.Seed == 0 {
		p.Sensor.Seed = uint64(time.Now().UnixNano())
	}
	p.Transport.ApplyDefaults()
	if p.Sensor.Kind == SensorOPCUA {
		p.Sensor.OPCUA.ApplyDefaults()
	}

	col := &c.Collector
	if col.ListenAddr == "" {
		col.ListenAddr = ":9000"
	}
	if col.Policy.MaxWALSizeBytes == 0 {
		col.Policy.MaxWALSizeBytes = 10 << 30
	}
	if col.Policy.MaxQueueLen == 0 {
		col.Policy.MaxQueueLen = 100_000
	}
	if col.Policy.MaxBatchSize == 0 {
		col.Policy.MaxBatchSize = 5_000
	}
	if col.Policy.IdleSleep == 0 {
		col.Policy.IdleSleep = 5 * time.Millisecond
	}
	if col.Policy.OnQueueFull == "" {
		col.Policy.OnQueueFull = "block"
	}
	if col.Policy.OnWALFull == "" {
		col.Policy.OnWALFull = "block"
	}
	if col.Timescale.Table == "" {
		col.Timescale.Table = "samples"
	}
	if col.WAL.Dir == "" {
		col.WAL.Dir = "./data/wal"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}

// ValidateProducer checks the settings `rollx stream` depends on.
func (c *Config) ValidateProducer() error {
	p := c.Producer
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("producer.port: %w: port must be in 1..65535", domain.ErrInvalidEndpoint)
	}
	if err := p.Endpoint().Validate(); err != nil {
		return fmt.Errorf("producer: %w", err)
	}
	for _, d := range p.Transport.RestartDelays {
		if d <= 0 {
			return errors.New("producer.restart_delays must be positive")
		}
	}
	switch p.Sensor.Kind {
	case SensorSimulated:
	case SensorOPCUA:
		if err := p.Sensor.OPCUA.Validate(); err != nil {
			return fmt.Errorf("producer.sensor.opcua: %w", err)
		}
	default:
		return fmt.Errorf("producer.sensor.kind %q is not one of %s, %s", p.Sensor.Kind, SensorSimulated, SensorOPCUA)
	}
	return nil
}

// ValidateCollector checks the settings `rollx collect` depends on. An empty
// timescale.conn_string is allowed; samples are then printed instead.
func (c *Config) ValidateCollector() error {
	col := c.Collector
	if col.ListenAddr == "" {
		return errors.New("collector.listen_addr is required")
	}
	if col.WAL.Dir == "" {
		return errors.New("collector.wal.dir is required")
	}
	switch col.Policy.OnQueueFull {
	case "reject", "block", "drop":
	default:
		return fmt.Errorf("collector.policy.on_queue_full %q is not one of reject, block, drop", col.Policy.OnQueueFull)
	}
	switch col.Policy.OnWALFull {
	case "drop", "block":
	default:
		return fmt.Errorf("collector.policy.on_wal_full %q is not one of drop, block", col.Policy.OnWALFull)
	}
	return nil
}

func (p ProducerConfig) Endpoint() domain.Endpoint {
	return domain.Endpoint{Host: p.Host, Port: uint16(p.Port)}
}
