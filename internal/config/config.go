// Package config loads the agent configuration once at startup.
//
// Values come from, in increasing precedence: `default` struct tags, an
// optional YAML file, and environment variables. The environment names used
// by earlier deployments (BLE_DEVICE_NAME, DATA_SIZE, PG_*) are bound explicitly.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/spf13/viper"
	"github.com/srg/blestream/internal/decode"
)

// Sink kinds
const (
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
	SinkMQTT     = "mqtt"
)

// Config holds application configuration
type Config struct {
	Device  DeviceConfig  `mapstructure:"device" yaml:"device"`
	Sink    SinkConfig    `mapstructure:"sink" yaml:"sink"`
	Forward ForwardConfig `mapstructure:"forward" yaml:"forward"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// DeviceConfig describes the peripheral and its packet geometry.
type DeviceConfig struct {
	Name           string        `mapstructure:"name" yaml:"name" default:"ESP32_ATH_SPEC"`
	PacketLength   int           `mapstructure:"packet_length" yaml:"packet_length" default:"3648"`
	SampleWidth    int           `mapstructure:"sample_width" yaml:"sample_width" default:"2"`
	ScanDwell      time.Duration `mapstructure:"scan_dwell" yaml:"scan_dwell" default:"5s"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff" default:"30s"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" default:"5s"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" default:"30s"`
}

// SinkConfig selects and configures the persistence backend.
type SinkConfig struct {
	Kind        string         `mapstructure:"kind" yaml:"kind" default:"postgres"`
	Destination string         `mapstructure:"destination" yaml:"destination" default:"ESP32_athmos_spectro_001"`
	Postgres    PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	SQLite      SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	MQTT        MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
}

// PostgresConfig holds connection parameters for the postgres sink.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host" default:"database"`
	Port     int    `mapstructure:"port" yaml:"port" default:"5432"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname" default:"spectrometry"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns" default:"4"`
}

// ConnString renders a postgres:// URL; credentials are URL-escaped.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.DBName,
	}
	return u.String()
}

// SQLiteConfig holds the sqlite sink database location.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path" default:"blestream.db"`
}

// MQTTConfig holds the mqtt sink broker parameters.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker" yaml:"broker" default:"tcp://localhost:1883"`
	ClientID string `mapstructure:"client_id" yaml:"client_id" default:"blestream"`
	QoS      int    `mapstructure:"qos" yaml:"qos" default:"1"`
}

// ForwardConfig tunes the queue between the reassembler and the sink.
type ForwardConfig struct {
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size" default:"64"`
	Workers      int           `mapstructure:"workers" yaml:"workers" default:"4"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" default:"10s"`
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level" default:"info"`
	Format     string `mapstructure:"format" yaml:"format" default:"text"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" default:"50"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" default:"3"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" default:"28"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"device.name":            "BLE_DEVICE_NAME",
	"device.packet_length":   "DATA_SIZE",
	"device.sample_width":    "SAMPLE_WIDTH",
	"device.scan_dwell":      "SCAN_DWELL",
	"device.retry_backoff":   "RETRY_BACKOFF",
	"device.poll_interval":   "POLL_INTERVAL",
	"device.connect_timeout": "CONNECT_TIMEOUT",
	"sink.kind":              "SINK_KIND",
	"sink.destination":       "PG_TABLE",
	"sink.postgres.host":     "PG_HOST",
	"sink.postgres.port":     "PG_PORT",
	"sink.postgres.user":     "PG_USER",
	"sink.postgres.password": "PG_PASSWORD",
	"sink.postgres.dbname":   "PG_DBNAME",
	"sink.sqlite.path":       "SQLITE_PATH",
	"sink.mqtt.broker":       "MQTT_BROKER",
	"sink.mqtt.client_id":    "MQTT_CLIENT_ID",
	"forward.queue_size":     "FORWARD_QUEUE_SIZE",
	"forward.workers":        "FORWARD_WORKERS",
	"forward.write_timeout":  "FORWARD_WRITE_TIMEOUT",
	"log.level":              "LOG_LEVEL",
	"log.format":             "LOG_FORMAT",
	"log.file":               "LOG_FILE",
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the configuration and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the optional YAML file at path and applies environment
// overrides on top of the defaults, without validating.
func Read(path string) (*Config, error) {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, &Error{Problems: []string{fmt.Sprintf("bind %s: %v", env, err)}}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Problems: []string{fmt.Sprintf("failed to read config file: %v", err)}}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Problems: []string{fmt.Sprintf("failed to unmarshal config: %v", err)}}
	}
	return cfg, nil
}

// Error is a configuration problem that prevents startup.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Device.Name) == "" {
		add("device.name must not be empty")
	}
	if c.Device.PacketLength < 1 {
		add("device.packet_length must be positive, got %d", c.Device.PacketLength)
	}
	if err := decode.Width(c.Device.SampleWidth).Validate(); err != nil {
		add("device.sample_width: %v", err)
	}
	for name, d := range map[string]time.Duration{
		"device.scan_dwell":      c.Device.ScanDwell,
		"device.retry_backoff":   c.Device.RetryBackoff,
		"device.poll_interval":   c.Device.PollInterval,
		"device.connect_timeout": c.Device.ConnectTimeout,
		"forward.write_timeout":  c.Forward.WriteTimeout,
	} {
		if d <= 0 {
			add("%s must be positive, got %v", name, d)
		}
	}

	if strings.TrimSpace(c.Sink.Destination) == "" {
		add("sink.destination must not be empty")
	}
	switch c.Sink.Kind {
	case SinkPostgres:
		if c.Sink.Postgres.User == "" {
			add("sink.postgres.user is required (PG_USER)")
		}
	case SinkSQLite:
		if c.Sink.SQLite.Path == "" {
			add("sink.sqlite.path is required")
		}
	case SinkMQTT:
		if c.Sink.MQTT.Broker == "" {
			add("sink.mqtt.broker is required")
		}
		if c.Sink.MQTT.QoS < 0 || c.Sink.MQTT.QoS > 2 {
			add("sink.mqtt.qos must be 0, 1 or 2, got %d", c.Sink.MQTT.QoS)
		}
	default:
		add("sink.kind %q is not one of %s, %s, %s", c.Sink.Kind, SinkPostgres, SinkSQLite, SinkMQTT)
	}

	if c.Forward.QueueSize < 1 {
		add("forward.queue_size must be positive, got %d", c.Forward.QueueSize)
	}
	if c.Forward.Workers < 1 {
		add("forward.workers must be positive, got %d", c.Forward.Workers)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format %q must be text or json", c.Log.Format)
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// Width returns the configured sample width.
func (d DeviceConfig) Width() decode.Width {
	return decode.Width(d.SampleWidth)
}
