// Package config loads the live server configuration from YAML and the
// environment.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	SRT    SRT    `yaml:"srt"`
	Output Output `yaml:"output"`
	MQTT   MQTT   `yaml:"mqtt"`
	Debug  bool   `yaml:"debug"`
}

type SRT struct {
	Addr  string `yaml:"addr"`
	Pulls []Pull `yaml:"pulls"`
}

// Pull is a remote SRT listener to read from at startup.
type Pull struct {
	Address   string `yaml:"address"`
	StreamKey string `yaml:"stream_key"`
	StreamID  string `yaml:"stream_id"`
}

type Output struct {
	Dir       string  `yaml:"dir"`
	Format    string  `yaml:"format"`
	Scale     float64 `yaml:"scale"`
	SkipEmpty *bool   `yaml:"skip_empty"`
	Workers   int     `yaml:"workers"`
}

// KeepEmpty reports whether display sets without objects are written.
func (o Output) KeepEmpty() bool { return o.SkipEmpty != nil && !*o.SkipEmpty }

// MQTT is optional; an empty Broker disables event publishing.
type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SRT:    SRT{Addr: ":6000"},
		Output: Output{Dir: "frames", Format: "png", Scale: 1},
		MQTT:   MQTT{Topic: "pgsd/displaysets"},
	}
}

// Load reads path (skipped when empty) over the defaults, applies env
// overrides through getenv and validates the result. A nil getenv means
// os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "config: read")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "config: parse %s", path)
		}
	}

	cfg.SRT.Addr = envOr(getenv, "SRT_ADDR", cfg.SRT.Addr)
	cfg.Output.Dir = envOr(getenv, "OUTPUT_DIR", cfg.Output.Dir)
	cfg.MQTT.Broker = envOr(getenv, "MQTT_BROKER", cfg.MQTT.Broker)
	if v := getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		cfg.Debug = err != nil || debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the server depends on.
func (c *Config) Validate() error {
	switch {
	case c.SRT.Addr == "":
		return errors.Wrap(ErrInvalid, "srt.addr is empty")
	case c.Output.Dir == "":
		return errors.Wrap(ErrInvalid, "output.dir is empty")
	case c.Output.Format != "png" && c.Output.Format != "qoi":
		return errors.Wrapf(ErrInvalid, "output.format %q is not png or qoi", c.Output.Format)
	case c.Output.Scale < 0:
		return errors.Wrapf(ErrInvalid, "output.scale %v is negative", c.Output.Scale)
	case c.Output.Workers < 0:
		return errors.Wrapf(ErrInvalid, "output.workers %d is negative", c.Output.Workers)
	case c.MQTT.QoS > 2:
		return errors.Wrapf(ErrInvalid, "mqtt.qos %d is above 2", c.MQTT.QoS)
	}
	for i, p := range c.SRT.Pulls {
		if p.Address == "" || p.StreamKey == "" {
			return errors.Wrapf(ErrInvalid, "srt.pulls[%d] needs address and stream_key", i)
		}
	}
	return nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
