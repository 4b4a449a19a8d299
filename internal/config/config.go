package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete extraction service configuration
type Config struct {
	InstanceID  string        `yaml:"instance_id"`
	JobTimeoutS int           `yaml:"job_timeout_s"` // Abort a job after this many seconds (0: no limit)
	Catalog     CatalogConfig `yaml:"catalog"`
	Decode      DecodeConfig  `yaml:"decode"`
	Output      OutputConfig  `yaml:"output"`
	MQTT        MQTTConfig    `yaml:"mqtt"`
}

// CatalogConfig points at the tile manifest
type CatalogConfig struct {
	Manifest string `yaml:"manifest"` // .yaml, .yml, .msgpack or .msgpack.zst
}

// DecodeConfig contains segment decoding settings
type DecodeConfig struct {
	Backend  string `yaml:"backend"`   // ffmpeg, gstreamer
	Workers  int    `yaml:"workers"`   // segments decoded ahead (1: synchronous)
	TimeoutS int    `yaml:"timeout_s"` // per-segment decode timeout (0: none)
}

// OutputConfig contains output video settings
type OutputConfig struct {
	Backend   string  `yaml:"backend"`    // mjpeg, opencv
	FPS       float64 `yaml:"fps"`        // 0: discover from reference video, else 30
	FourCC    string  `yaml:"fourcc"`     // opencv only
	Quality   int     `yaml:"quality"`    // mjpeg JPEG quality 1-100
	MinWidth  int     `yaml:"min_width"`  // encoder minimum canvas
	MinHeight int     `yaml:"min_height"` // encoder minimum canvas
}

// MQTTConfig contains optional report publishing settings
type MQTTConfig struct {
	Broker string `yaml:"broker"` // empty: reports are not published
	Topic  string `yaml:"topic"`
	QoS    byte   `yaml:"qos"`
}

// JobTimeout returns the job deadline as a duration (0: none)
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutS) * time.Second
}

// DecodeTimeout returns the per-segment decode deadline (0: none)
func (c *Config) DecodeTimeout() time.Duration {
	return time.Duration(c.Decode.TimeoutS) * time.Second
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
