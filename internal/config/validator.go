package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Decode and output backends
const (
	BackendFFmpeg    = "ffmpeg"
	BackendGStreamer = "gstreamer"
	BackendMJPEG     = "mjpeg"
	BackendOpenCV    = "opencv"
)

// Defaults applied by Validate
const (
	DefaultFourCC  = "mp4v"
	DefaultQuality = 90
)

// Validate checks the configuration and fills defaults
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.JobTimeoutS < 0 {
		return fmt.Errorf("job_timeout_s must be >= 0")
	}

	if cfg.Catalog.Manifest == "" {
		return fmt.Errorf("catalog.manifest is required")
	}

	if err := validateDecode(&cfg.Decode); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := validateOutput(&cfg.Output); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	// MQTT is optional; topic and QoS only matter with a broker
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("tasm/jobs/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
		}
	}

	return nil
}

func validateDecode(d *DecodeConfig) error {
	d.Backend = strings.ToLower(d.Backend)
	switch d.Backend {
	case "":
		d.Backend = BackendFFmpeg
	case BackendFFmpeg, BackendGStreamer:
	default:
		return fmt.Errorf("unknown backend '%s' (must be '%s' or '%s')", d.Backend, BackendFFmpeg, BackendGStreamer)
	}

	if d.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", d.Workers)
	}
	if d.Workers == 0 {
		d.Workers = 1
	}
	if d.TimeoutS < 0 {
		return fmt.Errorf("timeout_s must be >= 0, got %d", d.TimeoutS)
	}
	return nil
}

func validateOutput(o *OutputConfig) error {
	o.Backend = strings.ToLower(o.Backend)
	switch o.Backend {
	case "":
		o.Backend = BackendMJPEG
	case BackendMJPEG, BackendOpenCV:
	default:
		return fmt.Errorf("unknown backend '%s' (must be '%s' or '%s')", o.Backend, BackendMJPEG, BackendOpenCV)
	}

	// 0 is resolved per job (reference video rate or 30)
	if o.FPS < 0 {
		return fmt.Errorf("fps must be >= 0, got %.3f", o.FPS)
	}

	if o.FourCC == "" {
		o.FourCC = DefaultFourCC
	}
	if len(o.FourCC) != 4 {
		return fmt.Errorf("fourcc must be 4 characters, got '%s'", o.FourCC)
	}

	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("quality must be in [1,100], got %d", o.Quality)
	}

	if o.MinWidth < 0 || o.MinHeight < 0 {
		return fmt.Errorf("min_width/min_height must be >= 0, got %dx%d", o.MinWidth, o.MinHeight)
	}
	return nil
}
