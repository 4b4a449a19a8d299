package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
instance_id: lab-01
catalog:
  manifest: /data/traffic/manifest.msgpack.zst
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Decode.Backend != BackendFFmpeg {
		t.Errorf("decode.backend = %q, want %q", cfg.Decode.Backend, BackendFFmpeg)
	}
	if cfg.Decode.Workers != 1 {
		t.Errorf("decode.workers = %d, want 1", cfg.Decode.Workers)
	}
	if cfg.Output.Backend != BackendMJPEG {
		t.Errorf("output.backend = %q, want %q", cfg.Output.Backend, BackendMJPEG)
	}
	if cfg.Output.FPS != 0 {
		t.Errorf("output.fps = %v, want 0 (resolved per job)", cfg.Output.FPS)
	}
	if cfg.Output.Quality != DefaultQuality || cfg.Output.FourCC != DefaultFourCC {
		t.Errorf("output quality/fourcc = %d/%q", cfg.Output.Quality, cfg.Output.FourCC)
	}
	if cfg.MQTT.Topic != "" {
		t.Errorf("mqtt.topic = %q without broker, want empty", cfg.MQTT.Topic)
	}
	if cfg.JobTimeout() != 0 || cfg.DecodeTimeout() != 0 {
		t.Errorf("timeouts = %v/%v, want none", cfg.JobTimeout(), cfg.DecodeTimeout())
	}
}

func TestParse_Full(t *testing.T) {
	data := `
instance_id: lab-01
job_timeout_s: 600
catalog:
  manifest: manifest.yaml
decode:
  backend: GStreamer
  workers: 4
  timeout_s: 30
output:
  backend: opencv
  fps: 25
  fourcc: avc1
  min_width: 256
  min_height: 160
mqtt:
  broker: tcp://localhost:1883
  qos: 1
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Decode.Backend != BackendGStreamer || cfg.Decode.Workers != 4 {
		t.Errorf("decode = %+v", cfg.Decode)
	}
	if cfg.DecodeTimeout() != 30*time.Second || cfg.JobTimeout() != 10*time.Minute {
		t.Errorf("timeouts = %v/%v", cfg.DecodeTimeout(), cfg.JobTimeout())
	}
	if cfg.Output.Backend != BackendOpenCV || cfg.Output.FourCC != "avc1" || cfg.Output.FPS != 25 {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Output.MinWidth != 256 || cfg.Output.MinHeight != 160 {
		t.Errorf("min canvas = %dx%d", cfg.Output.MinWidth, cfg.Output.MinHeight)
	}
	if cfg.MQTT.Topic != "tasm/jobs/lab-01" || cfg.MQTT.QoS != 1 {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing_instance", func(c *Config) { c.InstanceID = "" }, "instance_id is required"},
		{"bad_instance", func(c *Config) { c.InstanceID = "Lab_01" }, "instance_id must match"},
		{"missing_manifest", func(c *Config) { c.Catalog.Manifest = "" }, "catalog.manifest"},
		{"negative_timeout", func(c *Config) { c.JobTimeoutS = -1 }, "job_timeout_s"},
		{"unknown_decoder", func(c *Config) { c.Decode.Backend = "vlc" }, "unknown backend 'vlc'"},
		{"negative_workers", func(c *Config) { c.Decode.Workers = -2 }, "workers"},
		{"unknown_writer", func(c *Config) { c.Output.Backend = "webm" }, "unknown backend 'webm'"},
		{"negative_fps", func(c *Config) { c.Output.FPS = -5 }, "fps"},
		{"bad_fourcc", func(c *Config) { c.Output.FourCC = "h264x" }, "fourcc"},
		{"bad_quality", func(c *Config) { c.Output.Quality = 101 }, "quality"},
		{"negative_min_canvas", func(c *Config) { c.Output.MinHeight = -1 }, "min_width/min_height"},
		{"bad_qos", func(c *Config) { c.MQTT.Broker = "tcp://b:1883"; c.MQTT.QoS = 3 }, "mqtt.qos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				InstanceID: "lab-01",
				Catalog:    CatalogConfig{Manifest: "m.yaml"},
			}
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasm.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID != "lab-01" {
		t.Errorf("instance_id = %q", cfg.InstanceID)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Parse([]byte("instance_id: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
