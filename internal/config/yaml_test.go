// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"soundloc/internal/geometry"

	"github.com/google/go-cmp/cmp"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "session.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if diff := cmp.Diff(NewConfig(), cfg); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_Session(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
environment:
  name: courtyard
  sound_speed: 340
  boundary:
    - {x: 0, y: 0}
    - {x: 10, y: 0}
    - {x: 10, y: 8}
    - {x: 0, y: 8}
  microphones:
    - name: north
      x: 5
      y: 7
      file: north.wav
      start_time: 2024-05-01T10:00:00Z
    - {name: south, x: 5, y: 1, file: /data/south.wav}
localization:
  algorithm: threshold
  threshold: 0.2
  chunk_duration: 500ms
  peak: abs
  window: hann
  workers: 2
  refine: true
transport:
  udp_enabled: true
  udp_target_address: 10.0.0.2:9999
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := NewConfig()
	want.LogLevel = "debug"
	want.Environment = EnvironmentConfig{
		Name:       "courtyard",
		SoundSpeed: 340,
		Boundary: []geometry.Point{
			geometry.Pt(0, 0), geometry.Pt(10, 0), geometry.Pt(10, 8), geometry.Pt(0, 8),
		},
		Microphones: []MicrophoneConfig{
			{
				Name: "north", X: 5, Y: 7,
				File:      filepath.Join(filepath.Dir(path), "north.wav"),
				StartTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			},
			{Name: "south", X: 5, Y: 1, File: "/data/south.wav"},
		},
	}
	want.Localization = LocalizationConfig{
		Algorithm:     "threshold",
		Threshold:     0.2,
		ChunkDuration: 500 * time.Millisecond,
		Interpolation: DefaultInterpolation,
		Peak:          "abs",
		Window:        "hann",
		Workers:       2,
		Refine:        true,
	}
	want.Transport.UDPEnabled = true
	want.Transport.UDPTargetAddress = "10.0.0.2:9999"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "localization:\n  algorithm: threshold\n  threshold: 0.2\n")

	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_LOG_LEVEL", "warn")
	t.Setenv("ENV_ALGORITHM", "gcc_phat")
	t.Setenv("ENV_THRESHOLD", "0.3")
	t.Setenv("ENV_UDP_ENABLED", "1")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "192.168.1.9:7000")
	t.Setenv("ENV_WS_ENABLED", "true")
	t.Setenv("ENV_WS_ADDRESS", ":8181")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"debug", cfg.Debug, true},
		{"log level", cfg.LogLevel, "warn"},
		{"algorithm", cfg.Localization.Algorithm, "gcc_phat"},
		{"threshold", cfg.Localization.Threshold, 0.3},
		{"udp enabled", cfg.Transport.UDPEnabled, true},
		{"udp target", cfg.Transport.UDPTargetAddress, "192.168.1.9:7000"},
		{"ws enabled", cfg.Transport.WSEnabled, true},
		{"ws address", cfg.Transport.WSAddress, ":8181"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfig_BadEnvValueIgnored(t *testing.T) {
	path := writeTempConfig(t, "localization:\n  threshold: 0.2\n")
	t.Setenv("ENV_THRESHOLD", "loud")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Localization.Threshold != 0.2 {
		t.Errorf("threshold = %g, want 0.2", cfg.Localization.Threshold)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"sound speed", func(c *Config) { c.Environment.SoundSpeed = 0 }, "sound_speed"},
		{"boundary", func(c *Config) { c.Environment.Boundary = []geometry.Point{{}, {X: 1}} }, "boundary"},
		{"duplicate mic", func(c *Config) {
			c.Environment.Microphones = []MicrophoneConfig{{Name: "a"}, {Name: "a", X: 1}}
		}, "duplicate name"},
		{"algorithm", func(c *Config) { c.Localization.Algorithm = "music" }, "localization.algorithm"},
		{"peak", func(c *Config) { c.Localization.Peak = "min" }, "localization.peak"},
		{"window", func(c *Config) { c.Localization.Window = "kaiser" }, "localization.window"},
		{"threshold", func(c *Config) { c.Localization.Threshold = -1 }, "threshold"},
		{"chunk", func(c *Config) { c.Localization.ChunkDuration = -time.Second }, "chunk_duration"},
		{"interp", func(c *Config) { c.Localization.Interpolation = -2 }, "interpolation"},
		{"workers", func(c *Config) { c.Localization.Workers = -1 }, "workers"},
		{"udp address", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
		{"ws address", func(c *Config) {
			c.Transport.WSEnabled = true
			c.Transport.WSAddress = "8080"
		}, "ws_address"},
		{"udp address unused", func(c *Config) { c.Transport.UDPTargetAddress = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
