package config

import (
	"time"

	"soundloc/internal/geometry"
)

// Defaults applied before the session file is read.
const (
	DefaultLogLevel      = "info"
	DefaultSoundSpeed    = 343.2      // m/s, dry air at about 20 °C
	DefaultAlgorithm     = "gcc_phat" // TDoA strategy
	DefaultThreshold     = 0.05       // |sample| detection level
	DefaultInterpolation = 16         // GCC-PHAT upsampling
	DefaultPeak          = "max"
	DefaultWindow        = "none"
	DefaultUDPTarget     = "127.0.0.1:9090"
	DefaultWSAddress     = "127.0.0.1:8080"

	// DefaultChunkDuration of 0 localizes each recording as a single chunk.
	DefaultChunkDuration = time.Duration(0)
)

// Config is a localization session, loaded from YAML.
type Config struct {
	Debug        bool               `yaml:"debug"`     // Force debug logging.
	LogLevel     string             `yaml:"log_level"` // debug, info, warn or error.
	Environment  EnvironmentConfig  `yaml:"environment"`
	Localization LocalizationConfig `yaml:"localization"`
	Transport    TransportConfig    `yaml:"transport"`
}

// EnvironmentConfig describes the listening area and its microphones.
type EnvironmentConfig struct {
	Name        string             `yaml:"name"`
	Boundary    []geometry.Point   `yaml:"boundary"`    // Polygon vertices in metres.
	SoundSpeed  float64            `yaml:"sound_speed"` // m/s
	Microphones []MicrophoneConfig `yaml:"microphones"`
}

// MicrophoneConfig places one microphone and names its recording.
type MicrophoneConfig struct {
	Name      string    `yaml:"name"`
	X         float64   `yaml:"x"`
	Y         float64   `yaml:"y"`
	File      string    `yaml:"file"`                 // WAV path, relative to the session file.
	StartTime time.Time `yaml:"start_time,omitempty"` // Wall-clock time of the first sample.
}

// LocalizationConfig holds the estimator and loop settings.
type LocalizationConfig struct {
	Algorithm     string        `yaml:"algorithm"`      // threshold or gcc_phat.
	Threshold     float64       `yaml:"threshold"`      // Detection level on |sample|.
	ChunkDuration time.Duration `yaml:"chunk_duration"` // e.g. "500ms"; 0 for one chunk.
	Interpolation int           `yaml:"interpolation"`  // GCC-PHAT upsampling factor.
	Peak          string        `yaml:"peak"`           // max or abs.
	Window        string        `yaml:"window"`         // GCC-PHAT analysis window.
	Workers       int           `yaml:"workers"`        // 0 uses every CPU.
	Refine        bool          `yaml:"refine"`         // Gauss-Newton refinement.
}

// TransportConfig selects where estimates are published.
type TransportConfig struct {
	LogEnabled       bool   `yaml:"log_enabled"`
	UDPEnabled       bool   `yaml:"udp_enabled"`
	UDPTargetAddress string `yaml:"udp_target_address"` // host:port
	WSEnabled        bool   `yaml:"ws_enabled"`
	WSAddress        string `yaml:"ws_address"` // listen address for /ws
}

// NewConfig returns a Config holding every default.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Environment: EnvironmentConfig{
			SoundSpeed: DefaultSoundSpeed,
		},
		Localization: LocalizationConfig{
			Algorithm:     DefaultAlgorithm,
			Threshold:     DefaultThreshold,
			ChunkDuration: DefaultChunkDuration,
			Interpolation: DefaultInterpolation,
			Peak:          DefaultPeak,
			Window:        DefaultWindow,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTarget,
			WSAddress:        DefaultWSAddress,
		},
	}
}
