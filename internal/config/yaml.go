// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"soundloc/internal/log"
	"soundloc/internal/tdoa"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads a session from the YAML file at path. If path is empty,
// it looks for "session.yaml" in the working directory and falls back to
// the built-in defaults when there is none. Environment variable overrides
// are applied last, then the result is validated.
//
// Relative microphone file paths are resolved against the directory of the
// session file.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidates := []string{
			"session.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(path))

	// Environment variables win over the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and that every name parses. An empty
// environment is valid; commands that need microphones check for them.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level '%s' is not one of debug, info, warn, error", c.LogLevel))
	}

	env := c.Environment
	if env.SoundSpeed <= 0 {
		errs = append(errs, fmt.Errorf("environment.sound_speed must be positive, got %g", env.SoundSpeed))
	}
	if n := len(env.Boundary); n > 0 && n < 3 {
		errs = append(errs, fmt.Errorf("environment.boundary needs at least 3 vertices, got %d", n))
	}
	names := make(map[string]bool, len(env.Microphones))
	for i, m := range env.Microphones {
		if m.Name != "" {
			if names[m.Name] {
				errs = append(errs, fmt.Errorf("environment.microphones[%d]: duplicate name '%s'", i, m.Name))
			}
			names[m.Name] = true
		}
	}

	loc := c.Localization
	if _, err := tdoa.ParseAlgorithm(loc.Algorithm); err != nil {
		errs = append(errs, fmt.Errorf("localization.algorithm: %w", err))
	}
	if _, err := tdoa.ParsePeakMode(loc.Peak); err != nil {
		errs = append(errs, fmt.Errorf("localization.peak: %w", err))
	}
	if _, err := tdoa.ParseWindow(loc.Window); err != nil {
		errs = append(errs, fmt.Errorf("localization.window: %w", err))
	}
	if loc.Threshold < 0 {
		errs = append(errs, fmt.Errorf("localization.threshold must not be negative, got %g", loc.Threshold))
	}
	if loc.ChunkDuration < 0 {
		errs = append(errs, fmt.Errorf("localization.chunk_duration must not be negative, got %s", loc.ChunkDuration))
	}
	if loc.Interpolation < 0 {
		errs = append(errs, fmt.Errorf("localization.interpolation must not be negative, got %d", loc.Interpolation))
	}
	if loc.Workers < 0 {
		errs = append(errs, fmt.Errorf("localization.workers must not be negative, got %d", loc.Workers))
	}

	tr := c.Transport
	if tr.UDPEnabled {
		if _, _, err := net.SplitHostPort(tr.UDPTargetAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.udp_target_address '%s': %w", tr.UDPTargetAddress, err))
		}
	}
	if tr.WSEnabled {
		if _, _, err := net.SplitHostPort(tr.WSAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.ws_address '%s': %w", tr.WSAddress, err))
		}
	}

	return errors.Join(errs...)
}

// resolvePaths makes relative microphone files relative to dir.
func (c *Config) resolvePaths(dir string) {
	for i, m := range c.Environment.Microphones {
		if m.File != "" && !filepath.IsAbs(m.File) {
			c.Environment.Microphones[i].File = filepath.Join(dir, m.File)
		}
	}
}

// applyEnvOverrides replaces settings with ENV_* variables when they are
// set and parse. Unparseable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			log.Debugf("configuration: overriding debug from env: %v", bVal)
		} else {
			log.Warnf("configuration: ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Debugf("configuration: overriding log_level from env: %s", val)
	}

	// ENV_{ALGORITHM,THRESHOLD}
	// These are specific to localization.

	if val, ok := os.LookupEnv("ENV_ALGORITHM"); ok {
		c.Localization.Algorithm = val
		log.Debugf("configuration: overriding localization.algorithm from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_THRESHOLD"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			c.Localization.Threshold = fVal
			log.Debugf("configuration: overriding localization.threshold from env: %g", fVal)
		} else {
			log.Warnf("configuration: ignoring ENV_THRESHOLD=%q: %v", val, err)
		}
	}

	// ENV_UDP_{...} and ENV_WS_{...}
	// These are specific to the transport layer.

	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			log.Debugf("configuration: overriding transport.udp_enabled from env: %v", bVal)
		} else {
			log.Warnf("configuration: ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Debugf("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.WSEnabled = bVal
			log.Debugf("configuration: overriding transport.ws_enabled from env: %v", bVal)
		} else {
			log.Warnf("configuration: ignoring ENV_WS_ENABLED=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WSAddress = val
		log.Debugf("configuration: overriding transport.ws_address from env: %s", val)
	}
}
