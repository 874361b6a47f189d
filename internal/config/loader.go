package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// knownProfileKeys are the ducking contexts a profile override may target.
var knownProfileKeys = map[string]bool{
	"music_soft":   true,
	"music_loud":   true,
	"navigation":   true,
	"phone_call":   true,
	"emergency":    true,
	"conversation": true,
}

// knownTTSBackends lists the backend names the daemon can construct per role.
var knownTTSBackends = map[string][]string{
	"primary": {"elevenlabs"},
	"local":   {"piper"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Bus.Embedded && cfg.Bus.URL == "" {
		errs = append(errs, errors.New("bus.url must be set when bus.embedded is false"))
	}

	if !cfg.Wake.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("wake.mode %q is invalid; valid values: engine, simulated, auto", cfg.Wake.Mode))
	}
	if cfg.Wake.Threshold <= 0 || cfg.Wake.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %v out of range (0, 1]", cfg.Wake.Threshold))
	}
	if cfg.Wake.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("wake.cooldown %v must not be negative", cfg.Wake.Cooldown))
	}
	if cfg.Wake.SimulatedIntervalMax < cfg.Wake.SimulatedIntervalMin {
		errs = append(errs, fmt.Errorf("wake.simulated_interval_max %v below wake.simulated_interval_min %v",
			cfg.Wake.SimulatedIntervalMax, cfg.Wake.SimulatedIntervalMin))
	}
	if cfg.Wake.Mode == TriggerEngine && cfg.Wake.ModelPath == "" {
		errs = append(errs, errors.New("wake.model_path must be set when wake.mode is engine"))
	}

	if cfg.Synth.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("synth.cache_size %d must be at least 1", cfg.Synth.CacheSize))
	}
	if cfg.Synth.PrimaryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("synth.primary_timeout %v must be positive", cfg.Synth.PrimaryTimeout))
	}
	errs = append(errs, validateBackend("primary", cfg.Synth.Primary)...)
	errs = append(errs, validateBackend("local", cfg.Synth.Local)...)

	if cfg.Ducking.MusicLoudThreshold <= 0 || cfg.Ducking.MusicLoudThreshold >= 1 {
		errs = append(errs, fmt.Errorf("ducking.music_loud_threshold %v out of range (0, 1)", cfg.Ducking.MusicLoudThreshold))
	}
	for key, level := range cfg.Ducking.Profiles {
		if !knownProfileKeys[key] {
			errs = append(errs, fmt.Errorf("ducking.profiles key %q is not a known context", key))
		}
		if level < 0 || level > 1 {
			errs = append(errs, fmt.Errorf("ducking.profiles[%q] = %v out of range [0, 1]", key, level))
		}
	}

	return errors.Join(errs...)
}

// validateBackend checks a TTS backend entry for its role.
func validateBackend(role string, entry ProviderEntry) []error {
	if entry.Name == "" {
		// An absent backend is legal; the synthesis service skips the tier.
		return nil
	}
	var errs []error
	valid := false
	for _, name := range knownTTSBackends[role] {
		if entry.Name == name {
			valid = true
			break
		}
	}
	if !valid {
		errs = append(errs, fmt.Errorf("synth.%s.name %q is not a known backend; valid values: %v",
			role, entry.Name, knownTTSBackends[role]))
	}
	if entry.Name == "elevenlabs" && entry.APIKey == "" {
		errs = append(errs, fmt.Errorf("synth.%s.api_key must be set for elevenlabs", role))
	}
	if entry.Name == "piper" && entry.Model == "" {
		errs = append(errs, fmt.Errorf("synth.%s.model must point at a piper voice model", role))
	}
	return errs
}
