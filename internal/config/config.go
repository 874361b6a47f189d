// Package config provides the configuration schema, loader, and validation
// for the carbot voice front end.
package config

import "time"

// LogLevel controls log verbosity for the carbot daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TriggerMode selects how the wake-word monitor is driven.
type TriggerMode string

const (
	// TriggerEngine scores live audio frames with a real detection engine.
	TriggerEngine TriggerMode = "engine"

	// TriggerSimulated emits periodic synthetic wake events. Used when no
	// engine can be initialized, or forced for bench testing.
	TriggerSimulated TriggerMode = "simulated"

	// TriggerAuto tries the engine first and falls back to simulated mode
	// when engine initialization fails.
	TriggerAuto TriggerMode = "auto"
)

// IsValid reports whether m is a recognised trigger mode.
func (m TriggerMode) IsValid() bool {
	switch m {
	case TriggerEngine, TriggerSimulated, TriggerAuto:
		return true
	}
	return false
}

// Config is the root configuration structure for carbot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Bus     BusConfig     `yaml:"bus"`
	Wake    WakeConfig    `yaml:"wake"`
	Synth   SynthConfig   `yaml:"synth"`
	Ducking DuckingConfig `yaml:"ducking"`
}

// ServerConfig holds network and logging settings for the daemon.
type ServerConfig struct {
	// ListenAddr is the TCP address the diagnostics HTTP server listens on
	// (health, readiness, metrics, status snapshot). Default ":9090".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BusConfig configures the NATS event bus carrying media-session signals in
// and wake/ducking notifications out.
type BusConfig struct {
	// Embedded starts an in-process NATS server when true. When false, URL
	// must point at an external server (the vehicle gateway).
	Embedded bool `yaml:"embedded"`

	// URL is the NATS server URL when Embedded is false.
	URL string `yaml:"url"`
}

// WakeConfig configures the wake-word monitor.
type WakeConfig struct {
	// Mode selects engine, simulated, or auto triggering. Default "auto".
	Mode TriggerMode `yaml:"mode"`

	// Phrase is the trigger phrase. Default "hey carbot".
	Phrase string `yaml:"phrase"`

	// Threshold is the detection confidence required to trigger, in
	// (0.0, 1.0]. Default 0.7.
	Threshold float64 `yaml:"threshold"`

	// Cooldown is the re-trigger suppression interval. Default 1.5s.
	Cooldown time.Duration `yaml:"cooldown"`

	// SampleRate of the capture stream fed to the engine. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// ModelPath points at the detection model asset.
	ModelPath string `yaml:"model_path"`

	// ModelSHA256 is the expected hex checksum of the model asset. When
	// set, the asset is validated at load time and the monitor refuses to
	// arm in engine mode on mismatch.
	ModelSHA256 string `yaml:"model_sha256"`

	// SimulatedIntervalMin/Max bound the random interval between synthetic
	// wake events in simulated mode. Defaults 30s/45s.
	SimulatedIntervalMin time.Duration `yaml:"simulated_interval_min"`
	SimulatedIntervalMax time.Duration `yaml:"simulated_interval_max"`
}

// ProviderEntry is the common configuration block shared by TTS backends.
type ProviderEntry struct {
	// Name selects the backend implementation ("elevenlabs", "piper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for remote backends.
	APIKey string `yaml:"api_key"`

	// Model selects a model or voice model file within the backend.
	Model string `yaml:"model"`
}

// SynthConfig configures the tiered speech-synthesis service.
type SynthConfig struct {
	// Primary is the remote high-fidelity backend.
	Primary ProviderEntry `yaml:"primary"`

	// Local is the offline always-available backend.
	Local ProviderEntry `yaml:"local"`

	// PrimaryTimeout bounds a primary-tier attempt before falling through
	// to the local tier. Default 3s.
	PrimaryTimeout time.Duration `yaml:"primary_timeout"`

	// CacheSize is the maximum number of cached payloads. Default 64.
	CacheSize int `yaml:"cache_size"`

	// CacheTTL is the maximum age of a cached or pre-generated payload.
	// Default 1h.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// PregeneratedPhrases are synthesized once at startup and served from
	// the pre-generated tier.
	PregeneratedPhrases []string `yaml:"pregenerated_phrases"`

	// AdaptiveTiering promotes the local tier ahead of primary when it has
	// proven consistently faster. Default false.
	AdaptiveTiering bool `yaml:"adaptive_tiering"`
}

// DuckingConfig configures the audio-ducking coordinator.
type DuckingConfig struct {
	// MusicLoudThreshold is the music volume above which the deeper
	// music_loud attenuation profile is selected. Default 0.5.
	MusicLoudThreshold float64 `yaml:"music_loud_threshold"`

	// Profiles optionally overrides attenuation levels per context key
	// (music_soft, music_loud, navigation, phone_call, emergency,
	// conversation). Values are attenuation levels in [0.0, 1.0].
	Profiles map[string]float64 `yaml:"profiles"`
}

// applyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":9090"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if !c.Bus.Embedded && c.Bus.URL == "" {
		c.Bus.Embedded = true
	}
	if c.Wake.Mode == "" {
		c.Wake.Mode = TriggerAuto
	}
	if c.Wake.Phrase == "" {
		c.Wake.Phrase = "hey carbot"
	}
	if c.Wake.Threshold == 0 {
		c.Wake.Threshold = 0.7
	}
	if c.Wake.Cooldown == 0 {
		c.Wake.Cooldown = 1500 * time.Millisecond
	}
	if c.Wake.SampleRate == 0 {
		c.Wake.SampleRate = 16000
	}
	if c.Wake.SimulatedIntervalMin == 0 {
		c.Wake.SimulatedIntervalMin = 30 * time.Second
	}
	if c.Wake.SimulatedIntervalMax == 0 {
		c.Wake.SimulatedIntervalMax = 45 * time.Second
	}
	if c.Synth.PrimaryTimeout == 0 {
		c.Synth.PrimaryTimeout = 3 * time.Second
	}
	if c.Synth.CacheSize == 0 {
		c.Synth.CacheSize = 64
	}
	if c.Synth.CacheTTL == 0 {
		c.Synth.CacheTTL = time.Hour
	}
	if c.Ducking.MusicLoudThreshold == 0 {
		c.Ducking.MusicLoudThreshold = 0.5
	}
}
