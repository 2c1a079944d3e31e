package plasmite

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// EngineConfig holds process-wide defaults applied by collaborators that
// build Pools on top of this package (the engine itself takes explicit
// CreateOptions/AppendOptions per call; EngineConfig exists for callers
// that want one place to set their defaults, per SPEC_FULL's ambient
// configuration section).
type EngineConfig struct {
	// DefaultIndexCapacity is a caller-side default for
	// CreateOptions.IndexCapacity; Create itself does not read it and
	// applies the auto-sizing rule whenever IndexCapacity is zero.
	DefaultIndexCapacity uint32 `json:"default_index_capacity,omitempty"` //nolint:tagliatelle

	// DefaultDurability names a caller-side default Durability ("fast" or
	// "flush", see Durability()); Append does not read it.
	DefaultDurability string `json:"default_durability,omitempty"`

	// PollIntervalMinMs / PollIntervalMaxMs are caller-side polling bounds.
	// PollDelay does not read them: it always starts at 1ms and caps at 50ms.
	PollIntervalMinMs int `json:"poll_interval_min_ms,omitempty"` //nolint:tagliatelle
	PollIntervalMaxMs int `json:"poll_interval_max_ms,omitempty"` //nolint:tagliatelle
}

// ConfigEnvVar names the environment variable LoadConfig checks for an
// explicit config file path (SPEC_FULL's configuration section).
const ConfigEnvVar = "PLASMITE_CONFIG"

// DefaultEngineConfig returns the built-in defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultDurability: "fast",
		PollIntervalMinMs: 1,
		PollIntervalMaxMs: 50,
	}
}

// LoadConfig resolves an EngineConfig with the following precedence
// (highest wins): built-in defaults, then $PLASMITE_CONFIG if set and the
// file it names exists, then an explicit path argument if non-empty.
func LoadConfig(explicitPath string, env []string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	if envPath := lookupEnv(env, ConfigEnvVar); envPath != "" {
		fileCfg, err := loadConfigFile(envPath, false)
		if err != nil {
			return EngineConfig{}, err
		}
		cfg = mergeEngineConfig(cfg, fileCfg)
	}

	if explicitPath != "" {
		fileCfg, err := loadConfigFile(explicitPath, true)
		if err != nil {
			return EngineConfig{}, err
		}
		cfg = mergeEngineConfig(cfg, fileCfg)
	}

	if err := validateEngineConfig(cfg); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

func lookupEnv(env []string, key string) string {
	prefix := key + "="
	for _, e := range env {
		if len(e) > len(prefix) && e[:len(prefix)] == prefix {
			return e[len(prefix):]
		}
	}
	if env == nil {
		return os.Getenv(key)
	}
	return ""
}

func loadConfigFile(path string, mustExist bool) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return EngineConfig{}, nil
		}
		return EngineConfig{}, newErr(KindUsage, "load_config", "reading %s: %v", path, err).withPath(path)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return EngineConfig{}, newErr(KindUsage, "load_config", "invalid JSONC in %s: %v", path, err).withPath(path)
	}

	var cfg EngineConfig
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return EngineConfig{}, newErr(KindUsage, "load_config", "invalid JSON in %s: %v", path, err).withPath(path)
	}
	return cfg, nil
}

func mergeEngineConfig(base, overlay EngineConfig) EngineConfig {
	if overlay.DefaultIndexCapacity != 0 {
		base.DefaultIndexCapacity = overlay.DefaultIndexCapacity
	}
	if overlay.DefaultDurability != "" {
		base.DefaultDurability = overlay.DefaultDurability
	}
	if overlay.PollIntervalMinMs != 0 {
		base.PollIntervalMinMs = overlay.PollIntervalMinMs
	}
	if overlay.PollIntervalMaxMs != 0 {
		base.PollIntervalMaxMs = overlay.PollIntervalMaxMs
	}
	return base
}

func validateEngineConfig(cfg EngineConfig) error {
	switch cfg.DefaultDurability {
	case "fast", "flush":
	default:
		return newErr(KindUsage, "load_config", "default_durability must be \"fast\" or \"flush\", got %q", cfg.DefaultDurability)
	}
	if cfg.PollIntervalMinMs <= 0 || cfg.PollIntervalMaxMs <= 0 || cfg.PollIntervalMinMs > cfg.PollIntervalMaxMs {
		return newErr(KindUsage, "load_config", "poll interval bounds invalid: min=%d max=%d", cfg.PollIntervalMinMs, cfg.PollIntervalMaxMs)
	}
	return nil
}

// Durability resolves the config's named default durability to the engine
// type.
func (c EngineConfig) Durability() Durability {
	if c.DefaultDurability == "flush" {
		return DurabilityFlush
	}
	return DurabilityFast
}

// FormatConfig returns cfg as formatted JSON, for diagnostics.
func FormatConfig(cfg EngineConfig) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}
	return string(data), nil
}
