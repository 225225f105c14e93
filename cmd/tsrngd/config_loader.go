package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrConfigFileNotFound is returned when LoadConfig is given a path that
// does not exist.
var ErrConfigFileNotFound = errors.New("config: file not found")

// ErrInvalidConfig wraps any failure surfaced by ValidateConfig.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// LoadConfig reads a TOML-like configuration file into a Config seeded
// with DefaultConfig's values. An empty path returns the defaults
// unchanged. The parser handles "key = value" pairs and "[section]"
// headers; it intentionally does not pull in a general TOML library since
// the shape here is a handful of flat sections, not arbitrary documents.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, ErrConfigFileNotFound
		}
		return cfg, err
	}

	section := ""
	for lineNum, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] == '[' {
			end := strings.Index(line, "]")
			if end < 0 {
				return cfg, fmt.Errorf("line %d: unclosed section header", lineNum+1)
			}
			section = strings.TrimSpace(line[1:end])
			continue
		}
		eqIdx := strings.Index(line, "=")
		if eqIdx < 0 {
			return cfg, fmt.Errorf("line %d: expected key = value", lineNum+1)
		}
		key := strings.TrimSpace(line[:eqIdx])
		val := strings.TrimSpace(line[eqIdx+1:])
		if err := applyConfigValue(&cfg, section, key, val, lineNum+1); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func applyConfigValue(cfg *Config, section, key, val string, lineNum int) error {
	switch section {
	case "":
		return applyTopLevel(cfg, key, val, lineNum)
	case "store":
		return applyStore(cfg, key, val, lineNum)
	case "http":
		return applyHTTP(cfg, key, val, lineNum)
	case "metrics":
		return applyMetrics(cfg, key, val, lineNum)
	case "log":
		return applyLog(cfg, key, val, lineNum)
	case "defaults":
		return applyDefaults(cfg, key, val, lineNum)
	case "auth":
		return applyAuth(cfg, key, val, lineNum)
	default:
		return fmt.Errorf("line %d: unknown section [%s]", lineNum, section)
	}
}

func applyTopLevel(cfg *Config, key, val string, lineNum int) error {
	switch key {
	case "datadir":
		cfg.DataDir = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in top-level", lineNum, key)
	}
	return nil
}

func applyStore(cfg *Config, key, val string, lineNum int) error {
	switch key {
	case "backend":
		cfg.StoreBackend = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [store]", lineNum, key)
	}
	return nil
}

func applyHTTP(cfg *Config, key, val string, lineNum int) error {
	switch key {
	case "host":
		cfg.HTTPHost = unquote(val)
	case "port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid http port: %w", lineNum, err)
		}
		cfg.HTTPPort = n
	default:
		return fmt.Errorf("line %d: unknown key %q in [http]", lineNum, key)
	}
	return nil
}

func applyMetrics(cfg *Config, key, val string, lineNum int) error {
	switch key {
	case "host":
		cfg.MetricsHost = unquote(val)
	case "port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid metrics port: %w", lineNum, err)
		}
		cfg.MetricsPort = n
	default:
		return fmt.Errorf("line %d: unknown key %q in [metrics]", lineNum, key)
	}
	return nil
}

func applyLog(cfg *Config, key, val string, lineNum int) error {
	switch key {
	case "level":
		cfg.LogLevel = unquote(val)
	case "format":
		cfg.LogFormat = unquote(val)
	default:
		return fmt.Errorf("line %d: unknown key %q in [log]", lineNum, key)
	}
	return nil
}

func applyDefaults(cfg *Config, key, val string, lineNum int) error {
	switch key {
	case "leaf_size_bytes":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid leaf_size_bytes: %w", lineNum, err)
		}
		cfg.LeafSizeBytes = n
	case "vdf_t":
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid vdf_t: %w", lineNum, err)
		}
		cfg.VDFT = n
	case "modulus_bits":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid modulus_bits: %w", lineNum, err)
		}
		cfg.ModulusBits = n
	case "output_bits":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid output_bits: %w", lineNum, err)
		}
		cfg.OutputBits = n
	default:
		return fmt.Errorf("line %d: unknown key %q in [defaults]", lineNum, key)
	}
	return nil
}

func applyAuth(cfg *Config, key, val string, lineNum int) error {
	switch key {
	case "enabled":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid auth enabled: %w", lineNum, err)
		}
		cfg.EnableAuth = b
	case "token":
		cfg.AuthToken = unquote(val)
	case "rate_limit":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid rate_limit: %w", lineNum, err)
		}
		cfg.RateLimit = n
	case "rate_burst":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("line %d: invalid rate_burst: %w", lineNum, err)
		}
		cfg.RateBurst = n
	default:
		return fmt.Errorf("line %d: unknown key %q in [auth]", lineNum, key)
	}
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// ApplyEnvironment overlays TSRNGD_* environment variables onto cfg.
// Invalid values are ignored rather than rejected, matching the teacher's
// lenient environment-override behavior.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv("TSRNGD_DATADIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TSRNGD_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("TSRNGD_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = n
		}
	}
	if v := os.Getenv("TSRNGD_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
	if v := os.Getenv("TSRNGD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TSRNGD_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
		cfg.EnableAuth = true
	}
}

// MergeCLIFlags overlays onto cfg every field of override whose value
// differs from DefaultConfig's (EnableAuth and AuthToken only when set;
// RateBurst is not merged). It is used to let explicit CLI flags win over
// file- and env-sourced configuration without clobbering fields the user
// never touched.
func MergeCLIFlags(cfg *Config, override Config) {
	defaults := DefaultConfig()

	if override.DataDir != defaults.DataDir && override.DataDir != "" {
		cfg.DataDir = override.DataDir
	}
	if override.StoreBackend != defaults.StoreBackend {
		cfg.StoreBackend = override.StoreBackend
	}
	if override.HTTPHost != defaults.HTTPHost {
		cfg.HTTPHost = override.HTTPHost
	}
	if override.HTTPPort != defaults.HTTPPort {
		cfg.HTTPPort = override.HTTPPort
	}
	if override.MetricsHost != defaults.MetricsHost {
		cfg.MetricsHost = override.MetricsHost
	}
	if override.MetricsPort != defaults.MetricsPort {
		cfg.MetricsPort = override.MetricsPort
	}
	if override.LogLevel != defaults.LogLevel {
		cfg.LogLevel = override.LogLevel
	}
	if override.LogFormat != defaults.LogFormat {
		cfg.LogFormat = override.LogFormat
	}
	if override.LeafSizeBytes != defaults.LeafSizeBytes {
		cfg.LeafSizeBytes = override.LeafSizeBytes
	}
	if override.VDFT != defaults.VDFT {
		cfg.VDFT = override.VDFT
	}
	if override.ModulusBits != defaults.ModulusBits {
		cfg.ModulusBits = override.ModulusBits
	}
	if override.OutputBits != defaults.OutputBits {
		cfg.OutputBits = override.OutputBits
	}
	if override.EnableAuth {
		cfg.EnableAuth = true
	}
	if override.AuthToken != "" {
		cfg.AuthToken = override.AuthToken
		cfg.EnableAuth = true
	}
	if override.RateLimit != defaults.RateLimit {
		cfg.RateLimit = override.RateLimit
	}
}

// ValidateConfig runs Config.Validate, wrapping failures in ErrInvalidConfig
// so callers can errors.Is against a single sentinel regardless of the
// specific reason.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
