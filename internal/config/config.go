package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"progminer/internal/driver/device"
)

// Config is the daemon configuration: which driver to use, how many
// devices to enable, and the backend tuning parameters.
type Config struct {
	// Driver selects the backend: "cuda", "opencl" or "sim".
	Driver string `json:"driver"`

	// APIPort is the HTTP control API port.
	APIPort int `json:"api_port"`

	Settings device.Settings `json:"settings"`
}

// Default returns the configuration the daemon starts from when no file
// or environment override is present: one device, stock tuning
// defaults.
func Default() *Config {
	s := device.DefaultSettings()
	s.Devices = 1
	return &Config{
		Driver:   "opencl",
		APIPort:  8390,
		Settings: s,
	}
}

// DriverID maps the configured driver name to its wire identifier.
func (c *Config) DriverID() (device.Driver, error) {
	switch strings.ToLower(c.Driver) {
	case "cuda":
		return device.DriverCUDA, nil
	case "opencl", "ocl", "cl":
		return device.DriverOpenCL, nil
	case "sim", "simulate":
		// The simulated backend answers to either identifier.
		return device.DriverOpenCL, nil
	default:
		return 0, fmt.Errorf("unknown driver %q", c.Driver)
	}
}

// Validate rejects configurations the backends cannot apply.
func (c *Config) Validate() error {
	if _, err := c.DriverID(); err != nil {
		return err
	}
	if c.Settings.Devices == 0 {
		return fmt.Errorf("at least one device must be enabled")
	}
	if c.Settings.Devices > device.MaxMiners {
		return fmt.Errorf("devices %d exceeds capacity of %d", c.Settings.Devices, device.MaxMiners)
	}
	return nil
}

// Load reads the configuration: defaults, then the first JSON file found
// in the search paths (or the explicit path), then .env and environment
// variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env in the project root, then real environment variables on top.
	if data, err := os.ReadFile(filepath.Join(findProjectRoot(), ".env")); err == nil {
		applyEnvFile(string(data), cfg)
	}
	applyEnv(cfg, os.Getenv)

	if strings.EqualFold(cfg.Driver, "sim") || strings.EqualFold(cfg.Driver, "simulate") {
		cfg.Settings.Simulate = true
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func searchPaths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".progminer", "config.json"),
		"/etc/progminer/config.json",
		"./progminer.json",
	}
}

func applyEnvFile(content string, cfg *Config) {
	vars := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		vars[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	applyEnv(cfg, func(key string) string { return vars[key] })
}

func applyEnv(cfg *Config, get func(string) string) {
	if v := get("PROGMINER_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := get("PROGMINER_DEVICES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Settings.Devices = uint32(n)
		}
	}
	if v := get("PROGMINER_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = n
		}
	}
	if v := get("PROGMINER_SIMULATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Settings.Simulate = b
		}
	}
	if v := get("PROGMINER_KERNEL_FILE"); v != "" {
		cfg.Settings.CL.KernelFile = v
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
