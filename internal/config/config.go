// Package config loads the dtprobe configuration file.
//
// Values are read from a single YAML file named by --config. Command line
// flags are applied on top by the caller.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"drivercore-go/drivers/ecam"
	"drivercore-go/internal/logging"
)

type Config struct {
	// Blob is the path of the device tree blob. Compressed blobs are
	// recognized by their magic.
	Blob string `yaml:"blob" json:"blob"`

	// Strict stops the full pass at the first failing driver.
	// Default: true
	Strict bool `yaml:"strict" json:"strict"`

	// PreKernelOnly stops after the pre-kernel pass.
	PreKernelOnly bool `yaml:"pre_kernel_only" json:"pre_kernel_only"`

	// Output selects the inventory format, yaml or json.
	// Default: yaml
	Output string `yaml:"output" json:"output"`

	Logging logging.Config `yaml:"logging" json:"logging"`
	PCI     PCIConfig      `yaml:"pci" json:"pci"`
	Serial  SerialConfig   `yaml:"serial" json:"serial"`
}

type PCIConfig struct {
	// Enabled runs the PCI pass after the device tree pass.
	// Default: true
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Functions populate the config space of every generic ECAM host.
	Functions []ecam.Function `yaml:"functions" json:"functions"`
}

type SerialConfig struct {
	Baud     uint32 `yaml:"baud" json:"baud"`
	RingSize int    `yaml:"ring_size" json:"ring_size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Strict:  true,
		Output:  "yaml",
		Logging: logging.Config{Level: "info"},
		PCI:     PCIConfig{Enabled: true},
	}
}

// LoadFile reads path over the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Output {
	case "yaml", "json":
	default:
		return fmt.Errorf("config: output %q is not yaml or json", c.Output)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging: %w", err)
	}
	for scope, lvl := range c.Logging.Scopes {
		if _, err := logging.ParseLevel(lvl); err != nil {
			return fmt.Errorf("config: logging scope %s: %w", scope, err)
		}
	}
	if n := c.Serial.RingSize; n < 0 || n&(n-1) != 0 {
		return fmt.Errorf("config: serial ring_size %d is not a power of two", n)
	}
	for _, f := range c.PCI.Functions {
		if f.Device > 31 || f.Function > 7 {
			return fmt.Errorf("config: pci function %02x:%02x.%x out of range", f.Bus, f.Device, f.Function)
		}
	}
	return nil
}
