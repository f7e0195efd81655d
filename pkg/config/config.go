// Package config holds build information and the device profile used by the
// command line tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Set at build time with -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func BuildInfo() string {
	return fmt.Sprintf("%s-%s-%s", Version, Date, Commit)
}

var ErrInvalidProfile = errors.New("invalid profile")

// Profile describes which EEPROM to talk to and through which adapter.
type Profile struct {
	Adapter     string        `yaml:"adapter"`
	Device      string        `yaml:"device"`
	Bus         int           `yaml:"bus"`
	Address     uint8         `yaml:"address"`
	Chip        string        `yaml:"chip"`
	PageSize    int           `yaml:"page_size"`
	SpeedKHz    int           `yaml:"speed_khz"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
	TxTimeout   time.Duration `yaml:"tx_timeout"`
}

func Default() Profile {
	return Profile{
		Adapter:     "generic",
		Device:      "/dev/i2c-1",
		Bus:         -1,
		Address:     0x50,
		Chip:        "AT24C32",
		PollTimeout: 15 * time.Millisecond,
		TxTimeout:   time.Second,
	}
}

// Load reads a YAML profile on top of Default. An empty path returns Default.
func Load(path string) (Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("could not read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("could not decode profile %s: %w", path, err)
	}
	return p, p.Validate()
}

func (p Profile) Validate() error {
	if p.Address > 0x7F {
		return fmt.Errorf("%w: address %#x is not a 7-bit address", ErrInvalidProfile, p.Address)
	}
	if p.PageSize < 0 {
		return fmt.Errorf("%w: negative page size %d", ErrInvalidProfile, p.PageSize)
	}
	if p.PollTimeout <= 0 {
		return fmt.Errorf("%w: poll timeout must be positive", ErrInvalidProfile)
	}
	switch p.Adapter {
	case "generic", "nanopi", "mcp2221", "sim":
	default:
		return fmt.Errorf("%w: unknown adapter %q", ErrInvalidProfile, p.Adapter)
	}
	return nil
}

func (p Profile) Write(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("could not encode profile: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
