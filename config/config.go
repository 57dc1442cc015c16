// Package config loads and validates the node's TOML configuration file,
// grounded on the teacher's config.Load (create-default-if-missing,
// BurntSushi/toml decode) generalized to the full settings surface
// energychain's components need.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads cfg from path, creating a default file there if none exists
// yet (mirroring the teacher's first-run behavior).
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default config: %w", err)
	}
	return &cfg, nil
}
