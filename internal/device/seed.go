package device

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document accepted by LoadSeed:
//
//	devices:
//	  - id: SW-1
//	    owner: owner-1
//	    name: Desk lamp
//	    model: switch-1
type SeedFile struct {
	Devices []Device `yaml:"devices"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) ([]Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	for i, d := range f.Devices {
		if err := Validate(d); err != nil {
			return nil, fmt.Errorf("seed device %d: %w", i, err)
		}
	}
	return f.Devices, nil
}

// Seed upserts devices into repo.
func Seed(ctx context.Context, repo *SQLiteRepository, devices []Device) error {
	for _, d := range devices {
		if err := repo.Upsert(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
