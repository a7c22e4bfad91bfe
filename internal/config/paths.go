package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".voxcoach"

// Paths holds resolved filesystem paths for voxcoach data.
type Paths struct {
	Base   string // ~/.voxcoach
	Config string // ~/.voxcoach/config.yaml
	Data   string // ~/.voxcoach/data
	Logs   string // ~/.voxcoach/logs
	Sounds string // ~/.voxcoach/sounds
}

// ResolvePaths computes all standard paths from the home directory.
// If VOXCOACH_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("VOXCOACH_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
		Sounds: filepath.Join(base, "sounds"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Data, p.Logs, p.Sounds}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
