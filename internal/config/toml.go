package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/songle-game/songle-server/internal/difficulty"
)

// DifficultyFile represents the TOML overrides file:
//
//	[difficulty.1]
//	threshold = 35
//	timeout = 120
//	timer = true
type DifficultyFile struct {
	Difficulty map[string]LevelOverride `toml:"difficulty"`
}

// LevelOverride maps one [difficulty.<version>] table. Unset keys keep the
// built-in value.
type LevelOverride struct {
	Name      *string  `toml:"name"`
	Threshold *float64 `toml:"threshold"`
	Timeout   *int     `toml:"timeout"`
	Timer     *bool    `toml:"timer"`
}

// LoadDifficultyFile reads overrides from path. Missing file is not an error.
func LoadDifficultyFile(path string) (DifficultyFile, error) {
	if path == "" {
		return DifficultyFile{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return DifficultyFile{}, nil
		}
		return DifficultyFile{}, fmt.Errorf("failed to stat difficulty file: %w", err)
	}
	var f DifficultyFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return DifficultyFile{}, fmt.Errorf("failed to decode difficulty file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return DifficultyFile{}, fmt.Errorf("difficulty file: unknown key %s", undecoded[0])
	}
	return f, nil
}

// Apply merges the overrides into a copy of base. New versions need at
// least a threshold; the result is validated.
func (f DifficultyFile) Apply(base difficulty.Table) (difficulty.Table, error) {
	out := make(difficulty.Table, len(base)+len(f.Difficulty))
	for v, l := range base {
		out[v] = l
	}
	for v, o := range f.Difficulty {
		l, ok := out[v]
		if !ok {
			if o.Threshold == nil {
				return nil, fmt.Errorf("difficulty %q: new versions need a threshold", v)
			}
			l = difficulty.Level{Version: v, Name: v, TimeoutSeconds: difficulty.DefaultTimeoutSeconds}
		}
		if o.Name != nil {
			l.Name = *o.Name
		}
		if o.Threshold != nil {
			l.CollectThresholdMeters = *o.Threshold
		}
		if o.Timeout != nil {
			l.TimeoutSeconds = *o.Timeout
		}
		if o.Timer != nil {
			l.TimerEnabled = *o.Timer
		}
		out[v] = l
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
