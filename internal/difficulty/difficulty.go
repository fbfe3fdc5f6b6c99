// internal/difficulty/difficulty.go
//
// Difficulty configuration keyed by map version.
//
//	version  name         threshold  timeout  timer
//	"1"      Impossible   40 m       180 s    yes
//	"2"      Very hard    50 m       360 s    yes
//	"3"      Hard         60 m       300 s    no
//	"4"      Medium       75 m       300 s    no
//	"5"      Easy         100 m      300 s    no
//
// The table is loaded once at startup (optionally overridden from TOML,
// see internal/config) and never mutated afterwards.

package difficulty

import (
	"fmt"
	"sort"
	"time"
)

// DefaultTimeoutSeconds applies to tiers that don't set a timeout.
const DefaultTimeoutSeconds = 300

// Level fixes the rules of one map version.
type Level struct {
	Version                string
	Name                   string
	CollectThresholdMeters float64
	TimeoutSeconds         int
	TimerEnabled           bool
}

// Timeout is the full countdown duration.
func (l Level) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// Table maps version ids to levels.
type Table map[string]Level

// Default returns the built-in table.
func Default() Table {
	return Table{
		"1": {Version: "1", Name: "Impossible", CollectThresholdMeters: 40, TimeoutSeconds: 180, TimerEnabled: true},
		"2": {Version: "2", Name: "Very hard", CollectThresholdMeters: 50, TimeoutSeconds: 360, TimerEnabled: true},
		"3": {Version: "3", Name: "Hard", CollectThresholdMeters: 60, TimeoutSeconds: DefaultTimeoutSeconds},
		"4": {Version: "4", Name: "Medium", CollectThresholdMeters: 75, TimeoutSeconds: DefaultTimeoutSeconds},
		"5": {Version: "5", Name: "Easy", CollectThresholdMeters: 100, TimeoutSeconds: DefaultTimeoutSeconds},
	}
}

// Lookup returns the level for version.
func (t Table) Lookup(version string) (Level, error) {
	l, ok := t[version]
	if !ok {
		return Level{}, fmt.Errorf("unknown map version %q", version)
	}
	return l, nil
}

// Versions lists the configured versions in ascending order.
func (t Table) Versions() []string {
	out := make([]string, 0, len(t))
	for v := range t {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Validate checks every level for usable values.
func (t Table) Validate() error {
	for v, l := range t {
		if l.Version != v {
			return fmt.Errorf("difficulty %q: version field is %q", v, l.Version)
		}
		if l.CollectThresholdMeters <= 0 {
			return fmt.Errorf("difficulty %q: threshold must be positive", v)
		}
		if l.TimeoutSeconds <= 0 {
			return fmt.Errorf("difficulty %q: timeout must be positive", v)
		}
	}
	return nil
}
