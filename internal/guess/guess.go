// Package guess resolves free-text song title guesses.
package guess

import (
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Result of a guess.
type Result int

const (
	Incorrect Result = iota
	Correct
)

func (r Result) String() string {
	if r == Correct {
		return "correct"
	}
	return "incorrect"
}

// Resolver compares guesses against one target title.
type Resolver struct {
	title string
}

func NewResolver(title string) *Resolver { return &Resolver{title: title} }

// Title is the target title.
func (r *Resolver) Title() string { return r.title }

// Guess compares the lowercase forms of input and title. Everything else,
// whitespace included, must match exactly.
func (r *Resolver) Guess(input string) Result {
	if r.title == "" {
		return Incorrect
	}
	// Casers keep state, so each call gets its own.
	lower := cases.Lower(language.Und)
	if lower.String(input) == lower.String(r.title) {
		return Correct
	}
	return Incorrect
}

// MergeDifficulties appends version to existing unless already present.
// Existing entries keep their order; the input slice is not modified.
func MergeDifficulties(existing []string, version string) []string {
	out := slices.Clone(existing)
	if out == nil {
		out = []string{}
	}
	if version == "" || slices.Contains(out, version) {
		return out
	}
	return append(out, version)
}
