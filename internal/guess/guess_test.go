package guess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuess(t *testing.T) {
	r := NewResolver("bohemian rhapsody")
	tests := []struct {
		in   string
		want Result
	}{
		{"Bohemian Rhapsody", Correct},
		{"BOHEMIAN RHAPSODY", Correct},
		{"  bohemian rhapsody ", Incorrect},
		{"bohemian rhapsody ", Incorrect},
		{"Bohemian Rhap", Incorrect},
		{"bohemian  rhapsody", Incorrect},
		{"", Incorrect},
	}
	for _, c := range tests {
		assert.Equal(t, c.want, r.Guess(c.in), c.in)
	}

	assert.Equal(t, Correct, NewResolver("Straße").Guess("STRAßE"))
	assert.Equal(t, Incorrect, NewResolver("Straße").Guess("STRASSE"), "no case folding beyond lowercase")
	assert.Equal(t, Correct, NewResolver("ÉTÉ").Guess("été"))
	assert.Equal(t, Incorrect, NewResolver("").Guess(""))
}

func TestMergeDifficulties(t *testing.T) {
	existing := []string{"2"}
	assert.Equal(t, []string{"2", "4"}, MergeDifficulties(existing, "4"))
	assert.Equal(t, []string{"2"}, existing, "input untouched")
	assert.Equal(t, []string{"2"}, MergeDifficulties(existing, "2"), "already completed is a no-op")
	assert.Equal(t, []string{"1"}, MergeDifficulties(nil, "1"))
	assert.Equal(t, []string{}, MergeDifficulties(nil, ""))
}
