// internal/lyrics/index.go
//
// Index pairs the song's lines with the set of collected words.
// The collected set is the single source of truth for whether a word is
// uncovered. Index is not safe for concurrent use; the session guards it.

package lyrics

import "strconv"

// Index holds lyrics lines and the collected-word set.
type Index struct {
	lines Lines
	words map[string]string // "line:position" -> word
}

// NewIndex constructs an empty Index.
func NewIndex() *Index {
	return &Index{lines: Lines{}, words: map[string]string{}}
}

// SetLines replaces the lyrics.
func (x *Index) SetLines(l Lines) {
	if l == nil {
		l = Lines{}
	}
	x.lines = l
}

// Lines returns the current lyrics.
func (x *Index) Lines() Lines { return x.lines }

// Loaded reports whether any lyrics are present.
func (x *Index) Loaded() bool { return len(x.lines) > 0 }

// Word resolves the word at (line, position).
func (x *Index) Word(line, position int) (string, bool) {
	return x.lines.Word(line, position)
}

// IsUncovered reports whether (line, position) has been collected.
func (x *Index) IsUncovered(line, position int) bool {
	_, ok := x.words[Key(line, position)]
	return ok
}

// Collect records a word. It reports false if the key was already present.
func (x *Index) Collect(key, word string) bool {
	if _, ok := x.words[key]; ok {
		return false
	}
	x.words[key] = word
	return true
}

// SetWords replaces the collected-word set with a copy of w.
func (x *Index) SetWords(w map[string]string) {
	x.words = make(map[string]string, len(w))
	for k, v := range w {
		x.words[k] = v
	}
}

// Words returns a copy of the collected-word set.
func (x *Index) Words() map[string]string {
	out := make(map[string]string, len(x.words))
	for k, v := range x.words {
		out[k] = v
	}
	return out
}

// Count is the number of collected words.
func (x *Index) Count() int { return len(x.words) }

// ClearWords empties the collected-word set.
func (x *Index) ClearWords() { x.words = map[string]string{} }

// Clear drops lyrics and collected words.
func (x *Index) Clear() {
	x.lines = Lines{}
	x.words = map[string]string{}
}

// MaskedLine is a lyric line as shown to the player: covered words are "".
type MaskedLine struct {
	Number int      `json:"number"`
	Words  []string `json:"words"`
}

// Masked renders every line with uncollected words blanked out.
func (x *Index) Masked() []MaskedLine {
	nums := x.lines.Numbers()
	out := make([]MaskedLine, 0, len(nums))
	for _, n := range nums {
		src := x.lines[strconv.Itoa(n)]
		words := make([]string, len(src))
		for i, w := range src {
			if x.IsUncovered(n, i+1) {
				words[i] = w
			}
		}
		out = append(out, MaskedLine{Number: n, Words: words})
	}
	return out
}

// CollectedHeader is the "N words collected" banner.
func CollectedHeader(n int) string {
	if n == 1 {
		return "1 word collected"
	}
	return strconv.Itoa(n) + " words collected"
}
