// internal/lyrics/lyrics.go
//
// Lyrics parsing and word keys.
//
// Source format (words.txt): one lyric line per input line, prefixed by
// its line number, e.g.
//
//	   3  Is this the real life
//
// Parsing rules:
//   - Tokens are split on whitespace.
//   - The first token must be a positive integer; other lines are
//     skipped silently (the file interleaves header lines).
//   - Lines with no words after the number are skipped.
//   - The last occurrence of a duplicate line number wins.
//
// A word is addressed by the key "line:position", position counted from 1.

package lyrics

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Lines maps a stringified line number to its ordered words.
type Lines map[string][]string

// maxLineBytes bounds one lyrics line; longer lines are skipped.
const maxLineBytes = 1 << 20

// Parse reads a words.txt document.
// Malformed or oversized lines are skipped, so only read errors are returned.
func Parse(r io.Reader) (Lines, error) {
	out := Lines{}
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	skip := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !skip {
			line = append(line, chunk...)
			if len(line) > maxLineBytes {
				skip, line = true, line[:0]
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if !skip {
			if num, words, ok := parseLine(string(line)); ok {
				out[num] = words
			}
		}
		line, skip = line[:0], false
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) Lines {
	out, _ := Parse(strings.NewReader(s))
	return out
}

func parseLine(line string) (string, []string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", nil, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return "", nil, false
	}
	return strconv.Itoa(n), fields[1:], true
}

// Decode reads a remote `lyrics` subtree.
func Decode(raw json.RawMessage) (Lines, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out Lines
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode lyrics: %w", err)
	}
	for k := range out {
		if n, err := strconv.Atoi(k); err != nil || n <= 0 {
			return nil, fmt.Errorf("decode lyrics: bad line number %q", k)
		}
	}
	return out, nil
}

// Word returns the word at (line, position) or false when out of range.
func (l Lines) Word(line, position int) (string, bool) {
	words, ok := l[strconv.Itoa(line)]
	if !ok || position < 1 || position > len(words) {
		return "", false
	}
	return words[position-1], true
}

// Numbers returns the line numbers in ascending order.
func (l Lines) Numbers() []int {
	out := make([]int, 0, len(l))
	for k := range l {
		if n, err := strconv.Atoi(k); err == nil {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// Key builds the "line:position" key of a word.
func Key(line, position int) string {
	return strconv.Itoa(line) + ":" + strconv.Itoa(position)
}

// ParseKey splits a "line:position" key.
// It reports false for anything else, e.g. decorative landmark names.
func ParseKey(key string) (line, position int, ok bool) {
	a, b, found := strings.Cut(key, ":")
	if !found {
		return 0, 0, false
	}
	line, err := strconv.Atoi(a)
	if err != nil || line <= 0 {
		return 0, 0, false
	}
	position, err = strconv.Atoi(b)
	if err != nil || position <= 0 {
		return 0, 0, false
	}
	return line, position, true
}
