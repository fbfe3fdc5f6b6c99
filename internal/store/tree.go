// internal/store/tree.go
//
// Remote progress store: a JSON tree addressed by "/"-separated paths.
//
// Semantics (Firebase-like):
//   - Objects are interior nodes; scalars and arrays are leaves.
//   - Writing null or an empty object deletes the node.
//   - Writing under a path whose ancestor is a leaf replaces that leaf.
//   - Reading a path returns the subtree reassembled as JSON, or absent.
//
// Implementations store the tree flattened to leaf rows keyed by full path,
// so a subtree is a contiguous key range: [p, p+"/" ... p+"0").

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidPath rejects empty paths and empty segments.
var ErrInvalidPath = errors.New("store: invalid path")

// Tree is the remote progress store.
type Tree interface {
	// ReadOnce returns the subtree at path; ok is false when absent.
	ReadOnce(ctx context.Context, path string) (raw json.RawMessage, ok bool, err error)
	// WriteChildren sets each child of path, leaving other children intact.
	WriteChildren(ctx context.Context, path string, children map[string]any) error
	// SetValue replaces the subtree at path.
	SetValue(ctx context.Context, path string, value any) error
	// DeleteValue removes the subtree at path. Absent paths are a no-op.
	DeleteValue(ctx context.Context, path string) error
}

// Escape makes s safe to use as one path segment.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, "/", "%2F")
}

// Unescape reverses Escape.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, "%2F", "/")
	return strings.ReplaceAll(s, "%25", "%")
}

// Join escapes each segment and joins them into a path.
func Join(segments ...string) string {
	esc := make([]string, len(segments))
	for i, s := range segments {
		esc[i] = Escape(s)
	}
	return strings.Join(esc, "/")
}

func validPath(p string) error {
	if p == "" {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}

// subtreeBounds returns the half-open key range holding every descendant of p.
// '0' is the byte after '/', so [p+"/", p+"0") covers exactly p's children.
func subtreeBounds(p string) (lo, hi string) {
	return p + "/", p + "0"
}

// ancestors lists the proper prefixes of p, shortest first.
func ancestors(p string) []string {
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// flatten normalizes value through JSON and returns its leaves keyed by
// full path under base.
func flatten(base string, value any) (map[string]string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", base, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("store: normalize %s: %w", base, err)
	}
	out := map[string]string{}
	if err := flattenInto(out, base, v); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(out map[string]string, p string, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range t {
			if k == "" {
				return fmt.Errorf("%w: empty key under %q", ErrInvalidPath, p)
			}
			if err := flattenInto(out, p+"/"+Escape(k), child); err != nil {
				return err
			}
		}
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		out[p] = string(b)
		return nil
	}
}

// assemble rebuilds the subtree at base from its leaf rows.
func assemble(base string, rows map[string]string) (json.RawMessage, bool, error) {
	if len(rows) == 0 {
		return nil, false, nil
	}
	if leaf, ok := rows[base]; ok {
		return json.RawMessage(leaf), true, nil
	}
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := map[string]any{}
	for _, k := range keys {
		rel := strings.TrimPrefix(k, base+"/")
		segs := strings.Split(rel, "/")
		node := root
		for _, seg := range segs[:len(segs)-1] {
			seg = Unescape(seg)
			next, ok := node[seg].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[seg] = next
			}
			node = next
		}
		node[Unescape(segs[len(segs)-1])] = json.RawMessage(rows[k])
	}
	b, err := json.Marshal(root)
	if err != nil {
		return nil, false, fmt.Errorf("store: assemble %s: %w", base, err)
	}
	return b, true, nil
}
