// internal/waypoint/waypoint.go
//
// Waypoint (placemark) types for the Songle map.
// Defines:
//   - Point: a geographic position in degrees.
//   - Style: the classification tag of a placemark.
//   - Waypoint: a named, immutable marker, either a collectible word
//     ("line:position") or a decorative landmark.
//   - Decode/DecodeMarkers: validating decoders for remote records.

package waypoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Point is a latitude/longitude pair in double-precision degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the point lies within WGS84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Style classifies a placemark.
type Style string

const (
	StyleUnclassified    Style = "unclassified"
	StyleBoring          Style = "boring"
	StyleNotBoring       Style = "notboring"
	StyleInteresting     Style = "interesting"
	StyleVeryInteresting Style = "veryinteresting"
)

// Hue returns the marker colour a renderer should use for the style.
// Unknown styles fall back to azure, like unclassified ones.
func (s Style) Hue() string {
	switch s {
	case StyleBoring:
		return "yellow"
	case StyleNotBoring:
		return "orange"
	case StyleInteresting:
		return "red"
	case StyleVeryInteresting:
		return "violet"
	default:
		return "azure"
	}
}

// Waypoint is a geo-tagged point of interest.
type Waypoint struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    Point  `json:"location"`
	StyleID     Style  `json:"styleId"`
}

// wireWaypoint mirrors Waypoint with optional fields so missing keys
// can be told apart from zero values.
type wireWaypoint struct {
	Name        *string `json:"name"`
	Description string  `json:"description"`
	Location    *Point  `json:"location"`
	StyleID     string  `json:"styleId"`
}

// Decode builds a Waypoint from a remote marker record.
// The name and location are required; the location must be in range.
func Decode(raw json.RawMessage) (Waypoint, error) {
	var w wireWaypoint
	if err := json.Unmarshal(raw, &w); err != nil {
		return Waypoint{}, fmt.Errorf("decode waypoint: %w", err)
	}
	if w.Name == nil || strings.TrimSpace(*w.Name) == "" {
		return Waypoint{}, errors.New("decode waypoint: missing name")
	}
	if w.Location == nil {
		return Waypoint{}, fmt.Errorf("decode waypoint %q: missing location", *w.Name)
	}
	if !w.Location.Valid() {
		return Waypoint{}, fmt.Errorf("decode waypoint %q: location out of range", *w.Name)
	}
	return Waypoint{
		Name:        *w.Name,
		Description: w.Description,
		Location:    *w.Location,
		StyleID:     Style(w.StyleID),
	}, nil
}

// DecodeMarkers decodes a `markers` subtree keyed by waypoint name.
// A null or empty subtree yields an empty slice.
func DecodeMarkers(raw json.RawMessage) ([]Waypoint, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode markers: %w", err)
	}
	out := make([]Waypoint, 0, len(entries))
	for key, entry := range entries {
		w, err := Decode(entry)
		if err != nil {
			return nil, err
		}
		if w.Name != key {
			return nil, fmt.Errorf("decode markers: key %q holds waypoint %q", key, w.Name)
		}
		out = append(out, w)
	}
	return out, nil
}
