// internal/waypoint/kml.go
//
// KML placemark parsing for map{version}.kml source documents.
//
// Format (one Placemark per word or landmark):
//
//	<kml><Document>
//	  <Placemark>
//	    <name>12:3</name>
//	    <description>boring</description>
//	    <styleUrl>#boring</styleUrl>
//	    <Point><coordinates>-3.1868,55.9445,0</coordinates></Point>
//	  </Placemark>
//	</Document></kml>
//
// Coordinates are "longitude,latitude[,altitude]".

package waypoint

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseError reports a malformed source document.
type ParseError struct {
	Doc string // document kind, e.g. "kml"
	Err error
}

func (e *ParseError) Error() string { return "parse " + e.Doc + ": " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

type kmlDoc struct {
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`
}

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	StyleURL    string `xml:"styleUrl"`
	Coordinates string `xml:"Point>coordinates"`
}

// ParseKML reads every Placemark in r.
// Any structural problem (bad XML, missing name, bad coordinates,
// duplicate names) fails the whole document with a *ParseError.
func ParseKML(r io.Reader) ([]Waypoint, error) {
	var doc kmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &ParseError{Doc: "kml", Err: err}
	}
	out := make([]Waypoint, 0, len(doc.Placemarks))
	seen := make(map[string]struct{}, len(doc.Placemarks))
	for i, p := range doc.Placemarks {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, &ParseError{Doc: "kml", Err: fmt.Errorf("placemark %d: missing name", i)}
		}
		if _, dup := seen[name]; dup {
			return nil, &ParseError{Doc: "kml", Err: fmt.Errorf("placemark %q: duplicate name", name)}
		}
		seen[name] = struct{}{}
		loc, err := parseCoordinates(p.Coordinates)
		if err != nil {
			return nil, &ParseError{Doc: "kml", Err: fmt.Errorf("placemark %q: %w", name, err)}
		}
		out = append(out, Waypoint{
			Name:        name,
			Description: strings.TrimSpace(p.Description),
			Location:    loc,
			StyleID:     Style(strings.TrimPrefix(strings.TrimSpace(p.StyleURL), "#")),
		})
	}
	return out, nil
}

func parseCoordinates(s string) (Point, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 2 {
		return Point{}, fmt.Errorf("coordinates %q: want lon,lat", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("latitude: %w", err)
	}
	p := Point{Latitude: lat, Longitude: lon}
	if !p.Valid() {
		return Point{}, fmt.Errorf("coordinates %q out of range", s)
	}
	return p, nil
}
