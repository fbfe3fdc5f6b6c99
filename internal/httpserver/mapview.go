package httpserver

import (
	"sort"
	"sync"

	"github.com/songle-game/songle-server/internal/waypoint"
)

// mapView is the renderer behind an HTTP session: it keeps what a map
// client should currently draw so GET /sessions/{id} can return it.
type mapView struct {
	mu      sync.Mutex
	markers map[string]drawnMarker
	camera  *waypoint.Point
	zoom    float64
	circle  *radiusCircle
}

type drawnMarker struct {
	Title    string         `json:"title"`
	Position waypoint.Point `json:"position"`
	Hue      string         `json:"hue,omitempty"`
}

type radiusCircle struct {
	Center       waypoint.Point `json:"center"`
	RadiusMeters float64        `json:"radiusMeters"`
}

type cameraRes struct {
	Position waypoint.Point `json:"position"`
	Zoom     float64        `json:"zoom"`
}

type mapRes struct {
	Markers []drawnMarker `json:"markers"`
	Camera  *cameraRes    `json:"camera,omitempty"`
	Radius  *radiusCircle `json:"radius,omitempty"`
}

func newMapView() *mapView {
	return &mapView{markers: map[string]drawnMarker{}}
}

func (m *mapView) AddMarker(pos waypoint.Point, title string, style waypoint.Style) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := drawnMarker{Title: title, Position: pos}
	if style != "" {
		d.Hue = style.Hue()
	}
	m.markers[title] = d
}

func (m *mapView) RemoveMarker(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, title)
}

func (m *mapView) MoveCamera(pos waypoint.Point, zoom float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camera, m.zoom = &pos, zoom
}

func (m *mapView) SetCollectionRadius(center waypoint.Point, radiusMeters float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circle = &radiusCircle{Center: center, RadiusMeters: radiusMeters}
}

// snapshot returns the drawn state with markers sorted by title.
func (m *mapView) snapshot() mapRes {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := mapRes{Markers: make([]drawnMarker, 0, len(m.markers))}
	for _, d := range m.markers {
		out.Markers = append(out.Markers, d)
	}
	sort.Slice(out.Markers, func(i, j int) bool { return out.Markers[i].Title < out.Markers[j].Title })
	if m.camera != nil {
		out.Camera = &cameraRes{Position: *m.camera, Zoom: m.zoom}
	}
	if m.circle != nil {
		c := *m.circle
		out.Radius = &c
	}
	return out
}
