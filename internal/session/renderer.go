package session

import "github.com/songle-game/songle-server/internal/waypoint"

// Renderer is the map surface the session keeps in step with the waypoint
// store. Calls are made from inside the session's critical section, so
// implementations must not call back into the Session.
type Renderer interface {
	AddMarker(pos waypoint.Point, title string, style waypoint.Style)
	RemoveMarker(title string)
	MoveCamera(pos waypoint.Point, zoom float64)
	SetCollectionRadius(center waypoint.Point, radiusMeters float64)
}

type nopRenderer struct{}

func (nopRenderer) AddMarker(waypoint.Point, string, waypoint.Style) {}
func (nopRenderer) RemoveMarker(string)                              {}
func (nopRenderer) MoveCamera(waypoint.Point, float64)               {}
func (nopRenderer) SetCollectionRadius(waypoint.Point, float64)      {}

// render mirrors waypoint store events onto the renderer. Store mutations
// only happen under mu, so drawn needs no lock of its own.
func (s *Session) render(ev waypoint.Event) {
	r := s.opts.Renderer
	switch ev.Kind {
	case waypoint.EventLoaded, waypoint.EventCleared:
		for name := range s.drawn {
			r.RemoveMarker(name)
		}
		s.drawn = make(map[string]struct{}, len(ev.Waypoints))
		for _, w := range ev.Waypoints {
			r.AddMarker(w.Location, w.Name, w.StyleID)
			s.drawn[w.Name] = struct{}{}
		}
	case waypoint.EventRemoved:
		for _, w := range ev.Waypoints {
			r.RemoveMarker(w.Name)
			delete(s.drawn, w.Name)
		}
	}
}
