// Package proximity decides whether a waypoint is close enough to the
// player's live location to be collected.
package proximity

import (
	"math"

	"github.com/songle-game/songle-server/internal/waypoint"
)

// LiveLocationTitle is the title of the renderer's live-location marker.
// Tapping it never collects anything.
const LiveLocationTitle = "Current Position"

// earthRadius is the IUGG mean Earth radius in meters.
const earthRadius = 6371008.8

// Outcome of evaluating a waypoint against the live location.
type Outcome string

const (
	Collected  Outcome = "collected"
	TooFar     Outcome = "too_far"
	Ineligible Outcome = "ineligible"
)

// Distance is the great-circle (haversine) distance between a and b in meters.
func Distance(a, b waypoint.Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * earthRadius * math.Asin(math.Sqrt(h))
}

// Evaluate classifies target relative to the live location.
// A nil current means no fix has been received yet. Only a distance
// strictly greater than thresholdMeters is TooFar.
func Evaluate(target waypoint.Waypoint, current *waypoint.Point, thresholdMeters float64) (Outcome, float64) {
	if current == nil || target.Name == LiveLocationTitle {
		return Ineligible, 0
	}
	d := Distance(target.Location, *current)
	if d > thresholdMeters {
		return TooFar, d
	}
	return Collected, d
}

// InRange returns the waypoints of wps that Evaluate would collect,
// in input order.
func InRange(wps []waypoint.Waypoint, current *waypoint.Point, thresholdMeters float64) []waypoint.Waypoint {
	if current == nil {
		return nil
	}
	var out []waypoint.Waypoint
	for _, w := range wps {
		if o, _ := Evaluate(w, current, thresholdMeters); o == Collected {
			out = append(out, w)
		}
	}
	return out
}
