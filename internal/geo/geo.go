package geo

import (
	"errors"

	"github.com/cgtracker/cgt/internal/model/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Marker geometry lives in region-local pixel space. Every marker is reduced
// to a single anchor point (line midpoint or cross centre) before measuring,
// so both kinds share one displacement rule.

// ErrUnknownGeometry is returned for a geometry variant this package does not know
var ErrUnknownGeometry = errors.New("unknown marker geometry")

// Segment builds the two-vertex line string joining a and b
func Segment(a, b core.Point2D) geom.LineString {
	seq := geom.NewSequence([]float64{a.X, a.Y, b.X, b.Y}, geom.DimXY)
	return geom.NewLineString(seq)
}

// Midpoint returns the midpoint of a line marker
func Midpoint(l core.Line) core.Point2D {
	return core.Point2D{
		X: (l.Start.X + l.End.X) / 2,
		Y: (l.Start.Y + l.End.Y) / 2,
	}
}

// Anchor returns the point a marker is measured from
func Anchor(g core.Geometry) (core.Point2D, error) {
	switch v := g.(type) {
	case core.Line:
		return Midpoint(v), nil
	case core.Cross:
		return v.Centre, nil
	default:
		return core.Point2D{}, ErrUnknownGeometry
	}
}

// Distance is the Euclidean distance between two pixel positions
func Distance(a, b core.Point2D) float64 {
	if a == b {
		return 0
	}
	return Segment(a, b).Length()
}

// Length returns the pixel length of a line marker
func Length(l core.Line) float64 {
	return Distance(l.Start, l.End)
}

// RectWithin reports whether inner lies entirely inside a frame of the given size
func RectWithin(inner core.Rect, frameWidth, frameHeight int) bool {
	return inner.X >= 0 && inner.Y >= 0 &&
		inner.Right() <= frameWidth && inner.Bottom() <= frameHeight
}
