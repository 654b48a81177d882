// internal/model/core/marker.go
package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MarkerKind discriminates line markers from point markers
type MarkerKind uint8

const (
	KindLine MarkerKind = iota
	KindPoint
)

// DefaultCrossRadius is the half-size of the cross glyph drawn for point markers.
// It is display-only and never measured or persisted.
const DefaultCrossRadius = 5.0

func (k MarkerKind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindPoint:
		return "point"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Title returns the capitalised kind name used in family labels
func (k MarkerKind) Title() string {
	switch k {
	case KindLine:
		return "Line"
	case KindPoint:
		return "Point"
	default:
		return k.String()
	}
}

// ParseMarkerKind converts "line" or "point" (any case) to a MarkerKind
func ParseMarkerKind(s string) (MarkerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "line":
		return KindLine, nil
	case "point":
		return KindPoint, nil
	default:
		return 0, fmt.Errorf("unknown marker kind %q", s)
	}
}

// Geometry is the shape of a marker. The set of implementations is closed:
// Line and Cross.
type Geometry interface {
	Kind() MarkerKind
	isGeometry()
}

// Line is a line marker given by its two endpoints
type Line struct {
	Start Point2D `json:"start"`
	End   Point2D `json:"end"`
}

// Kind implements Geometry
func (Line) Kind() MarkerKind { return KindLine }
func (Line) isGeometry()      {}

// Cross is a point marker drawn as a small cross
type Cross struct {
	Centre Point2D `json:"centre"`
	Radius float64 `json:"-"`
}

// Kind implements Geometry
func (Cross) Kind() MarkerKind { return KindPoint }
func (Cross) isGeometry()      {}

// NewCross returns a point marker geometry with the default glyph radius
func NewCross(x, y float64) Cross {
	return Cross{Centre: Point2D{X: x, Y: y}, Radius: DefaultCrossRadius}
}

// NewLine returns a line marker geometry
func NewLine(x1, y1, x2, y2 float64) Line {
	return Line{Start: Point2D{X: x1, Y: y1}, End: Point2D{X: x2, Y: y2}}
}

// Marker is a line or point placed on one frame within a region.
// Markers are values; editing one produces a new Marker.
type Marker struct {
	RegionID int
	FamilyID int
	Frame    int
	Geometry Geometry

	// ParentHash links a cloned copy back to the marker it was cloned from
	ParentHash uint64
}

// Kind returns the kind of the marker geometry
func (m Marker) Kind() MarkerKind {
	if m.Geometry == nil {
		return MarkerKind(math.MaxUint8)
	}
	return m.Geometry.Kind()
}

// Hash returns a content hash over region, frame and geometry.
// The value is only meaningful within one process.
func (m Marker) Hash() uint64 {
	buf := make([]byte, 0, 64)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(m.RegionID)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(m.Frame)))
	switch g := m.Geometry.(type) {
	case Line:
		buf = append(buf, byte(KindLine))
		buf = appendFloats(buf, g.Start.X, g.Start.Y, g.End.X, g.End.Y)
	case Cross:
		buf = append(buf, byte(KindPoint))
		buf = appendFloats(buf, g.Centre.X, g.Centre.Y)
	}
	return xxhash.Sum64(buf)
}

// Clone returns a copy carrying this marker's hash as its parent
func (m Marker) Clone() Marker {
	c := m
	c.ParentHash = m.Hash()
	return c
}

func appendFloats(buf []byte, values ...float64) []byte {
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

// Family is the time-ordered set of markers tracking one feature across frames
type Family struct {
	RegionID int
	ID       int
	Kind     MarkerKind
	Markers  []Marker // ascending frame order
}

// Label renders the display name used in results tables, e.g. "Line 0".
// index is the position of the family among families of the same kind.
func (f Family) Label(index int) string {
	return fmt.Sprintf("%s %d", f.Kind.Title(), index)
}

// FirstFrame returns the frame of the earliest marker, or -1 for an empty family
func (f Family) FirstFrame() int {
	if len(f.Markers) == 0 {
		return -1
	}
	return f.Markers[0].Frame
}

// Frames lists the marker frames in order
func (f Family) Frames() []int {
	frames := make([]int, len(f.Markers))
	for i, m := range f.Markers {
		frames[i] = m.Frame
	}
	return frames
}
