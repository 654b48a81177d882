// Package displacement turns marker families into displacement and velocity
// series in physical units.
package displacement

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cgtracker/cgt/internal/geo"
	"github.com/cgtracker/cgt/internal/model/core"
)

// ErrInvariantViolation means a family reached the engine in a state the
// annotation store should have prevented. It indicates a bug, not bad input.
var ErrInvariantViolation = errors.New("family invariant violation")

// ForFamily computes one sample per adjacent marker pair of a family.
// Lines are measured midpoint to midpoint, points centre to centre, and the
// pixel distance is multiplied by resolution. A single-marker family yields
// no samples.
func ForFamily(f core.Family, resolution float64) ([]core.Sample, error) {
	if len(f.Markers) == 0 {
		return nil, fmt.Errorf("%w: family %d has no markers", ErrInvariantViolation, f.ID)
	}

	samples := make([]core.Sample, 0, len(f.Markers)-1)
	prev, err := anchor(f, f.Markers[0])
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(f.Markers); i++ {
		start, end := f.Markers[i-1], f.Markers[i]
		if end.Frame <= start.Frame {
			return nil, fmt.Errorf("%w: family %d frames %d then %d", ErrInvariantViolation, f.ID, start.Frame, end.Frame)
		}
		next, err := anchor(f, end)
		if err != nil {
			return nil, err
		}
		samples = append(samples, core.Sample{
			Start:  start.Frame,
			End:    end.Frame,
			Length: geo.Distance(prev, next) * resolution,
		})
		prev = next
	}
	return samples, nil
}

func anchor(f core.Family, m core.Marker) (core.Point2D, error) {
	if m.Geometry == nil || m.Geometry.Kind() != f.Kind {
		return core.Point2D{}, fmt.Errorf("%w: family %d mixes kinds at frame %d", ErrInvariantViolation, f.ID, m.Frame)
	}
	if m.RegionID != f.RegionID {
		return core.Point2D{}, fmt.Errorf("%w: family %d marker at frame %d belongs to region %d", ErrInvariantViolation, f.ID, m.Frame, m.RegionID)
	}
	p, err := geo.Anchor(m.Geometry)
	if err != nil {
		return core.Point2D{}, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return p, nil
}

// CumulativePoint is one point of a growth-over-time curve
type CumulativePoint struct {
	Frame        int
	Displacement float64
}

// Series is the displacement history of one family
type Series struct {
	FamilyID   int
	Kind       core.MarkerKind
	Label      string
	FirstFrame int
	Samples    []core.Sample
}

// Total is the sum of all sample lengths
func (s Series) Total() float64 {
	var total float64
	for _, sample := range s.Samples {
		total += sample.Length
	}
	return total
}

// Cumulative returns the running displacement, starting at zero on the
// family's first frame and adding each sample at its end frame
func (s Series) Cumulative() []CumulativePoint {
	points := make([]CumulativePoint, 0, len(s.Samples)+1)
	points = append(points, CumulativePoint{Frame: s.FirstFrame})
	var running float64
	for _, sample := range s.Samples {
		running += sample.Length
		points = append(points, CumulativePoint{Frame: sample.End, Displacement: running})
	}
	return points
}

// MeanVelocity is total length over total elapsed time; 0 without samples
func (s Series) MeanVelocity(frameRate float64) float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	span := core.Sample{
		Start:  s.Samples[0].Start,
		End:    s.Samples[len(s.Samples)-1].End,
		Length: s.Total(),
	}
	return span.Velocity(frameRate)
}

// RegionResult holds the series of every family in a region, lines and
// points separately, in store family order
type RegionResult struct {
	RegionID int
	Scale    core.Scale
	Lines    []Series
	Points   []Series
}

// Clone returns a copy that shares no slices with r
func (r RegionResult) Clone() RegionResult {
	r.Lines = cloneSeries(r.Lines)
	r.Points = cloneSeries(r.Points)
	return r
}

func cloneSeries(in []Series) []Series {
	if in == nil {
		return nil
	}
	out := make([]Series, len(in))
	for i, s := range in {
		s.Samples = slices.Clone(s.Samples)
		out[i] = s
	}
	return out
}

// All returns line series followed by point series
func (r RegionResult) All() []Series {
	out := make([]Series, 0, len(r.Lines)+len(r.Points))
	out = append(out, r.Lines...)
	return append(out, r.Points...)
}
