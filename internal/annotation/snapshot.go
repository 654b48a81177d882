package annotation

import (
	"math"

	"github.com/cgtracker/cgt/internal/model/core"
)

// GeometryTolerance is the largest coordinate difference Equal treats as equal
const GeometryTolerance = 1e-6

// RegionSnapshot is a region with all its families, lines and points interleaved
// in first-insertion order
type RegionSnapshot struct {
	Region   core.Region
	Families []core.Family
}

// Snapshot is a deep copy of the Store, safe to hand to persistence or reporting
type Snapshot struct {
	Regions []RegionSnapshot
}

// Snapshot copies the current contents of the Store
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{Regions: make([]RegionSnapshot, 0, len(s.regions))}
	for _, rec := range s.regions {
		rs := RegionSnapshot{
			Region:   rec.region,
			Families: make([]core.Family, 0, len(rec.families)),
		}
		for _, fam := range rec.families {
			rs.Families = append(rs.Families, fam.snapshot(rec.region.ID))
		}
		snap.Regions = append(snap.Regions, rs)
	}
	return snap
}

// Markers returns every marker of the given kind in canonical order:
// regions in insertion order, families in first-insertion order, frames ascending
func (snap Snapshot) Markers(kind core.MarkerKind) []core.Marker {
	var out []core.Marker
	for _, rs := range snap.Regions {
		for _, fam := range rs.Families {
			if fam.Kind == kind {
				out = append(out, fam.Markers...)
			}
		}
	}
	return out
}

// Equal compares two stores by value: region ids and rectangles, family
// groupings per kind, frames and geometry within GeometryTolerance
func (s *Store) Equal(other *Store) bool {
	if other == nil {
		return false
	}
	return s.Snapshot().Equal(other.Snapshot())
}

// Equal compares two snapshots by value
func (snap Snapshot) Equal(other Snapshot) bool {
	if len(snap.Regions) != len(other.Regions) {
		return false
	}
	for i := range snap.Regions {
		a, b := snap.Regions[i], other.Regions[i]
		if a.Region != b.Region || len(a.Families) != len(b.Families) {
			return false
		}
		// persisted forms keep lines and points apart, so only the order
		// within a kind is significant
		for _, kind := range []core.MarkerKind{core.KindLine, core.KindPoint} {
			fa, fb := ofKind(a.Families, kind), ofKind(b.Families, kind)
			if len(fa) != len(fb) {
				return false
			}
			for j := range fa {
				if !familyEqual(fa[j], fb[j]) {
					return false
				}
			}
		}
	}
	return true
}

func ofKind(families []core.Family, kind core.MarkerKind) []core.Family {
	var out []core.Family
	for _, f := range families {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func familyEqual(a, b core.Family) bool {
	if a.RegionID != b.RegionID || a.ID != b.ID || a.Kind != b.Kind || len(a.Markers) != len(b.Markers) {
		return false
	}
	for i := range a.Markers {
		ma, mb := a.Markers[i], b.Markers[i]
		if ma.Frame != mb.Frame || ma.FamilyID != mb.FamilyID || ma.RegionID != mb.RegionID {
			return false
		}
		if !geometryEqual(ma.Geometry, mb.Geometry) {
			return false
		}
	}
	return true
}

func geometryEqual(a, b core.Geometry) bool {
	switch ga := a.(type) {
	case core.Line:
		gb, ok := b.(core.Line)
		return ok && pointNear(ga.Start, gb.Start) && pointNear(ga.End, gb.End)
	case core.Cross:
		gb, ok := b.(core.Cross)
		return ok && pointNear(ga.Centre, gb.Centre)
	default:
		return false
	}
}

func pointNear(a, b core.Point2D) bool {
	return math.Abs(a.X-b.X) <= GeometryTolerance && math.Abs(a.Y-b.Y) <= GeometryTolerance
}
