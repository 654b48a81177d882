// Package annotation holds the regions of a project and, per region, the
// families of line and point markers placed on video frames.
//
// Families are kept as an arena of marker records indexed by family id.
// The Store is not safe for concurrent mutation; callers serialise writes.
package annotation

import (
	"fmt"
	"math"
	"sort"

	"github.com/cgtracker/cgt/internal/geo"
	"github.com/cgtracker/cgt/internal/model/core"
)

// NewFamily asks AddMarker to start a new family
const NewFamily = -1

// Option configures a Store
type Option func(*Store)

// WithFrameBounds makes AddRegion reject rectangles outside a width x height frame
func WithFrameBounds(width, height int) Option {
	return func(s *Store) {
		s.frameWidth = width
		s.frameHeight = height
	}
}

// family is the mutable record behind a core.Family
type family struct {
	id      int
	kind    core.MarkerKind
	markers []core.Marker // ascending frame
}

// regionRecord groups a region with its families
type regionRecord struct {
	region       core.Region
	families     []*family       // first-insertion order
	byID         map[int]*family // keyed by family id
	nextFamilyID int
}

// Store owns all regions and marker families of a project
type Store struct {
	regions      []*regionRecord
	byID         map[int]*regionRecord
	nextRegionID int
	version      uint64

	frameWidth  int
	frameHeight int
}

// New creates an empty Store
func New(opts ...Option) *Store {
	s := &Store{
		byID: make(map[int]*regionRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Version increases on every successful mutation.
// Consumers caching derived data compare it to detect staleness.
func (s *Store) Version() uint64 {
	return s.version
}

// AddRegion appends a new region and returns its id
func (s *Store) AddRegion(rect core.Rect) (int, error) {
	if err := s.checkRect(rect); err != nil {
		return 0, err
	}
	id := s.nextRegionID
	s.insertRegion(core.Region{ID: id, Rect: rect})
	return id, nil
}

// RestoreRegion inserts a region keeping its id, as needed when reloading a project
func (s *Store) RestoreRegion(region core.Region) error {
	if err := s.checkRect(region.Rect); err != nil {
		return err
	}
	if region.ID < 0 {
		return fmt.Errorf("%w: negative region id %d", ErrInvalidGeometry, region.ID)
	}
	if _, ok := s.byID[region.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateRegion, region.ID)
	}
	s.insertRegion(region)
	return nil
}

func (s *Store) checkRect(rect core.Rect) error {
	if !rect.Valid() {
		return fmt.Errorf("%w: region extents %dx%d", ErrInvalidGeometry, rect.Width, rect.Height)
	}
	if s.frameWidth > 0 && s.frameHeight > 0 && !geo.RectWithin(rect, s.frameWidth, s.frameHeight) {
		return fmt.Errorf("%w: region %+v outside %dx%d frame", ErrInvalidGeometry, rect, s.frameWidth, s.frameHeight)
	}
	return nil
}

func (s *Store) insertRegion(region core.Region) {
	rec := &regionRecord{
		region: region,
		byID:   make(map[int]*family),
	}
	s.regions = append(s.regions, rec)
	s.byID[region.ID] = rec
	if region.ID >= s.nextRegionID {
		s.nextRegionID = region.ID + 1
	}
	s.version++
}

// RemoveRegion deletes a region together with all its families.
// It reports whether anything was removed.
func (s *Store) RemoveRegion(regionID int) bool {
	rec, ok := s.byID[regionID]
	if !ok {
		return false
	}
	delete(s.byID, regionID)
	for i, r := range s.regions {
		if r == rec {
			s.regions = append(s.regions[:i], s.regions[i+1:]...)
			break
		}
	}
	s.version++
	return true
}

// Regions returns all regions in insertion order
func (s *Store) Regions() []core.Region {
	out := make([]core.Region, len(s.regions))
	for i, rec := range s.regions {
		out[i] = rec.region
	}
	return out
}

// Region looks up a region by id
func (s *Store) Region(regionID int) (core.Region, bool) {
	rec, ok := s.byID[regionID]
	if !ok {
		return core.Region{}, false
	}
	return rec.region, true
}

// AddMarker places a marker on a frame of a region.
// Pass NewFamily to start a new family; an explicit id that does not exist yet
// creates a family with that id. It returns the family id the marker joined.
func (s *Store) AddMarker(regionID, familyID, frame int, g core.Geometry) (int, error) {
	rec, ok := s.byID[regionID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownRegion, regionID)
	}
	if err := checkGeometry(g); err != nil {
		return 0, err
	}
	if frame < 0 {
		return 0, fmt.Errorf("%w: negative frame %d", ErrInvalidGeometry, frame)
	}

	if familyID == NewFamily {
		familyID = rec.nextFamilyID
	} else if familyID < 0 {
		return 0, fmt.Errorf("%w: family id %d", ErrInvalidGeometry, familyID)
	}

	fam, exists := rec.byID[familyID]
	if exists {
		if fam.kind != g.Kind() {
			return 0, fmt.Errorf("%w: family %d is %s, marker is %s", ErrKindMismatch, familyID, fam.kind, g.Kind())
		}
		if _, found := fam.find(frame); found {
			return 0, fmt.Errorf("%w: family %d already has frame %d", ErrDuplicateFrame, familyID, frame)
		}
	} else {
		fam = &family{id: familyID, kind: g.Kind()}
		rec.families = append(rec.families, fam)
		rec.byID[familyID] = fam
		if familyID >= rec.nextFamilyID {
			rec.nextFamilyID = familyID + 1
		}
	}

	fam.insert(core.Marker{
		RegionID: regionID,
		FamilyID: familyID,
		Frame:    frame,
		Geometry: g,
	})
	s.version++
	return familyID, nil
}

func checkGeometry(g core.Geometry) error {
	switch v := g.(type) {
	case core.Line:
		if !v.Start.IsFinite() || !v.End.IsFinite() {
			return fmt.Errorf("%w: non-finite line endpoint", ErrInvalidGeometry)
		}
	case core.Cross:
		if !v.Centre.IsFinite() || math.IsNaN(v.Radius) {
			return fmt.Errorf("%w: non-finite point", ErrInvalidGeometry)
		}
	case nil:
		return fmt.Errorf("%w: nil geometry", ErrInvalidGeometry)
	default:
		return fmt.Errorf("%w: unsupported geometry %T", ErrInvalidGeometry, g)
	}
	return nil
}

// RemoveMarker deletes the marker of a family at a frame. Removing the last
// marker deletes the family. Missing regions, families or frames are ignored,
// so repeated deletes are safe. It reports whether a marker was removed.
func (s *Store) RemoveMarker(regionID, familyID, frame int) bool {
	rec, ok := s.byID[regionID]
	if !ok {
		return false
	}
	fam, ok := rec.byID[familyID]
	if !ok {
		return false
	}
	i, found := fam.find(frame)
	if !found {
		return false
	}
	fam.markers = append(fam.markers[:i], fam.markers[i+1:]...)
	if len(fam.markers) == 0 {
		delete(rec.byID, familyID)
		for j, f := range rec.families {
			if f == fam {
				rec.families = append(rec.families[:j], rec.families[j+1:]...)
				break
			}
		}
	}
	s.version++
	return true
}

// Families returns the families of one kind in a region, in first-insertion order
func (s *Store) Families(regionID int, kind core.MarkerKind) ([]core.Family, error) {
	rec, ok := s.byID[regionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRegion, regionID)
	}
	out := make([]core.Family, 0, len(rec.families))
	for _, fam := range rec.families {
		if fam.kind == kind {
			out = append(out, fam.snapshot(regionID))
		}
	}
	return out, nil
}

// Family looks up one family by id
func (s *Store) Family(regionID, familyID int) (core.Family, bool) {
	rec, ok := s.byID[regionID]
	if !ok {
		return core.Family{}, false
	}
	fam, ok := rec.byID[familyID]
	if !ok {
		return core.Family{}, false
	}
	return fam.snapshot(regionID), true
}

// FindByHash returns the marker whose content hash matches, for resolving
// the ParentHash of a cloned copy
func (s *Store) FindByHash(hash uint64) (core.Marker, bool) {
	for _, rec := range s.regions {
		for _, fam := range rec.families {
			for _, m := range fam.markers {
				if m.Hash() == hash {
					return m, true
				}
			}
		}
	}
	return core.Marker{}, false
}

// MarkerCount returns the number of markers of a kind across all regions
func (s *Store) MarkerCount(kind core.MarkerKind) int {
	n := 0
	for _, rec := range s.regions {
		for _, fam := range rec.families {
			if fam.kind == kind {
				n += len(fam.markers)
			}
		}
	}
	return n
}

// find locates the marker at frame using binary search
func (f *family) find(frame int) (int, bool) {
	i := sort.Search(len(f.markers), func(i int) bool {
		return f.markers[i].Frame >= frame
	})
	return i, i < len(f.markers) && f.markers[i].Frame == frame
}

// insert keeps markers in ascending frame order
func (f *family) insert(m core.Marker) {
	i, _ := f.find(m.Frame)
	f.markers = append(f.markers, core.Marker{})
	copy(f.markers[i+1:], f.markers[i:])
	f.markers[i] = m
}

func (f *family) snapshot(regionID int) core.Family {
	markers := make([]core.Marker, len(f.markers))
	copy(markers, f.markers)
	return core.Family{
		RegionID: regionID,
		ID:       f.id,
		Kind:     f.kind,
		Markers:  markers,
	}
}
