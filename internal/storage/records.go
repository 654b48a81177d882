// internal/storage/records.go
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cgtracker/cgt/internal/annotation"
	"github.com/cgtracker/cgt/internal/model/core"
)

// Column headers of the canonical record encoding
var (
	RegionHeader = []string{"id", "x", "y", "width", "height"}
	LineHeader   = []string{"region", "family", "frame", "kind", "start_x", "start_y", "end_x", "end_y"}
	PointHeader  = []string{"region", "family", "frame", "kind", "x", "y"}
)

// HashAlgorithm names the digest used for integrity hashes
const HashAlgorithm = "sha256"

// RegionRow is the persisted form of a region
type RegionRow struct {
	ID   int
	Rect core.Rect
}

// Fields encodes the row in canonical column order
func (r RegionRow) Fields() []string {
	return []string{
		strconv.Itoa(r.ID),
		strconv.Itoa(r.Rect.X),
		strconv.Itoa(r.Rect.Y),
		strconv.Itoa(r.Rect.Width),
		strconv.Itoa(r.Rect.Height),
	}
}

// ParseRegionRow decodes a region row
func ParseRegionRow(fields []string) (RegionRow, error) {
	if len(fields) != len(RegionHeader) {
		return RegionRow{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedRecord, len(RegionHeader), len(fields))
	}
	ints, err := parseInts(fields)
	if err != nil {
		return RegionRow{}, err
	}
	return RegionRow{
		ID:   ints[0],
		Rect: core.Rect{X: ints[1], Y: ints[2], Width: ints[3], Height: ints[4]},
	}, nil
}

// MarkerRow is the persisted form of a marker
type MarkerRow struct {
	RegionID int
	FamilyID int
	Frame    int
	Geometry core.Geometry
}

// Kind returns the kind of the row's geometry
func (m MarkerRow) Kind() core.MarkerKind {
	return m.Geometry.Kind()
}

// MarkerRowOf converts a marker to its row
func MarkerRowOf(m core.Marker) MarkerRow {
	return MarkerRow{RegionID: m.RegionID, FamilyID: m.FamilyID, Frame: m.Frame, Geometry: m.Geometry}
}

// Fields encodes the row in canonical column order. Floats use the shortest
// representation that parses back to the same float64.
func (m MarkerRow) Fields() []string {
	fields := []string{
		strconv.Itoa(m.RegionID),
		strconv.Itoa(m.FamilyID),
		strconv.Itoa(m.Frame),
	}
	switch g := m.Geometry.(type) {
	case core.Line:
		return append(fields, core.KindLine.String(),
			formatFloat(g.Start.X), formatFloat(g.Start.Y),
			formatFloat(g.End.X), formatFloat(g.End.Y))
	case core.Cross:
		return append(fields, core.KindPoint.String(),
			formatFloat(g.Centre.X), formatFloat(g.Centre.Y))
	default:
		return append(fields, "unknown")
	}
}

// ParseMarkerRow decodes a marker row that must be of the given kind
func ParseMarkerRow(fields []string, kind core.MarkerKind) (MarkerRow, error) {
	header := LineHeader
	if kind == core.KindPoint {
		header = PointHeader
	}
	if len(fields) != len(header) {
		return MarkerRow{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedRecord, len(header), len(fields))
	}
	ints, err := parseInts(fields[:3])
	if err != nil {
		return MarkerRow{}, err
	}
	got, err := core.ParseMarkerKind(fields[3])
	if err != nil {
		return MarkerRow{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if got != kind {
		return MarkerRow{}, fmt.Errorf("%w: %s row in %s records", ErrMalformedRecord, got, kind)
	}
	floats, err := parseFloats(fields[4:])
	if err != nil {
		return MarkerRow{}, err
	}

	row := MarkerRow{RegionID: ints[0], FamilyID: ints[1], Frame: ints[2]}
	switch kind {
	case core.KindLine:
		row.Geometry = core.NewLine(floats[0], floats[1], floats[2], floats[3])
	case core.KindPoint:
		row.Geometry = core.NewCross(floats[0], floats[1])
	default:
		return MarkerRow{}, fmt.Errorf("%w: unsupported kind %s", ErrMalformedRecord, kind)
	}
	return row, nil
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %q is not an integer", ErrMalformedRecord, i+1, f)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a finite number", ErrMalformedRecord, f)
		}
		out[i] = v
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Records is the full record set of a snapshot in canonical order
type Records struct {
	Regions []RegionRow
	Lines   []MarkerRow
	Points  []MarkerRow
}

// RecordsOf flattens a snapshot: regions in insertion order, then markers by
// region, family first-insertion order and ascending frame
func RecordsOf(snap annotation.Snapshot) Records {
	var rec Records
	for _, rs := range snap.Regions {
		rec.Regions = append(rec.Regions, RegionRow{ID: rs.Region.ID, Rect: rs.Region.Rect})
	}
	for _, m := range snap.Markers(core.KindLine) {
		rec.Lines = append(rec.Lines, MarkerRowOf(m))
	}
	for _, m := range snap.Markers(core.KindPoint) {
		rec.Points = append(rec.Points, MarkerRowOf(m))
	}
	return rec
}

// Hash digests the canonical encoding of all rows: regions, then lines,
// then points, one comma-joined line each
func (r Records) Hash() string {
	h := sha256.New()
	write := func(fields []string) {
		h.Write([]byte(strings.Join(fields, ",")))
		h.Write([]byte{'\n'})
	}
	for _, row := range r.Regions {
		write(row.Fields())
	}
	for _, row := range r.Lines {
		write(row.Fields())
	}
	for _, row := range r.Points {
		write(row.Fields())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Builder rebuilds a store from rows as a backend reads them, collecting
// diagnostics instead of failing on individual rows
type Builder struct {
	store   *annotation.Store
	records Records
	result  *LoadResult
}

// NewBuilder starts an empty rebuild
func NewBuilder(opts ...annotation.Option) *Builder {
	b := &Builder{store: annotation.New(opts...)}
	b.result = &LoadResult{Store: b.store}
	return b
}

// Region applies a parsed region row
func (b *Builder) Region(source string, line int, row RegionRow) {
	b.records.Regions = append(b.records.Regions, row)
	if err := b.store.RestoreRegion(core.Region{ID: row.ID, Rect: row.Rect}); err != nil {
		b.Malformed(source, line, err)
	}
}

// Marker applies a parsed marker row. Regions must be applied first.
func (b *Builder) Marker(source string, line int, row MarkerRow) {
	switch row.Kind() {
	case core.KindLine:
		b.records.Lines = append(b.records.Lines, row)
	case core.KindPoint:
		b.records.Points = append(b.records.Points, row)
	}
	if _, err := b.store.AddMarker(row.RegionID, row.FamilyID, row.Frame, row.Geometry); err != nil {
		b.Malformed(source, line, err)
	}
}

// Malformed records a row that could not be parsed or applied
func (b *Builder) Malformed(source string, line int, err error) {
	if !errors.Is(err, ErrMalformedRecord) {
		err = fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	b.result.Add(StatusMalformedRecord, Diagnostic{Source: source, Line: line, Err: err})
}

// Finish computes the hash of the parsed rows and checks it against storedHash
func (b *Builder) Finish(source, storedHash string) *LoadResult {
	b.result.Hash = b.records.Hash()
	b.result.StoredHash = storedHash
	b.result.Verify(source)
	return b.result
}

// Result returns the result built so far
func (b *Builder) Result() *LoadResult {
	return b.result
}
