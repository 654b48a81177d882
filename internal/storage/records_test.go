package storage

import (
	"testing"

	"github.com/cgtracker/cgt/internal/annotation"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStore(t *testing.T) *annotation.Store {
	t.Helper()
	s := annotation.New()
	r, err := s.AddRegion(core.Rect{X: 1, Y: 2, Width: 30, Height: 40})
	require.NoError(t, err)

	l, err := s.AddMarker(r, annotation.NewFamily, 0, core.NewLine(0, 10, 20, 10))
	require.NoError(t, err)
	_, err = s.AddMarker(r, l, 8, core.NewLine(0, 18.25, 20, 18.25))
	require.NoError(t, err)
	_, err = s.AddMarker(r, annotation.NewFamily, 3, core.NewCross(0.1, 7))
	require.NoError(t, err)
	return s
}

func TestMarkerRow_FieldsRoundTrip(t *testing.T) {
	line := MarkerRow{RegionID: 2, FamilyID: 1, Frame: 9, Geometry: core.NewLine(0.1, 2, 3.5, 1e-7)}
	fields := line.Fields()
	assert.Equal(t, []string{"2", "1", "9", "line", "0.1", "2", "3.5", "1e-07"}, fields)

	parsed, err := ParseMarkerRow(fields, core.KindLine)
	require.NoError(t, err)
	assert.Equal(t, line, parsed)

	point := MarkerRow{RegionID: 0, FamilyID: 4, Frame: 1, Geometry: core.NewCross(12, 13)}
	parsed, err = ParseMarkerRow(point.Fields(), core.KindPoint)
	require.NoError(t, err)
	assert.Equal(t, point, parsed)
}

func TestParseMarkerRow_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		kind   core.MarkerKind
	}{
		{"short", []string{"0", "0", "0", "line"}, core.KindLine},
		{"bad frame", []string{"0", "0", "x", "point", "1", "2"}, core.KindPoint},
		{"bad float", []string{"0", "0", "1", "point", "1", "abc"}, core.KindPoint},
		{"nan", []string{"0", "0", "1", "point", "NaN", "2"}, core.KindPoint},
		{"unknown kind", []string{"0", "0", "1", "circle", "1", "2"}, core.KindPoint},
		{"wrong kind", []string{"0", "0", "1", "point", "1", "2", "3", "4"}, core.KindLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMarkerRow(tt.fields, tt.kind)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestParseRegionRow(t *testing.T) {
	row, err := ParseRegionRow([]string{"3", "1", "2", " 30", "40"})
	require.NoError(t, err)
	assert.Equal(t, RegionRow{ID: 3, Rect: core.Rect{X: 1, Y: 2, Width: 30, Height: 40}}, row)

	_, err = ParseRegionRow([]string{"3", "1", "2", "30"})
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestRecords_HashStableAndSensitive(t *testing.T) {
	s := sampleStore(t)
	rec := RecordsOf(s.Snapshot())
	require.Len(t, rec.Regions, 1)
	require.Len(t, rec.Lines, 2)
	require.Len(t, rec.Points, 1)

	h := rec.Hash()
	assert.Len(t, h, 64)
	assert.Equal(t, h, RecordsOf(s.Snapshot()).Hash())

	rec.Points[0].Geometry = core.NewCross(0.1, 7.000001)
	assert.NotEqual(t, h, rec.Hash())
}

func TestBuilder_RebuildsStore(t *testing.T) {
	s := sampleStore(t)
	rec := RecordsOf(s.Snapshot())

	b := NewBuilder()
	for i, r := range rec.Regions {
		b.Region("regions", i+2, r)
	}
	for i, r := range rec.Lines {
		b.Marker("lines", i+2, r)
	}
	for i, r := range rec.Points {
		b.Marker("points", i+2, r)
	}
	res := b.Finish("hash", rec.Hash())

	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, rec.Hash(), res.Hash)
	assert.True(t, s.Equal(res.Store))
}

func TestBuilder_RejectedRowIsDiagnostic(t *testing.T) {
	s := sampleStore(t)
	rec := RecordsOf(s.Snapshot())

	b := NewBuilder()
	b.Region("regions", 2, rec.Regions[0])
	b.Marker("lines", 2, rec.Lines[0])
	// duplicate frame in the same family
	b.Marker("lines", 3, rec.Lines[0])
	// unknown region
	b.Marker("points", 2, MarkerRow{RegionID: 42, FamilyID: 0, Frame: 1, Geometry: core.NewCross(1, 1)})
	res := b.Finish("hash", "")

	assert.Equal(t, StatusMalformedRecord, res.Status)
	assert.Equal(t, 2, res.MalformedCount())
	assert.Equal(t, "lines", res.Diagnostics[0].Source)
	assert.Equal(t, 3, res.Diagnostics[0].Line)
	assert.ErrorIs(t, res.Diagnostics[0], annotation.ErrDuplicateFrame)
	assert.ErrorIs(t, res.Diagnostics[1], annotation.ErrUnknownRegion)
	assert.Equal(t, 1, res.Store.MarkerCount(core.KindLine))
}

func TestLoadResult_Verify(t *testing.T) {
	res := &LoadResult{Hash: "abc", StoredHash: "abc"}
	res.Verify("hash")
	assert.Equal(t, StatusOK, res.Status)

	res = &LoadResult{Hash: "abc", StoredHash: "abd"}
	res.Verify("hash")
	assert.Equal(t, StatusHashMismatch, res.Status)
	assert.ErrorIs(t, res.Diagnostics[0], ErrHashMismatch)

	res = &LoadResult{Hash: "abc"}
	res.Verify("hash")
	assert.Equal(t, StatusHashMismatch, res.Status)
}

func TestLoadResult_StatusPrecedence(t *testing.T) {
	res := &LoadResult{}
	res.Add(StatusMalformedRecord, Diagnostic{Source: "points", Line: 4, Err: ErrMalformedRecord})
	res.Add(StatusHashMismatch, Diagnostic{Source: "hash", Err: ErrHashMismatch})

	assert.Equal(t, StatusMalformedRecord, res.Status)
	assert.Equal(t, "MalformedRecord", res.Status.String())
	assert.Equal(t, "points:4: malformed record", res.Diagnostics[0].Error())
}
