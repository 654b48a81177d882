package convert

import (
	"testing"
	"time"

	"github.com/cgtracker/cgt/internal/model"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/cgtracker/cgt/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestRegionRoundTrip(t *testing.T) {
	row := storage.RegionRow{ID: 4, Rect: core.Rect{X: 1, Y: 2, Width: 3, Height: 4}}

	m := RegionRowToRegion(7, 2, row)
	assert.Equal(t, uint(7), m.ProjectID)
	assert.Equal(t, 2, m.Seq)
	assert.Equal(t, 4, m.RegionID)

	assert.Equal(t, row, RegionToRegionRow(m))
}

func TestMarkerRowToMarker(t *testing.T) {
	tests := []struct {
		name     string
		row      storage.MarkerRow
		expected model.Marker
	}{
		{
			name: "line",
			row:  storage.MarkerRow{RegionID: 1, FamilyID: 2, Frame: 3, Geometry: core.NewLine(1, 2, 3, 4)},
			expected: model.Marker{
				ProjectID: 9, Seq: 5, RegionID: 1, FamilyID: 2, Frame: 3,
				Kind: "line", X1: 1, Y1: 2, X2: 3, Y2: 4,
			},
		},
		{
			name: "point",
			row:  storage.MarkerRow{RegionID: 0, FamilyID: 0, Frame: 8, Geometry: core.NewCross(5.5, 6.25)},
			expected: model.Marker{
				ProjectID: 9, Seq: 5, Frame: 8, Kind: "point", X1: 5.5, Y1: 6.25,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := MarkerRowToMarker(9, 5, tt.row)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)

			back, err := MarkerToMarkerRow(m)
			require.NoError(t, err)
			assert.Equal(t, tt.row, back)
		})
	}
}

func TestMarkerRowToMarker_NilGeometry(t *testing.T) {
	_, err := MarkerRowToMarker(1, 0, storage.MarkerRow{})
	assert.Error(t, err)
}

func TestMarkerToMarkerRow_UnknownKind(t *testing.T) {
	_, err := MarkerToMarkerRow(model.Marker{Kind: "ellipse"})
	assert.ErrorIs(t, err, storage.ErrMalformedRecord)
}

func TestProjectMetaRoundTrip(t *testing.T) {
	meta := &core.ProjectMeta{
		SessionID:         "abc",
		Name:              "run",
		StartTime:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FrameRate:         30,
		FrameRateOverride: 29.97,
		Resolution:        0.25,
		ResolutionUnits:   "microns",
	}

	p, err := MetaToProject("run", meta)
	require.NoError(t, err)
	assert.Equal(t, "run", p.Name)
	assert.Equal(t, "abc", p.SessionID)
	assert.True(t, meta.StartTime.Equal(p.StartTime))

	back, err := ProjectToMeta(p)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.Equal(t, 29.97, back.Scale().FrameRate)
	assert.Equal(t, meta.SessionID, back.SessionID)
}

func TestProjectToMeta_Empty(t *testing.T) {
	p, err := MetaToProject("empty", nil)
	require.NoError(t, err)

	meta, err := ProjectToMeta(p)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestProjectToMeta_Invalid(t *testing.T) {
	_, err := ProjectToMeta(model.Project{Metadata: datatypes.JSON("{not json")})
	assert.Error(t, err)
}
