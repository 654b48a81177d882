// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/cgtracker/cgt/internal/model"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/cgtracker/cgt/internal/storage"
	"gorm.io/datatypes"
)

// RegionRowToRegion converts a region row to a GORM model.Region.
// seq is the row's position in canonical order.
func RegionRowToRegion(projectID uint, seq int, r storage.RegionRow) model.Region {
	return model.Region{
		ProjectID: projectID,
		Seq:       seq,
		RegionID:  r.ID,
		X:         r.Rect.X,
		Y:         r.Rect.Y,
		Width:     r.Rect.Width,
		Height:    r.Rect.Height,
	}
}

// RegionToRegionRow converts a GORM model.Region back to its row
func RegionToRegionRow(r model.Region) storage.RegionRow {
	return storage.RegionRow{
		ID:   r.RegionID,
		Rect: core.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height},
	}
}

// MarkerRowToMarker converts a marker row to a GORM model.Marker
func MarkerRowToMarker(projectID uint, seq int, m storage.MarkerRow) (model.Marker, error) {
	out := model.Marker{
		ProjectID: projectID,
		Seq:       seq,
		RegionID:  m.RegionID,
		FamilyID:  m.FamilyID,
		Frame:     m.Frame,
	}
	switch g := m.Geometry.(type) {
	case core.Line:
		out.Kind = core.KindLine.String()
		out.X1, out.Y1 = g.Start.X, g.Start.Y
		out.X2, out.Y2 = g.End.X, g.End.Y
	case core.Cross:
		out.Kind = core.KindPoint.String()
		out.X1, out.Y1 = g.Centre.X, g.Centre.Y
	default:
		return model.Marker{}, fmt.Errorf("unsupported geometry %T", m.Geometry)
	}
	return out, nil
}

// MarkerToMarkerRow converts a GORM model.Marker back to its row
func MarkerToMarkerRow(m model.Marker) (storage.MarkerRow, error) {
	kind, err := core.ParseMarkerKind(m.Kind)
	if err != nil {
		return storage.MarkerRow{}, fmt.Errorf("%w: %v", storage.ErrMalformedRecord, err)
	}
	row := storage.MarkerRow{
		RegionID: m.RegionID,
		FamilyID: m.FamilyID,
		Frame:    m.Frame,
	}
	switch kind {
	case core.KindLine:
		row.Geometry = core.NewLine(m.X1, m.Y1, m.X2, m.Y2)
	case core.KindPoint:
		row.Geometry = core.NewCross(m.X1, m.Y1)
	default:
		return storage.MarkerRow{}, fmt.Errorf("%w: unsupported kind %s", storage.ErrMalformedRecord, kind)
	}
	return row, nil
}

// MetaToProject converts project metadata to a GORM model.Project.
// The full metadata is kept as JSON next to the indexed columns.
func MetaToProject(name string, meta *core.ProjectMeta) (model.Project, error) {
	p := model.Project{Name: name, Metadata: datatypes.JSON("{}")}
	if meta == nil {
		return p, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return model.Project{}, fmt.Errorf("failed to encode project metadata: %w", err)
	}
	p.SessionID = meta.SessionID
	p.StartTime = meta.StartTime
	p.Metadata = datatypes.JSON(data)
	return p, nil
}

// ProjectToMeta decodes the metadata of a GORM model.Project.
// It returns nil when no metadata was stored.
func ProjectToMeta(p model.Project) (*core.ProjectMeta, error) {
	if len(p.Metadata) == 0 || string(p.Metadata) == "{}" || string(p.Metadata) == "null" {
		return nil, nil
	}
	var meta core.ProjectMeta
	if err := json.Unmarshal(p.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("invalid project metadata: %w", err)
	}
	return &meta, nil
}
