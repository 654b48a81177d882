// Package gormstore implements the storage.Backend interface on a SQL
// database through GORM. Each Save replaces the project's regions and
// markers inside one transaction and appends a snapshot row carrying the
// integrity hash; Load rebuilds the store and verifies it against the
// latest snapshot.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cgtracker/cgt/internal/annotation"
	"github.com/cgtracker/cgt/internal/database"
	"github.com/cgtracker/cgt/internal/model"
	"github.com/cgtracker/cgt/internal/model/convert"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/cgtracker/cgt/internal/storage"
	"gorm.io/gorm"
)

// Sources named in load diagnostics
const (
	sourceProjects  = "projects"
	sourceRegions   = "regions"
	sourceMarkers   = "markers"
	sourceSnapshots = "snapshots"
)

// ErrProjectNotFound is returned by Load when no project has the configured name
var ErrProjectNotFound = errors.New("project not found")

// Dependencies holds everything the GORM backend needs
type Dependencies struct {
	DB      *gorm.DB
	Project string // project name, unique per database
	Backend string // label for metrics, e.g. "sqlite" or "postgres"
	Logger  *slog.Logger
}

// Backend persists projects in a SQL database
type Backend struct {
	deps Dependencies
	log  *slog.Logger
}

// New creates a new GORM backend
func New(deps Dependencies) *Backend {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Backend == "" {
		deps.Backend = "gorm"
	}
	return &Backend{deps: deps, log: log.With("backend", deps.Backend, "project", deps.Project)}
}

// Init migrates the schema
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm storage: no database")
	}
	if b.deps.Project == "" {
		return fmt.Errorf("gorm storage: no project name configured")
	}
	return database.Migrate(b.deps.DB)
}

// Close is a no-op; the connection belongs to the database manager
func (b *Backend) Close() error {
	return nil
}

// Save replaces the stored state of the project with snap
func (b *Backend) Save(ctx context.Context, snap annotation.Snapshot, meta *core.ProjectMeta) (string, error) {
	hash, err := b.save(ctx, snap, meta)
	storage.RecordSave(ctx, b.deps.Backend, err)
	return hash, err
}

func (b *Backend) save(ctx context.Context, snap annotation.Snapshot, meta *core.ProjectMeta) (string, error) {
	rec := storage.RecordsOf(snap)
	hash := rec.Hash()

	incoming, err := convert.MetaToProject(b.deps.Project, meta)
	if err != nil {
		return "", err
	}

	err = b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project model.Project
		err := tx.Where("name = ?", b.deps.Project).First(&project).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			project = incoming
			if err := tx.Create(&project).Error; err != nil {
				return fmt.Errorf("failed to create project: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up project: %w", err)
		default:
			if err := tx.Model(&project).Updates(map[string]any{
				"session_id": incoming.SessionID,
				"start_time": incoming.StartTime,
				"metadata":   incoming.Metadata,
			}).Error; err != nil {
				return fmt.Errorf("failed to update project: %w", err)
			}
		}

		if err := tx.Where("project_id = ?", project.ID).Delete(&model.Marker{}).Error; err != nil {
			return fmt.Errorf("failed to clear markers: %w", err)
		}
		if err := tx.Where("project_id = ?", project.ID).Delete(&model.Region{}).Error; err != nil {
			return fmt.Errorf("failed to clear regions: %w", err)
		}

		regions := make([]model.Region, len(rec.Regions))
		for i, r := range rec.Regions {
			regions[i] = convert.RegionRowToRegion(project.ID, i, r)
		}
		if len(regions) > 0 {
			if err := tx.CreateInBatches(regions, 1000).Error; err != nil {
				return fmt.Errorf("failed to write regions: %w", err)
			}
		}

		// lines then points, so Seq is the canonical order
		markers := make([]model.Marker, 0, len(rec.Lines)+len(rec.Points))
		for _, rows := range [][]storage.MarkerRow{rec.Lines, rec.Points} {
			for _, r := range rows {
				m, err := convert.MarkerRowToMarker(project.ID, len(markers), r)
				if err != nil {
					return err
				}
				markers = append(markers, m)
			}
		}
		if len(markers) > 0 {
			if err := tx.CreateInBatches(markers, 1000).Error; err != nil {
				return fmt.Errorf("failed to write markers: %w", err)
			}
		}

		return tx.Create(&model.Snapshot{
			ProjectID: project.ID,
			Algorithm: storage.HashAlgorithm,
			Hash:      hash,
			Regions:   len(rec.Regions),
			Lines:     len(rec.Lines),
			Points:    len(rec.Points),
		}).Error
	})
	if err != nil {
		b.log.Error("Failed to save project", "error", err)
		return "", err
	}

	b.log.Debug("Saved project", "hash", hash, "regions", len(rec.Regions), "lines", len(rec.Lines), "points", len(rec.Points))
	return hash, nil
}

// Load rebuilds the project's store and verifies it against the latest snapshot
func (b *Backend) Load(ctx context.Context) (*storage.LoadResult, error) {
	db := b.deps.DB.WithContext(ctx)

	var project model.Project
	err := db.Where("name = ?", b.deps.Project).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, b.deps.Project)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up project: %w", err)
	}

	meta, metaErr := convert.ProjectToMeta(project)
	var opts []annotation.Option
	if meta != nil && meta.FrameWidth > 0 && meta.FrameHeight > 0 {
		opts = append(opts, annotation.WithFrameBounds(meta.FrameWidth, meta.FrameHeight))
	}
	builder := storage.NewBuilder(opts...)
	builder.Result().Meta = meta
	if metaErr != nil {
		builder.Malformed(sourceProjects, int(project.ID), metaErr)
	}

	var regions []model.Region
	if err := db.Where("project_id = ?", project.ID).Order("seq").Find(&regions).Error; err != nil {
		return nil, fmt.Errorf("failed to read regions: %w", err)
	}
	for _, r := range regions {
		builder.Region(sourceRegions, r.Seq+1, convert.RegionToRegionRow(r))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var markers []model.Marker
	if err := db.Where("project_id = ?", project.ID).Order("seq").Find(&markers).Error; err != nil {
		return nil, fmt.Errorf("failed to read markers: %w", err)
	}
	for _, m := range markers {
		row, err := convert.MarkerToMarkerRow(m)
		if err != nil {
			builder.Malformed(sourceMarkers, m.Seq+1, err)
			continue
		}
		builder.Marker(sourceMarkers, m.Seq+1, row)
	}

	var stored string
	var snapshot model.Snapshot
	err = db.Where("project_id = ?", project.ID).Order("id desc").First(&snapshot).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	case snapshot.Algorithm != storage.HashAlgorithm:
		builder.Malformed(sourceSnapshots, int(snapshot.ID), fmt.Errorf("unsupported hash algorithm %q", snapshot.Algorithm))
	default:
		stored = snapshot.Hash
	}

	res := builder.Finish(sourceSnapshots, stored)
	storage.RecordLoad(ctx, b.deps.Backend, res)
	if res.Status != storage.StatusOK {
		b.log.Warn("Project loaded with problems", "status", res.Status.String(), "diagnostics", len(res.Diagnostics))
	}
	return res, nil
}

var _ storage.Backend = (*Backend)(nil)
