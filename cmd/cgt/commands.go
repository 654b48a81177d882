package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cgtracker/cgt/internal/config"
	"github.com/cgtracker/cgt/internal/displacement"
	"github.com/cgtracker/cgt/internal/influx"
	"github.com/cgtracker/cgt/internal/logging"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/cgtracker/cgt/internal/project"
	"github.com/cgtracker/cgt/internal/storage"
	"github.com/spf13/pflag"
)

func newFlagSet(a *app, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

// openBackend creates the configured backend and registers it for cleanup
func (a *app) openBackend(cfg config.StorageConfig) (storage.Backend, error) {
	backend, closer, err := createStorageBackend(cfg, a.zlog, a.log)
	if err != nil {
		return nil, err
	}
	a.track(closer)
	a.track(backend)
	return backend, nil
}

// openProject loads the project from the configured storage. The returned
// context carries the project's name and session for logging.
func (a *app) openProject(ctx context.Context) (context.Context, *project.Project, *storage.LoadResult, error) {
	cfg := config.GetStorageConfig()
	backend, err := a.openBackend(cfg)
	if err != nil {
		return ctx, nil, nil, err
	}
	p, res, err := project.Load(ctx, backend)
	if err != nil {
		return ctx, nil, nil, fmt.Errorf("failed to load project: %w", err)
	}
	meta := p.Meta()
	ctx = logging.WithProject(ctx, meta.Name, meta.SessionID)
	a.log.InfoContext(ctx, "Project loaded",
		"storage", cfg.Type,
		"regions", len(p.Store().Regions()),
		"lines", p.Store().MarkerCount(core.KindLine),
		"points", p.Store().MarkerCount(core.KindPoint),
		"status", res.Status.String())
	for _, d := range res.Diagnostics {
		a.log.WarnContext(ctx, "Load diagnostic", "source", d.Source, "line", d.Line, "error", d.Err)
	}
	return ctx, p, res, nil
}

func runInit(ctx context.Context, a *app, args []string) error {
	scale := config.GetScale()
	fs := newFlagSet(a, "init")
	name := fs.String("name", "", "project name")
	source := fs.String("source", "", "path of the annotated video")
	description := fs.String("description", "", "free text description")
	width := fs.Int("width", 0, "video frame width in pixels")
	height := fs.Int("height", 0, "video frame height in pixels")
	frameRate := fs.Float64("frame-rate", scale.FrameRate, "video frame rate")
	resolution := fs.Float64("resolution", scale.Resolution, "physical units per pixel")
	units := fs.String("units", scale.Units, "physical unit name")
	force := fs.Bool("force", false, "overwrite an existing project")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.GetStorageConfig()
	backend, err := a.openBackend(cfg)
	if err != nil {
		return err
	}
	if _, err := backend.Load(ctx); err == nil && !*force {
		return fmt.Errorf("a project already exists in %s storage, use --force to overwrite", cfg.Type)
	}

	projName := *name
	if projName == "" {
		projName = cfg.Project
	}
	p := project.New(core.ProjectMeta{
		Name:            projName,
		Description:     *description,
		Source:          *source,
		FrameRate:       *frameRate,
		Resolution:      *resolution,
		ResolutionUnits: *units,
		FrameWidth:      *width,
		FrameHeight:     *height,
	})
	meta := p.Meta()
	ctx = logging.WithProject(ctx, meta.Name, meta.SessionID)

	hash, err := p.Save(ctx, backend)
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "Project created", "storage", cfg.Type, "hash", hash)
	fmt.Fprintf(a.out, "created project %q (session %s)\nhash %s\n", meta.Name, meta.SessionID, hash)
	return nil
}

func runSummary(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "summary")
	fps := fs.Float64("fps", 0, "frame rate override for this run")
	cumulative := fs.Bool("cumulative", false, "print cumulative displacement per family")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, p, res, err := a.openProject(ctx)
	if err != nil {
		return err
	}
	if *fps != 0 {
		if err := p.SetFrameRateOverride(*fps); err != nil {
			return err
		}
	}

	results, err := p.Results(ctx)
	if err != nil {
		return err
	}
	writeSummary(a, p.Meta(), res, results, *cumulative)
	return nil
}

func writeSummary(a *app, meta core.ProjectMeta, res *storage.LoadResult, results []displacement.RegionResult, cumulative bool) {
	scale := meta.Scale()
	fmt.Fprintf(a.out, "project  %s\n", meta.Name)
	fmt.Fprintf(a.out, "session  %s\n", meta.SessionID)
	fmt.Fprintf(a.out, "scale    %s fps, %s %s/px\n", formatNumber(scale.FrameRate), formatNumber(scale.Resolution), scale.Units)
	fmt.Fprintf(a.out, "status   %s\n\n", res.Status)

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "REGION\tFAMILY\tLABEL\tFIRST FRAME\tSAMPLES\tTOTAL (%s)\tMEAN VELOCITY (%s/s)\n", scale.Units, scale.Units)
	for _, r := range results {
		for _, s := range r.All() {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%s\t%s\n",
				r.RegionID, s.FamilyID, s.Label, s.FirstFrame, len(s.Samples),
				formatNumber(s.Total()), formatNumber(s.MeanVelocity(r.Scale.FrameRate)))
		}
	}
	_ = tw.Flush()

	if !cumulative {
		return
	}
	for _, r := range results {
		for _, s := range r.All() {
			fmt.Fprintf(a.out, "\nregion %d %s\n", r.RegionID, s.Label)
			for _, cp := range s.Cumulative() {
				fmt.Fprintf(a.out, "  %d\t%s\n", cp.Frame, formatNumber(cp.Displacement))
			}
		}
	}
}

func runVerify(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "verify")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, _, res, err := a.openProject(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "status       %s\n", res.Status)
	fmt.Fprintf(a.out, "hash         %s\n", res.Hash)
	fmt.Fprintf(a.out, "stored hash  %s\n", res.StoredHash)
	if n := res.MalformedCount(); n > 0 {
		fmt.Fprintf(a.out, "malformed    %d\n", n)
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintf(a.out, "  %s\n", d.Error())
	}
	if res.Status != storage.StatusOK {
		return errVerifyFailed
	}
	return nil
}

func runConvert(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "convert")
	toType := fs.String("to", "", "target storage type (csv, sqlite, postgres)")
	toDir := fs.String("to-dir", "", "target directory for csv storage")
	toPath := fs.String("to-path", "", "target database file for sqlite storage")
	toProject := fs.String("to-project", "", "target project name for database storage")
	force := fs.Bool("force", false, "convert even when the source fails verification")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *toType == "" {
		return errors.New("convert: --to is required")
	}

	source := config.GetStorageConfig()
	target := source
	target.Type = *toType
	if *toDir != "" {
		target.CSV.Dir = *toDir
	}
	if *toPath != "" {
		target.SQLite.Path = *toPath
	}
	if *toProject != "" {
		target.Project = *toProject
	}
	if target == source {
		return errors.New("convert: source and target storage are the same")
	}

	ctx, p, res, err := a.openProject(ctx)
	if err != nil {
		return err
	}
	if res.Status != storage.StatusOK && !*force {
		return fmt.Errorf("convert: source is %s, use --force to convert anyway", res.Status)
	}

	backend, err := a.openBackend(target)
	if err != nil {
		return err
	}
	hash, err := p.Save(ctx, backend)
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "Project converted", "from", source.Type, "to", target.Type, "hash", hash)
	fmt.Fprintf(a.out, "converted %s -> %s\nhash %s\n", source.Type, target.Type, hash)
	return nil
}

func runExportInflux(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "export-influx")
	enable := fs.Bool("enable", false, "export even if influx.enabled is false")
	backup := fs.String("backup", "", "gzip line protocol file used when InfluxDB is unreachable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, p, _, err := a.openProject(ctx)
	if err != nil {
		return err
	}
	results, err := p.Results(ctx)
	if err != nil {
		return err
	}

	cfg := config.GetInfluxConfig()
	if *enable {
		cfg.Enabled = true
	}
	backupPath := *backup
	if backupPath == "" {
		backupPath = filepath.Join(config.GetString("logsDir"),
			fmt.Sprintf("%s_influx_%s.log.gz", project.Program, time.Now().UTC().Format("20060102_150405")))
	}

	manager := influx.NewManager(a.zlog.With().Str("component", "influx").Logger(), cfg, backupPath)
	if err := manager.Connect(ctx); err != nil {
		if errors.Is(err, influx.ErrDisabled) {
			return fmt.Errorf("%w: set influx.enabled or pass --enable", err)
		}
		return err
	}
	a.track(manager)

	n, err := manager.Export(ctx, p.Meta(), results)
	if err != nil {
		return err
	}
	dest := cfg.URL()
	if !manager.IsValid {
		dest = backupPath
	}
	a.log.InfoContext(ctx, "Displacement exported", "points", n, "destination", dest)
	fmt.Fprintf(a.out, "exported %d points to %s\n", n, dest)
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
