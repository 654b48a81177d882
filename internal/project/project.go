// Package project holds the session object that owns a project's
// annotation store, its metadata and the displacement engine over it.
// A Project is created with New or Load and ends with Save or Discard.
package project

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/user"
	"runtime"
	"sync"
	"time"

	"github.com/cgtracker/cgt/internal/annotation"
	"github.com/cgtracker/cgt/internal/displacement"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/cgtracker/cgt/internal/storage"
	"github.com/google/uuid"
)

// Program is recorded in the metadata of projects this tool creates
const Program = "cgt"

var (
	// ErrDiscarded is returned by operations on a discarded project
	ErrDiscarded = errors.New("project discarded")

	// ErrInvalidScale is returned for non-positive or non-finite scale values
	ErrInvalidScale = errors.New("invalid scale")
)

// Project is one open annotation session
type Project struct {
	mu   sync.RWMutex
	meta core.ProjectMeta

	store  *annotation.Store
	engine *displacement.Engine

	savedVersion uint64
	lastHash     string
	discarded    bool
}

// New starts a project. Missing session id, start time, host, user and
// scale values are filled in.
func New(meta core.ProjectMeta) *Project {
	if meta.SessionID == "" {
		meta.SessionID = uuid.NewString()
	}
	if meta.StartTime.IsZero() {
		meta.StartTime = time.Now().UTC()
	}
	if meta.Program == "" {
		meta.Program = Program
	}
	if meta.Host == "" {
		meta.Host, _ = os.Hostname()
	}
	if meta.User == "" {
		if u, err := user.Current(); err == nil {
			meta.User = u.Username
		}
	}
	if meta.OperatingSystem == "" {
		meta.OperatingSystem = runtime.GOOS
	}
	if meta.FrameRate <= 0 {
		meta.FrameRate = core.DefaultScale.FrameRate
	}
	if meta.Resolution <= 0 {
		meta.Resolution = core.DefaultScale.Resolution
	}
	if meta.ResolutionUnits == "" {
		meta.ResolutionUnits = core.DefaultScale.Units
	}

	var opts []annotation.Option
	if meta.FrameWidth > 0 && meta.FrameHeight > 0 {
		opts = append(opts, annotation.WithFrameBounds(meta.FrameWidth, meta.FrameHeight))
	}
	return newProject(meta, annotation.New(opts...))
}

func newProject(meta core.ProjectMeta, store *annotation.Store) *Project {
	p := &Project{meta: meta, store: store}
	p.engine = displacement.NewEngine(store, p)
	return p
}

// Load opens the project persisted in backend. The load result is returned
// alongside so callers can report its status and diagnostics.
func Load(ctx context.Context, backend storage.Backend) (*Project, *storage.LoadResult, error) {
	res, err := backend.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	var meta core.ProjectMeta
	if res.Meta != nil {
		meta = *res.Meta
	}
	if meta.SessionID == "" {
		meta.SessionID = uuid.NewString()
	}
	if meta.FrameRate <= 0 {
		meta.FrameRate = core.DefaultScale.FrameRate
	}
	if meta.Resolution <= 0 {
		meta.Resolution = core.DefaultScale.Resolution
	}

	p := newProject(meta, res.Store)
	p.savedVersion = res.Store.Version()
	if res.Status == storage.StatusOK {
		p.lastHash = res.Hash
	}
	return p, res, nil
}

// Store returns the annotation store. Mutations must come from one goroutine.
func (p *Project) Store() *annotation.Store {
	return p.store
}

// Engine returns the displacement engine bound to this project's store and scale
func (p *Project) Engine() *displacement.Engine {
	return p.engine
}

// Meta returns a copy of the metadata
func (p *Project) Meta() core.ProjectMeta {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta
}

// Scale implements displacement.ScaleProvider; a frame rate override wins
// over the codec frame rate
func (p *Project) Scale() core.Scale {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta.Scale()
}

// SetFrameRateOverride sets the user frame rate. Zero clears the override.
func (p *Project) SetFrameRateOverride(fps float64) error {
	if fps < 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return fmt.Errorf("%w: frame rate %v", ErrInvalidScale, fps)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta.FrameRateOverride = fps
	return nil
}

// SetResolution sets the physical length of one pixel edge
func (p *Project) SetResolution(resolution float64, units string) error {
	if resolution <= 0 || math.IsNaN(resolution) || math.IsInf(resolution, 0) {
		return fmt.Errorf("%w: resolution %v", ErrInvalidScale, resolution)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta.Resolution = resolution
	if units != "" {
		p.meta.ResolutionUnits = units
	}
	return nil
}

// SetNotes replaces the free-text notes
func (p *Project) SetNotes(notes string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta.Notes = notes
}

// Modified reports whether the store changed since the last Save or Load
func (p *Project) Modified() bool {
	return p.store != nil && p.store.Version() != p.savedVersion
}

// LastHash returns the integrity hash of the last successful Save, or of the
// load when it verified cleanly
func (p *Project) LastHash() string {
	return p.lastHash
}

// Save persists the store and metadata to backend
func (p *Project) Save(ctx context.Context, backend storage.Backend) (string, error) {
	if p.discarded {
		return "", ErrDiscarded
	}
	meta := p.Meta()
	version := p.store.Version()

	hash, err := backend.Save(ctx, p.store.Snapshot(), &meta)
	if err != nil {
		return "", fmt.Errorf("failed to save project %s: %w", meta.Name, err)
	}
	p.savedVersion = version
	p.lastHash = hash
	return hash, nil
}

// Discard drops the session without saving. The project is unusable afterwards.
func (p *Project) Discard() {
	if p.discarded {
		return
	}
	p.discarded = true
	p.engine.Invalidate()
}

// Discarded reports whether Discard was called
func (p *Project) Discarded() bool {
	return p.discarded
}

// Results computes the displacement results of every region
func (p *Project) Results(ctx context.Context) ([]displacement.RegionResult, error) {
	if p.discarded {
		return nil, ErrDiscarded
	}
	return p.engine.ProcessAll(ctx)
}
