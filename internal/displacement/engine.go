package displacement

import (
	"context"
	"fmt"

	"github.com/cgtracker/cgt/internal/cache"
	"github.com/cgtracker/cgt/internal/model/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/cgtracker/cgt/internal/displacement"

// ScaleProvider supplies frame rate and pixel resolution for a computation
type ScaleProvider interface {
	Scale() core.Scale
}

// Source is the read side of the annotation store
type Source interface {
	Version() uint64
	Regions() []core.Region
	Region(regionID int) (core.Region, bool)
	Families(regionID int, kind core.MarkerKind) ([]core.Family, error)
}

type cacheKey struct {
	regionID int
	scale    core.Scale
}

// Engine computes region results on demand and caches them until the
// source's version or the scale changes
type Engine struct {
	source   Source
	provider ScaleProvider
	results  *cache.Versioned[cacheKey, RegionResult]

	samplesComputed metric.Int64Counter
	cacheLookups    metric.Int64Counter
}

// NewEngine creates an Engine reading from source with scale from provider
func NewEngine(source Source, provider ScaleProvider) *Engine {
	e := &Engine{
		source:   source,
		provider: provider,
		results:  cache.NewVersioned[cacheKey, RegionResult](),
	}
	e.initMetrics()
	return e
}

func (e *Engine) initMetrics() {
	m := otel.Meter(instrumentationName)

	var err error
	e.samplesComputed, err = m.Int64Counter(
		"cgt.displacement.samples",
		metric.WithDescription("Displacement samples computed"),
	)
	if err != nil {
		otel.Handle(err)
	}

	e.cacheLookups, err = m.Int64Counter(
		"cgt.displacement.cache",
		metric.WithDescription("Region result cache lookups"),
	)
	if err != nil {
		otel.Handle(err)
	}
}

// ProcessRegion computes the line and point series of one region
func (e *Engine) ProcessRegion(ctx context.Context, regionID int) (RegionResult, error) {
	scale := e.provider.Scale()
	if !scale.Valid() {
		return RegionResult{}, fmt.Errorf("invalid scale: frame rate %v, resolution %v", scale.FrameRate, scale.Resolution)
	}
	if _, ok := e.source.Region(regionID); !ok {
		return RegionResult{}, fmt.Errorf("region %d: not found", regionID)
	}

	key := cacheKey{regionID: regionID, scale: scale}
	version := e.source.Version()
	if res, ok := e.results.Get(key, version); ok {
		e.recordLookup(ctx, "hit")
		return res.Clone(), nil
	}
	e.recordLookup(ctx, "miss")

	res := RegionResult{RegionID: regionID, Scale: scale}
	var err error
	if res.Lines, err = e.seriesFor(ctx, regionID, core.KindLine, scale); err != nil {
		return RegionResult{}, err
	}
	if res.Points, err = e.seriesFor(ctx, regionID, core.KindPoint, scale); err != nil {
		return RegionResult{}, err
	}

	e.results.Set(key, version, res.Clone())
	return res, nil
}

// ProcessAll computes results for every region in store order
func (e *Engine) ProcessAll(ctx context.Context) ([]RegionResult, error) {
	regions := e.source.Regions()
	out := make([]RegionResult, 0, len(regions))
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.ProcessRegion(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Invalidate drops all cached results
func (e *Engine) Invalidate() {
	e.results.Reset()
}

func (e *Engine) seriesFor(ctx context.Context, regionID int, kind core.MarkerKind, scale core.Scale) ([]Series, error) {
	families, err := e.source.Families(regionID, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Series, 0, len(families))
	for i, f := range families {
		samples, err := ForFamily(f, scale.Resolution)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", regionID, err)
		}
		out = append(out, Series{
			FamilyID:   f.ID,
			Kind:       f.Kind,
			Label:      f.Label(i),
			FirstFrame: f.FirstFrame(),
			Samples:    samples,
		})
		if e.samplesComputed != nil {
			e.samplesComputed.Add(ctx, int64(len(samples)),
				metric.WithAttributes(attribute.String("kind", kind.String())))
		}
	}
	return out, nil
}

func (e *Engine) recordLookup(ctx context.Context, result string) {
	if e.cacheLookups == nil {
		return
	}
	e.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
