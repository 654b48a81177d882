// internal/storage/metrics.go
package storage

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/cgtracker/cgt/internal/storage"

var (
	metricsOnce sync.Once
	saves       metric.Int64Counter
	loads       metric.Int64Counter
)

func initMetrics() {
	m := otel.Meter(instrumentationName)

	var err error
	saves, err = m.Int64Counter(
		"cgt.storage.saves",
		metric.WithDescription("Project saves by backend and outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}

	loads, err = m.Int64Counter(
		"cgt.storage.loads",
		metric.WithDescription("Project loads by backend and status"),
	)
	if err != nil {
		otel.Handle(err)
	}
}

// RecordSave counts a save attempt of the named backend
func RecordSave(ctx context.Context, backend string, err error) {
	metricsOnce.Do(initMetrics)
	if saves == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	saves.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
	))
}

// RecordLoad counts a completed load of the named backend
func RecordLoad(ctx context.Context, backend string, res *LoadResult) {
	metricsOnce.Do(initMetrics)
	if loads == nil || res == nil {
		return
	}
	loads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", res.Status.String()),
	))
}
