// internal/storage/csvdir/backend.go
package csvdir

import (
	"context"
	"fmt"

	"github.com/cgtracker/cgt/internal/annotation"
	"github.com/cgtracker/cgt/internal/config"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/cgtracker/cgt/internal/storage"
)

const backendName = "csv"

// Backend persists a project as a directory of CSV files
type Backend struct {
	cfg      config.CSVConfig
	lastHash string
}

// New creates a new CSV directory backend
func New(cfg config.CSVConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init checks the backend is usable
func (b *Backend) Init() error {
	if b.cfg.Dir == "" {
		return fmt.Errorf("csv storage: no project directory configured")
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Dir returns the project directory
func (b *Backend) Dir() string {
	return b.cfg.Dir
}

// LastHash returns the hash written by the most recent successful Save
func (b *Backend) LastHash() string {
	return b.lastHash
}

// Save writes the snapshot to the project directory
func (b *Backend) Save(ctx context.Context, snap annotation.Snapshot, meta *core.ProjectMeta) (string, error) {
	hash, err := Serialize(ctx, snap, meta, b.cfg.Dir)
	storage.RecordSave(ctx, backendName, err)
	if err != nil {
		return "", err
	}
	b.lastHash = hash
	return hash, nil
}

// Load reads the project directory
func (b *Backend) Load(ctx context.Context) (*storage.LoadResult, error) {
	res, err := Deserialize(ctx, b.cfg.Dir)
	if err != nil {
		return nil, err
	}
	storage.RecordLoad(ctx, backendName, res)
	return res, nil
}

var _ storage.Backend = (*Backend)(nil)
