// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cgtracker/cgt/internal/annotation"
	"github.com/cgtracker/cgt/internal/model/core"
)

var (
	// ErrMalformedRecord marks a persisted row that could not be parsed or applied
	ErrMalformedRecord = errors.New("malformed record")

	// ErrHashMismatch marks data whose recomputed hash differs from the stored one
	ErrHashMismatch = errors.New("hash mismatch")
)

// Backend is the interface all persistence implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Save writes the snapshot and returns its integrity hash
	Save(ctx context.Context, snap annotation.Snapshot, meta *core.ProjectMeta) (string, error)

	// Load rebuilds a store. Per-record problems are reported in the result,
	// only unrecoverable failures are returned as errors.
	Load(ctx context.Context) (*LoadResult, error)
}

// Status summarises how trustworthy a load was
type Status int

const (
	StatusOK Status = iota
	StatusHashMismatch
	StatusMalformedRecord
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusHashMismatch:
		return "HashMismatch"
	case StatusMalformedRecord:
		return "MalformedRecord"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Diagnostic describes one record that failed to load, or an integrity problem
type Diagnostic struct {
	Source string // file or table name
	Line   int    // 1-based line or row number, 0 when not row specific
	Err    error
}

func (d Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %v", d.Source, d.Line, d.Err)
	}
	return fmt.Sprintf("%s: %v", d.Source, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// LoadResult is what a Backend reconstructs
type LoadResult struct {
	Store       *annotation.Store
	Meta        *core.ProjectMeta
	Hash        string // recomputed over the loaded records
	StoredHash  string // as persisted, empty when missing
	Status      Status
	Diagnostics []Diagnostic
}

// Add records a diagnostic and raises the status to at least s
func (r *LoadResult) Add(s Status, d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
	if s > r.Status {
		r.Status = s
	}
}

// MalformedCount returns the number of records that failed to load
func (r *LoadResult) MalformedCount() int {
	n := 0
	for _, d := range r.Diagnostics {
		if errors.Is(d.Err, ErrMalformedRecord) {
			n++
		}
	}
	return n
}

// Verify compares the stored and recomputed hashes and records a mismatch
func (r *LoadResult) Verify(source string) {
	if r.StoredHash == "" {
		r.Add(StatusHashMismatch, Diagnostic{Source: source, Err: fmt.Errorf("%w: no stored hash, write may be incomplete", ErrHashMismatch)})
		return
	}
	if r.StoredHash != r.Hash {
		r.Add(StatusHashMismatch, Diagnostic{Source: source, Err: fmt.Errorf("%w: stored %s, computed %s", ErrHashMismatch, r.StoredHash, r.Hash)})
	}
}
