// internal/storage/csvdir/csvdir.go
package csvdir

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cgtracker/cgt/internal/annotation"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/cgtracker/cgt/internal/storage"
	"github.com/google/uuid"
)

// File names inside a project directory
const (
	RegionsFile = "regions.csv"
	LinesFile   = "lines.csv"
	PointsFile  = "points.csv"
	ProjectFile = "project.json"
	HashFile    = "results_hash.json"
)

// HashRecord is the content of HashFile
type HashRecord struct {
	Algorithm string `json:"algorithm"`
	Hash      string `json:"hash"`
	Regions   int    `json:"regions"`
	Lines     int    `json:"lines"`
	Points    int    `json:"points"`
}

// Serialize writes snap (and meta, when not nil) to dir and returns the
// integrity hash. Files are written to a temporary sibling directory which
// replaces dir only once every file, the hash file last, is complete.
func Serialize(ctx context.Context, snap annotation.Snapshot, meta *core.ProjectMeta, dir string) (string, error) {
	dir = filepath.Clean(dir)
	parent, base := filepath.Split(dir)
	if parent == "" {
		parent = "."
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp := filepath.Join(parent, fmt.Sprintf(".%s.tmp-%s", base, uuid.NewString()))
	if err := os.Mkdir(tmp, 0755); err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(tmp)
		}
	}()

	rec := storage.RecordsOf(snap)
	hash := rec.Hash()

	steps := []func() error{
		func() error {
			rows := make([][]string, len(rec.Regions))
			for i, r := range rec.Regions {
				rows[i] = r.Fields()
			}
			return writeCSV(filepath.Join(tmp, RegionsFile), storage.RegionHeader, rows)
		},
		func() error {
			return writeCSV(filepath.Join(tmp, LinesFile), storage.LineHeader, markerFields(rec.Lines))
		},
		func() error {
			return writeCSV(filepath.Join(tmp, PointsFile), storage.PointHeader, markerFields(rec.Points))
		},
		func() error {
			if meta == nil {
				return nil
			}
			return writeJSON(filepath.Join(tmp, ProjectFile), meta)
		},
		func() error {
			return writeJSON(filepath.Join(tmp, HashFile), HashRecord{
				Algorithm: storage.HashAlgorithm,
				Hash:      hash,
				Regions:   len(rec.Regions),
				Lines:     len(rec.Lines),
				Points:    len(rec.Points),
			})
		},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := step(); err != nil {
			return "", err
		}
	}

	if err := publish(tmp, dir); err != nil {
		return "", err
	}
	published = true
	return hash, nil
}

// publish replaces dir with tmp, restoring the previous dir on failure
func publish(tmp, dir string) error {
	var old string
	if _, err := os.Stat(dir); err == nil {
		parent, base := filepath.Split(dir)
		old = filepath.Join(parent, fmt.Sprintf(".%s.old-%s", base, uuid.NewString()))
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("failed to move previous directory aside: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat target directory: %w", err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			os.Rename(old, dir)
		}
		return fmt.Errorf("failed to publish directory: %w", err)
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

func markerFields(rows []storage.MarkerRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = r.Fields()
	}
	return out
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Deserialize rebuilds a store from dir. A missing directory or regions file
// is an error; bad rows, a bad or missing hash file and a hash that does not
// match the rows are reported in the result.
func Deserialize(ctx context.Context, dir string) (*storage.LoadResult, error) {
	if _, err := os.Stat(filepath.Join(dir, RegionsFile)); err != nil {
		return nil, fmt.Errorf("failed to open project directory: %w", err)
	}

	meta, metaErr := readMeta(filepath.Join(dir, ProjectFile))
	var opts []annotation.Option
	if meta != nil && meta.FrameWidth > 0 && meta.FrameHeight > 0 {
		opts = append(opts, annotation.WithFrameBounds(meta.FrameWidth, meta.FrameHeight))
	}
	b := storage.NewBuilder(opts...)
	b.Result().Meta = meta
	if metaErr != nil {
		b.Malformed(ProjectFile, 0, metaErr)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err := readCSV(filepath.Join(dir, RegionsFile), storage.RegionHeader, b, func(line int, fields []string) {
		row, err := storage.ParseRegionRow(fields)
		if err != nil {
			b.Malformed(RegionsFile, line, err)
			return
		}
		b.Region(RegionsFile, line, row)
	})
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		name   string
		header []string
		kind   core.MarkerKind
	}{
		{LinesFile, storage.LineHeader, core.KindLine},
		{PointsFile, storage.PointHeader, core.KindPoint},
	} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := readCSV(filepath.Join(dir, f.name), f.header, b, func(line int, fields []string) {
			row, err := storage.ParseMarkerRow(fields, f.kind)
			if err != nil {
				b.Malformed(f.name, line, err)
				return
			}
			b.Marker(f.name, line, row)
		})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored, err := readHash(filepath.Join(dir, HashFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		b.Malformed(HashFile, 0, err)
	}
	return b.Finish(HashFile, stored), nil
}

// readCSV feeds every data row of path to fn with its 1-based line number.
// Rows never span lines, so each line is parsed on its own and a broken
// quote costs only that row. A header that does not match is reported and
// the data rows are still read by position.
func readCSV(path string, header []string, b *storage.Builder, fn func(line int, fields []string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	headerSeen := false
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields, err := parseLine(text)
		if !headerSeen {
			headerSeen = true
			switch {
			case err != nil:
				b.Malformed(name, line, err)
			case !slices.Equal(fields, header):
				b.Malformed(name, line, fmt.Errorf("unexpected header %v", fields))
			}
			continue
		}
		if err != nil {
			b.Malformed(name, line, err)
			continue
		}
		fn(line, fields)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return nil
}

// maxLineSize bounds a single CSV row
const maxLineSize = 1 << 20

func parseLine(text string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, parseErr.Err
		}
		return nil, err
	}
	return fields, nil
}

func readMeta(path string) (*core.ProjectMeta, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta core.ProjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid project metadata: %w", err)
	}
	return &meta, nil
}

func readHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var rec HashRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("invalid hash file: %w", err)
	}
	if rec.Algorithm != storage.HashAlgorithm {
		return "", fmt.Errorf("unsupported hash algorithm %q", rec.Algorithm)
	}
	return rec.Hash, nil
}
