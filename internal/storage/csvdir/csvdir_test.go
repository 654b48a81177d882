package csvdir

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cgtracker/cgt/internal/annotation"
	"github.com/cgtracker/cgt/internal/config"
	"github.com/cgtracker/cgt/internal/model/core"
	"github.com/cgtracker/cgt/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *annotation.Store {
	t.Helper()
	s := annotation.New()
	r0, err := s.AddRegion(core.Rect{X: 0, Y: 0, Width: 100, Height: 100})
	require.NoError(t, err)
	r1, err := s.AddRegion(core.Rect{X: 120, Y: 40, Width: 60, Height: 30})
	require.NoError(t, err)

	// point family first so the reload has to regroup by kind
	p, err := s.AddMarker(r0, annotation.NewFamily, 3, core.NewCross(50.5, 50.25))
	require.NoError(t, err)
	_, err = s.AddMarker(r0, p, 1, core.NewCross(49, 51))
	require.NoError(t, err)

	l, err := s.AddMarker(r0, annotation.NewFamily, 8, core.NewLine(0, 18, 20, 18))
	require.NoError(t, err)
	_, err = s.AddMarker(r0, l, 0, core.NewLine(0, 10, 20, 10))
	require.NoError(t, err)

	_, err = s.AddMarker(r1, annotation.NewFamily, 2, core.NewLine(1.0/3, 2.0/3, 10, 0.1))
	require.NoError(t, err)
	return s
}

func testMeta() *core.ProjectMeta {
	return &core.ProjectMeta{
		SessionID:       "5b0a3b7e-4d55-4c35-9d0c-0b1c2f0b6a11",
		Name:            "quartz-run-3",
		StartTime:       time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Source:          "/data/quartz-run-3.avi",
		FrameRate:       25,
		Resolution:      0.8,
		ResolutionUnits: "microns",
	}
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	s := testStore(t)

	hash, err := Serialize(ctx, s.Snapshot(), testMeta(), dir)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	for _, name := range []string{RegionsFile, LinesFile, PointsFile, ProjectFile, HashFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusOK, res.Status)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, hash, res.Hash)
	assert.Equal(t, hash, res.StoredHash)
	assert.True(t, s.Equal(res.Store))
	require.NotNil(t, res.Meta)
	assert.Equal(t, "quartz-run-3", res.Meta.Name)
	assert.True(t, testMeta().StartTime.Equal(res.Meta.StartTime))
}

func TestSerialize_Layout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	_, err := Serialize(context.Background(), testStore(t).Snapshot(), nil, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, LinesFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "region,family,frame,kind,start_x,start_y,end_x,end_y", lines[0])
	// ascending frame within the family
	assert.Equal(t, "0,1,0,line,0,10,20,10", lines[1])
	assert.Equal(t, "0,1,8,line,0,18,20,18", lines[2])

	assert.NoFileExists(t, filepath.Join(dir, ProjectFile))

	// no temporary siblings left behind
	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDeserialize_HashSensitivity(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	_, err := Serialize(ctx, testStore(t).Snapshot(), nil, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, PointsFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mutated := strings.Replace(string(data), "0,0,3,point,50.5,50.25", "0,0,3,point,50.5,50.26", 1)
	require.NotEqual(t, string(data), mutated)
	require.NoError(t, os.WriteFile(path, []byte(mutated), 0644))

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusHashMismatch, res.Status)
	assert.NotEqual(t, res.StoredHash, res.Hash)
	require.Len(t, res.Diagnostics, 1)
	assert.ErrorIs(t, res.Diagnostics[0], storage.ErrHashMismatch)
	// data is still loaded
	assert.Equal(t, 2, res.Store.MarkerCount(core.KindPoint))
}

func TestDeserialize_MalformedRow(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	s := testStore(t)
	_, err := Serialize(ctx, s.Snapshot(), nil, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, LinesFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mutated := strings.Replace(string(data), "0,1,8,line,0,18,20,18", "0,1,8,line,0,eighteen,20,18", 1)
	require.NoError(t, os.WriteFile(path, []byte(mutated), 0644))

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMalformedRecord, res.Status)
	assert.Equal(t, 1, res.MalformedCount())

	var malformed storage.Diagnostic
	for _, d := range res.Diagnostics {
		if d.Source == LinesFile {
			malformed = d
		}
	}
	assert.Equal(t, 3, malformed.Line)
	assert.ErrorIs(t, malformed, storage.ErrMalformedRecord)

	// everything except the bad marker survives
	assert.Equal(t, s.MarkerCount(core.KindLine)-1, res.Store.MarkerCount(core.KindLine))
	assert.Equal(t, s.MarkerCount(core.KindPoint), res.Store.MarkerCount(core.KindPoint))
	s.RemoveMarker(0, 1, 8)
	assert.True(t, s.Equal(res.Store))
}

func TestDeserialize_UnterminatedQuoteCostsOneRow(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	s := testStore(t)
	_, err := Serialize(ctx, s.Snapshot(), nil, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, LinesFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mutated := strings.Replace(string(data), "0,1,8,line,0,18,20,18", `0,1,8,line,0,18,20,"18`, 1)
	require.NotEqual(t, string(data), mutated)
	require.NoError(t, os.WriteFile(path, []byte(mutated), 0644))

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMalformedRecord, res.Status)
	require.Equal(t, 1, res.MalformedCount())

	var malformed storage.Diagnostic
	for _, d := range res.Diagnostics {
		if d.Source == LinesFile {
			malformed = d
		}
	}
	assert.Equal(t, 3, malformed.Line)
	assert.ErrorIs(t, malformed, storage.ErrMalformedRecord)

	// the row after the broken one still loads
	assert.Equal(t, s.MarkerCount(core.KindLine)-1, res.Store.MarkerCount(core.KindLine))
	s.RemoveMarker(0, 1, 8)
	assert.True(t, s.Equal(res.Store))
}

func TestDeserialize_ReformattedValuesKeepHash(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	_, err := Serialize(ctx, testStore(t).Snapshot(), nil, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, PointsFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mutated := strings.Replace(string(data), "0,0,3,point,50.5,50.25", "0,0,3,point,50.500, 50.25", 1)
	require.NotEqual(t, string(data), mutated)
	require.NoError(t, os.WriteFile(path, []byte(mutated), 0644))

	// the hash covers parsed values, so the same numbers spelled differently verify
	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusOK, res.Status)
	assert.Equal(t, res.StoredHash, res.Hash)
}

func TestDeserialize_MissingHashFile(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	_, err := Serialize(ctx, testStore(t).Snapshot(), nil, dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, HashFile)))

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusHashMismatch, res.Status)
	assert.Empty(t, res.StoredHash)
}

func TestDeserialize_MissingDirectory(t *testing.T) {
	_, err := Deserialize(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeserialize_MissingMarkerFiles(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	s := annotation.New()
	_, err := s.AddRegion(core.Rect{Width: 10, Height: 10})
	require.NoError(t, err)
	_, err = Serialize(ctx, s.Snapshot(), nil, dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, LinesFile)))
	require.NoError(t, os.Remove(filepath.Join(dir, PointsFile)))

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusOK, res.Status)
	assert.Len(t, res.Store.Regions(), 1)
}

func TestDeserialize_BadHeader(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	_, err := Serialize(ctx, testStore(t).Snapshot(), nil, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, RegionsFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mutated := strings.Replace(string(data), "id,x,y,width,height", "id,left,top,w,h", 1)
	require.NoError(t, os.WriteFile(path, []byte(mutated), 0644))

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMalformedRecord, res.Status)
	assert.Equal(t, 1, res.Diagnostics[0].Line)
	assert.Len(t, res.Store.Regions(), 2)
}

func TestDeserialize_UnparsableHeader(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	_, err := Serialize(ctx, testStore(t).Snapshot(), nil, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, RegionsFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mutated := strings.Replace(string(data), "id,x,y,width,height", `id,"x,y,width,height`, 1)
	require.NoError(t, os.WriteFile(path, []byte(mutated), 0644))

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMalformedRecord, res.Status)
	require.Equal(t, 1, res.MalformedCount())
	assert.Equal(t, 1, res.Diagnostics[0].Line)
	// the first data row is not mistaken for the header
	assert.Len(t, res.Store.Regions(), 2)
}

func TestSerialize_CancelledLeavesPreviousIntact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	s := testStore(t)
	hash, err := Serialize(context.Background(), s.Snapshot(), nil, dir)
	require.NoError(t, err)

	_, err = s.AddRegion(core.Rect{Width: 5, Height: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Serialize(ctx, s.Snapshot(), nil, dir)
	assert.ErrorIs(t, err, context.Canceled)

	res, err := Deserialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusOK, res.Status)
	assert.Equal(t, hash, res.Hash)
	assert.Len(t, res.Store.Regions(), 2)

	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSerialize_ReplacesExisting(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "project")
	s := testStore(t)
	first, err := Serialize(ctx, s.Snapshot(), nil, dir)
	require.NoError(t, err)

	s.RemoveRegion(1)
	second, err := Serialize(ctx, s.Snapshot(), nil, dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	res, err := Deserialize(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, second, res.Hash)
	assert.True(t, s.Equal(res.Store))
}

func TestBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()
	b := New(config.CSVConfig{Dir: filepath.Join(t.TempDir(), "project")})
	require.NoError(t, b.Init())
	defer b.Close()

	s := testStore(t)
	hash, err := b.Save(ctx, s.Snapshot(), testMeta())
	require.NoError(t, err)
	assert.Equal(t, hash, b.LastHash())

	res, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusOK, res.Status)
	assert.True(t, s.Equal(res.Store))
}

func TestBackend_InitRequiresDir(t *testing.T) {
	assert.Error(t, New(config.CSVConfig{}).Init())
}
