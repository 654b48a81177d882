// internal/storage/storage_test.go
package storage_test

import (
	"errors"
	"testing"

	"github.com/cgtracker/cgt/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", storage.StatusOK.String())
	assert.Equal(t, "HashMismatch", storage.StatusHashMismatch.String())
	assert.Equal(t, "MalformedRecord", storage.StatusMalformedRecord.String())
	assert.Equal(t, "Status(7)", storage.Status(7).String())
}

func TestDiagnosticError(t *testing.T) {
	cause := errors.New("bad float")
	d := storage.Diagnostic{Source: "lines.csv", Line: 12, Err: cause}

	assert.Equal(t, "lines.csv:12: bad float", d.Error())
	assert.ErrorIs(t, d, cause)

	whole := storage.Diagnostic{Source: "results_hash.json", Err: storage.ErrHashMismatch}
	assert.Equal(t, "results_hash.json: hash mismatch", whole.Error())
	assert.ErrorIs(t, whole, storage.ErrHashMismatch)
}

func TestLoadResult_MalformedCount(t *testing.T) {
	var res storage.LoadResult
	res.Add(storage.StatusHashMismatch, storage.Diagnostic{Source: "h", Err: storage.ErrHashMismatch})
	assert.Equal(t, 0, res.MalformedCount())
	assert.Equal(t, storage.StatusHashMismatch, res.Status)

	res.Add(storage.StatusMalformedRecord, storage.Diagnostic{Source: "p", Line: 2, Err: storage.ErrMalformedRecord})
	assert.Equal(t, 1, res.MalformedCount())
	assert.Len(t, res.Diagnostics, 2)
}
