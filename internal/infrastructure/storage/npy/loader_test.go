package npy

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/famsim/pkg/errors"
)

func writeIDs(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadSpace_Npy(t *testing.T) {
	dir := t.TempDir()
	values := filepath.Join(dir, "sim.npy")
	require.NoError(t, WriteValues(values, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}))
	ids := writeIDs(t, dir, "molregno\n11\n12\n13\n14\n")

	s, err := LoadSpace(values, ids, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, s.N())

	v, err := s.Lookup(12, 14)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
}

func TestLoadSpace_Float32Npy(t *testing.T) {
	dir := t.TempDir()
	values := filepath.Join(dir, "sim.npy")
	f, err := os.Create(values)
	require.NoError(t, err)
	require.NoError(t, npyio.Write(f, []float32{0.5}))
	require.NoError(t, f.Close())

	s, err := LoadSpace(values, writeIDs(t, dir, "1\n2\n"), 0)
	require.NoError(t, err)
	v, err := s.Lookup(1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-7)
}

func TestLoadSpace_Raw(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, WriteRaw(&buf, []float64{0.25, 0.5, 0.75}))
	values := filepath.Join(dir, "sim.bin")
	require.NoError(t, os.WriteFile(values, buf.Bytes(), 0o644))

	s, err := LoadSpace(values, writeIDs(t, dir, "5\n6\n7\n"), 0)
	require.NoError(t, err)
	v, err := s.Lookup(7, 6)
	require.NoError(t, err)
	assert.Equal(t, 0.75, v)
}

func TestLoadSpace_SizeMismatch(t *testing.T) {
	dir := t.TempDir()
	values := filepath.Join(dir, "sim.npy")
	require.NoError(t, WriteValues(values, []float64{0.1, 0.2}))

	_, err := LoadSpace(values, writeIDs(t, dir, "1\n2\n3\n"), 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSizeMismatch))
	assert.Contains(t, err.Error(), "expected=3 actual=2")

	raw := filepath.Join(dir, "sim.bin")
	require.NoError(t, os.WriteFile(raw, make([]byte, 12), 0o644))
	_, err = LoadSpace(raw, writeIDs(t, dir, "1\n2\n"), 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInputParse))
}

func TestLoadSpace_CompoundLimit(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSpace(filepath.Join(dir, "never-read.npy"), writeIDs(t, dir, "1\n2\n3\n"), 2)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTooManyCompounds))
}

func TestReadIDs(t *testing.T) {
	dir := t.TempDir()
	ids, err := ReadIDs(writeIDs(t, dir, "3\n\n1\n2\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, ids)

	_, err = ReadIDs(writeIDs(t, dir, "1\nabc\n"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInputParse))

	p := filepath.Join(dir, "ids.npy")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, npyio.Write(f, []int64{9, 8}))
	require.NoError(t, f.Close())
	ids, err = ReadIDs(p)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 8}, ids)
}
