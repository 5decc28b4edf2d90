package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dasladen/internal/errors"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestCreateThenExtract(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "out", "a.csv"), "id;v\n1;x\n")
	write(t, filepath.Join(dir, "out", "job.json"), `{"tasks":[]}`)

	dest := filepath.Join(dir, "out", "bundle.zip")
	require.NoError(t, Create(dest, []Entry{
		{Path: filepath.Join(dir, "out", "a.csv"), Name: "a.csv"},
		{Path: filepath.Join(dir, "out", "job.json"), Name: "job.json"},
	}))

	stage := filepath.Join(dir, "stage")
	require.NoError(t, Extract(dest, stage, Limits{}))

	b, err := os.ReadFile(filepath.Join(stage, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id;v\n1;x\n", string(b))
	assert.FileExists(t, filepath.Join(stage, "job.json"))
}

func TestCreateStoresCP437Names(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "f.txt")
	write(t, src, "x")
	dest := filepath.Join(dir, "names.zip")
	require.NoError(t, Create(dest, []Entry{{Path: src, Name: "café€?.txt"}}))

	r, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 1)
	assert.Equal(t, "caf\x82__.txt", r.File[0].Name)
	assert.Equal(t, zip.Deflate, r.File[0].Method)
}

func TestCreateMissingSourceLeavesNoArchive(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "broken.zip")
	err := Create(dest, []Entry{{Path: filepath.Join(dir, "nope.csv"), Name: "nope.csv"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
	assert.NoFileExists(t, dest)
}

func TestExtractCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.zip")
	write(t, bad, "not a zip")
	err := Extract(bad, filepath.Join(dir, "x"), Limits{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("a.zip"))
	assert.True(t, IsArchive("B.ZIP"))
	assert.False(t, IsArchive("a.zip.json"))
}
