package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dasladen/internal/errors"
	"dasladen/pkg/logx"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
}

func TestBaselineIsNotReported(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "old.json")

	w, err := New(dir, logx.Nop())
	require.NoError(t, err)
	added, err := w.Poll()
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestPollReturnsDifferenceInListingOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.json")
	w, err := New(dir, logx.Nop())
	require.NoError(t, err)

	touch(t, dir, "c.zip")
	touch(t, dir, "a.json")
	added, err := w.Poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "c.zip"}, added)

	added, err = w.Poll()
	require.NoError(t, err)
	assert.Empty(t, added, "already seen")
}

func TestPollForgetsRemovedNames(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, logx.Nop())
	require.NoError(t, err)

	touch(t, dir, "x.json")
	added, _ := w.Poll()
	assert.Equal(t, []string{"x.json"}, added)

	require.NoError(t, os.Remove(filepath.Join(dir, "x.json")))
	added, _ = w.Poll()
	assert.Empty(t, added)

	touch(t, dir, "x.json")
	added, _ = w.Poll()
	assert.Equal(t, []string{"x.json"}, added, "a name that came back is new again")
}

func TestRenameIsOneAddition(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "old.json")
	w, err := New(dir, logx.Nop())
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(dir, "old.json"), filepath.Join(dir, "new.json")))
	added, err := w.Poll()
	require.NoError(t, err)
	assert.Equal(t, []string{"new.json"}, added)
}

func TestMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), logx.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIO))
}

func TestCheckSwallowsListingErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "capture")
	require.NoError(t, os.Mkdir(dir, 0o755))
	w, err := New(dir, logx.Nop())
	require.NoError(t, err)

	require.NoError(t, os.Remove(dir))
	assert.Nil(t, w.Check())
	assert.Nil(t, w.Check())

	require.NoError(t, os.Mkdir(dir, 0o755))
	touch(t, dir, "late.json")
	assert.Equal(t, []string{"late.json"}, w.Check())
}
