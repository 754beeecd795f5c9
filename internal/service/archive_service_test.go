package service

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/plan-export-api/pkg/errors"
	"github.com/noah-isme/plan-export-api/pkg/storage"
)

func newAreas(t *testing.T) (staging, output *storage.LocalStorage) {
	t.Helper()
	var err error
	staging, err = storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	output, err = storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return staging, output
}

func stage(t *testing.T, store *storage.LocalStorage, name, content string) {
	t.Helper()
	_, err := store.WriteAtomic(name, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	})
	require.NoError(t, err)
}

func zipEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(body)
	}
	return out
}

func TestAssembleZipsAndClearsStaging(t *testing.T) {
	staging, output := newAreas(t)
	stage(t, staging, "a.pdf", "alpha")
	stage(t, staging, "b.pdf", "beta")
	svc := NewArchiveService(staging, output, nil)

	result, err := svc.Assemble(context.Background(), "plan_export_C1_x.zip")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, result.Files)
	assert.Equal(t, output.Path("plan_export_C1_x.zip"), result.Path)

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), result.Size)

	entries := zipEntries(t, result.Path)
	assert.Equal(t, map[string]string{"a.pdf": "alpha", "b.pdf": "beta"}, entries)

	remaining, err := staging.List()
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

type stickyStaging struct {
	*storage.LocalStorage
	stuck string
}

func (s stickyStaging) Delete(filename string) error {
	if filename == s.stuck {
		return os.ErrPermission
	}
	return s.LocalStorage.Delete(filename)
}

func TestAssembleKeepsArchiveWhenStagingCleanupFails(t *testing.T) {
	staging, output := newAreas(t)
	stage(t, staging, "a.pdf", "alpha")
	stage(t, staging, "b.pdf", "beta")
	svc := NewArchiveService(stickyStaging{LocalStorage: staging, stuck: "a.pdf"}, output, nil)

	result, err := svc.Assemble(context.Background(), "plan_export_C1_y.zip")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.pdf": "alpha", "b.pdf": "beta"}, zipEntries(t, result.Path))

	remaining, err := staging.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, remaining)
}

func TestAssembleEmptyStaging(t *testing.T) {
	staging, output := newAreas(t)
	svc := NewArchiveService(staging, output, nil)

	_, err := svc.Assemble(context.Background(), "empty.zip")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrArchive))

	names, err := output.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestAssembleExistingArchiveKeepsStaging(t *testing.T) {
	staging, output := newAreas(t)
	stage(t, staging, "a.pdf", "alpha")
	stage(t, output, "taken.zip", "old")
	svc := NewArchiveService(staging, output, nil)

	_, err := svc.Assemble(context.Background(), "taken.zip")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrArchive))

	names, err := staging.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf"}, names)
}

func TestAssembleCancelled(t *testing.T) {
	staging, output := newAreas(t)
	stage(t, staging, "a.pdf", "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewArchiveService(staging, output, nil).Assemble(ctx, "c.zip")
	assert.True(t, errors.Is(err, context.Canceled))
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	entries := zipEntries(t, path)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
