package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipWith(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("%PDF-1.3"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestVerifyArtifact(t *testing.T) {
	assert.NoError(t, verifyArtifact("a.pdf", []byte("%PDF-1.3 ..."), 1))
	assert.Error(t, verifyArtifact("a.pdf", []byte("<html>"), 1))

	archive := zipWith(t, "a.pdf", "b.pdf")
	assert.NoError(t, verifyArtifact("c.zip", archive, 2))
	assert.Error(t, verifyArtifact("c.zip", archive, 3))
	assert.Error(t, verifyArtifact("c.zip", []byte("nope"), 1))

	assert.Error(t, verifyArtifact("c.txt", nil, 0))
}

func TestLoadTargetsDefaultsStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"targets":[{"classId":"C1"},{"studentId":"x","expectStatus":404}]}`), 0o644))

	targets, err := loadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, 200, targets[0].ExpectStatus)
	assert.Equal(t, 404, targets[1].ExpectStatus)
}
