package resource

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestBackupAndRollbackRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	workDir := t.TempDir()

	exePath := filepath.Join(srcDir, "agent-binary")
	configDir := filepath.Join(srcDir, "config")
	writeFile(t, exePath, "binary-contents")
	writeFile(t, filepath.Join(configDir, "config.json"), `{"k":"v"}`)

	m, err := NewManager(workDir)
	require.NoError(t, err)

	backupPath, err := m.Backup(exePath, configDir)
	require.NoError(t, err)
	assert.FileExists(t, backupPath)

	require.NoError(t, os.WriteFile(exePath, []byte("corrupted"), 0644))
	require.NoError(t, os.RemoveAll(configDir))

	require.NoError(t, m.Rollback(backupPath))

	restored, err := os.ReadFile(exePath)
	require.NoError(t, err)
	assert.Equal(t, "binary-contents", string(restored))

	restoredConfig, err := os.ReadFile(filepath.Join(configDir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, string(restoredConfig))
}

func TestGetLatestBackupReturnsNewest(t *testing.T) {
	workDir := t.TempDir()
	m, err := NewManager(workDir)
	require.NoError(t, err)

	older := filepath.Join(workDir, "nodex_backup_1.tar.gz")
	newer := filepath.Join(workDir, "nodex_backup_2.tar.gz")
	writeFile(t, older, "old")
	writeFile(t, newer, "new")

	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	latest, err := m.GetLatestBackup()
	require.NoError(t, err)
	assert.Equal(t, newer, latest)
}

func TestGetLatestBackupErrorsWhenEmpty(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	_, err = m.GetLatestBackup()
	assert.ErrorIs(t, err, ErrNoBackup)
}

func TestDownloadUpdateResourcesExtractsZip(t *testing.T) {
	zipBytes := buildTestZip(t, map[string]string{
		"bin/agent":     "new-binary",
		"config/app.cfg": "setting=1",
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(zipBytes)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	outDir := filepath.Join(workDir, "extracted")
	m, err := NewManager(workDir)
	require.NoError(t, err)

	require.NoError(t, m.DownloadUpdateResources(context.Background(), srv.URL, outDir))

	data, err := os.ReadFile(filepath.Join(outDir, "bin", "agent"))
	require.NoError(t, err)
	assert.Equal(t, "new-binary", string(data))
}

func TestIsInsideDirRejectsTraversal(t *testing.T) {
	assert.True(t, isInsideDir("/work", "/work/sub/file"))
	assert.False(t, isInsideDir("/work", "/etc/passwd"))
	assert.False(t, isInsideDir("/work", "/work/../etc/passwd"))
}

func buildTestZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, contents := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
