// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package resource backs up the running agent's executable and config
// directory before an update, restores them on rollback, and downloads
// and extracts update archives, generalizing
// original_source/controller/src/managers/resource.rs's UnixResourceManager
// from Rust's tar/zip/flate2 crates to the standard library's
// archive/tar, archive/zip and compress/gzip packages, following
// terassyi-tomei's internal/installer/extract/extractor.go for the
// extraction-side path-traversal guard.
package resource

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNoBackup is returned by Rollback when the working directory
	// contains no backup archive to restore.
	ErrNoBackup = errors.New("resource: no backup archive found")
	// ErrUnsafeArchivePath is returned when an archive entry would
	// extract outside the destination directory.
	ErrUnsafeArchivePath = errors.New("resource: unsafe archive entry path")
)

const metadataEntryName = "backup_metadata.json"

// pathMapping is one (absolute, relative) pair recorded in
// backup_metadata.json, matching the original's Vec<(PathBuf, PathBuf)>.
type pathMapping struct {
	Absolute string `json:"absolute"`
	Relative string `json:"relative"`
}

// Manager backs up, rolls back, and fetches update resources under a
// single working directory (spec §4.2's "the working directory" — every
// backup, download and extraction happens there).
type Manager struct {
	workDir    string
	httpClient *http.Client
}

// NewManager builds a Manager rooted at workDir, creating it if absent.
func NewManager(workDir string) (*Manager, error) {
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return nil, fmt.Errorf("resource: create working directory: %w", err)
	}
	return &Manager{workDir: workDir, httpClient: &http.Client{Timeout: 5 * time.Minute}}, nil
}

// Backup collects executablePath and configDir into a timestamped
// nodex_backup_<unix>.tar.gz under the working directory, with a
// backup_metadata.json manifest of absolute-to-relative path mappings
// recorded at its root.
func (m *Manager) Backup(executablePath, configDir string) (string, error) {
	mapping := []pathMapping{
		{Absolute: executablePath, Relative: stripLeadingSeparator(executablePath)},
		{Absolute: configDir, Relative: stripLeadingSeparator(configDir)},
	}

	destPath := filepath.Join(m.workDir, fmt.Sprintf("nodex_backup_%d.tar.gz", time.Now().UTC().Unix()))
	file, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("resource: create backup file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	tw := tar.NewWriter(gz)

	for _, entry := range mapping {
		if err := addPathToTar(tw, entry.Absolute, entry.Relative); err != nil {
			return "", fmt.Errorf("resource: add %s to backup: %w", entry.Absolute, err)
		}
	}

	metadataJSON, err := json.Marshal(mapping)
	if err != nil {
		return "", fmt.Errorf("resource: marshal backup metadata: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    metadataEntryName,
		Mode:    0644,
		Size:    int64(len(metadataJSON)),
		ModTime: time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("resource: write metadata header: %w", err)
	}
	if _, err := tw.Write(metadataJSON); err != nil {
		return "", fmt.Errorf("resource: write metadata: %w", err)
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("resource: finish tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("resource: finish gzip: %w", err)
	}
	return destPath, nil
}

// GetLatestBackup returns the .tar.gz entry in the working directory
// with the greatest modification time, or ErrNoBackup if none exists.
func (m *Manager) GetLatestBackup() (string, error) {
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		return "", fmt.Errorf("resource: read working directory: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(m.workDir, entry.Name()), modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", ErrNoBackup
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })
	return candidates[0].path, nil
}

// Rollback extracts backupFile to a scratch directory, reads its
// backup_metadata.json, removes whatever currently sits at each
// original path, and renames the extracted file into place.
func (m *Manager) Rollback(backupFile string) error {
	scratch, err := os.MkdirTemp(m.workDir, "restore-*")
	if err != nil {
		return fmt.Errorf("resource: create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := extractTarGz(backupFile, scratch); err != nil {
		return fmt.Errorf("resource: extract backup: %w", err)
	}

	metadataPath := filepath.Join(scratch, metadataEntryName)
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return fmt.Errorf("resource: read backup metadata: %w", err)
	}
	var mapping []pathMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return fmt.Errorf("resource: parse backup metadata: %w", err)
	}

	for _, entry := range mapping {
		extractedPath := filepath.Join(scratch, entry.Relative)
		if _, err := os.Stat(extractedPath); err != nil {
			continue
		}
		if _, err := os.Stat(entry.Absolute); err == nil {
			if err := os.RemoveAll(entry.Absolute); err != nil {
				return fmt.Errorf("resource: remove existing %s: %w", entry.Absolute, err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(entry.Absolute), 0755); err != nil {
			return fmt.Errorf("resource: create parent of %s: %w", entry.Absolute, err)
		}
		if err := os.Rename(extractedPath, entry.Absolute); err != nil {
			return fmt.Errorf("resource: move %s into place: %w", entry.Absolute, err)
		}
	}
	return nil
}

// DownloadUpdateResources fetches a zip archive from binaryURL and
// extracts it into outputDir, creating parent directories as needed.
func (m *Manager) DownloadUpdateResources(ctx context.Context, binaryURL, outputDir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, binaryURL, nil)
	if err != nil {
		return fmt.Errorf("resource: build download request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resource: download %s: %w", binaryURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resource: download %s: unexpected status %d", binaryURL, resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp(m.workDir, "update-*.zip")
	if err != nil {
		return fmt.Errorf("resource: create temp download file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return fmt.Errorf("resource: save downloaded archive: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("resource: create output directory: %w", err)
	}
	return extractZip(tmpFile, outputDir)
}

func addPathToTar(tw *tar.Writer, absolutePath, relativePath string) error {
	info, err := os.Stat(absolutePath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.Walk(absolutePath, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(absolutePath, path)
			if err != nil {
				return err
			}
			entryName := relativePath
			if rel != "." {
				entryName = filepath.Join(relativePath, rel)
			}
			return writeTarEntry(tw, path, entryName, fi)
		})
	}
	return writeTarEntry(tw, absolutePath, relativePath, info)
}

func writeTarEntry(tw *tar.Writer, path, entryName string, info os.FileInfo) error {
	if info.IsDir() {
		header := &tar.Header{Name: entryName + "/", Mode: int64(info.Mode().Perm()), Typeflag: tar.TypeDir, ModTime: info.ModTime()}
		return tw.WriteHeader(header)
	}
	header := &tar.Header{Name: entryName, Mode: int64(info.Mode().Perm()), Size: info.Size(), Typeflag: tar.TypeReg, ModTime: info.ModTime()}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(tw, file)
	return err
}

func extractTarGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, header.Name)
		if !isInsideDir(destDir, target) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchivePath, header.Name)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := writeFileFromReader(tr, target, os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
	}
}

func extractZip(file *os.File, destDir string) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(file, info.Size())
	if err != nil {
		return fmt.Errorf("resource: open zip: %w", err)
	}
	for _, f := range zr.File {
		target := filepath.Join(destDir, f.Name)
		if !isInsideDir(destDir, target) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchivePath, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode()); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("resource: open zip entry %s: %w", f.Name, err)
		}
		err = writeFileFromReader(rc, target, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFileFromReader(r io.Reader, target string, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}

// isInsideDir reports whether target resolves to a path inside dir,
// blocking the zip-slip / tar-slip path-traversal family of attacks.
func isInsideDir(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func stripLeadingSeparator(path string) string {
	return strings.TrimPrefix(path, string(filepath.Separator))
}
