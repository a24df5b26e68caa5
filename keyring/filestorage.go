package keyring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sagecrypto "github.com/sage-x-project/sage/crypto"
)

// fileSlotStorage is a JWK-backed sagecrypto.KeyStorage rooted at a
// directory, one file per slot. Grounded on the teacher's
// pkg/agent/crypto/storage/file.go fileKeyStorage (same JWK wrapping,
// 0600 file / 0700 directory permissions, key-id path-traversal guard).
type fileSlotStorage struct {
	directory string
	exporter  sagecrypto.KeyExporter
	importer  sagecrypto.KeyImporter
	mu        sync.RWMutex
}

type keyFileData struct {
	Type   sagecrypto.KeyType   `json:"type"`
	Format sagecrypto.KeyFormat `json:"format"`
	Data   string               `json:"data"`
	ID     string               `json:"id"`
}

func validateSlotName(id string) error {
	if strings.Contains(id, "/") || strings.Contains(id, "\\") || strings.Contains(id, "..") {
		return fmt.Errorf("keyring: invalid slot name: %s", id)
	}
	return nil
}

func (s *fileSlotStorage) Store(id string, keyPair sagecrypto.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateSlotName(id); err != nil {
		return err
	}

	jwkData, err := s.exporter.Export(keyPair, sagecrypto.KeyFormatJWK)
	if err != nil {
		return fmt.Errorf("failed to export key: %w", err)
	}

	fileData := keyFileData{
		Type:   keyPair.Type(),
		Format: sagecrypto.KeyFormatJWK,
		Data:   string(jwkData),
		ID:     keyPair.ID(),
	}

	jsonData, err := json.MarshalIndent(fileData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key data: %w", err)
	}

	filename := filepath.Join(s.directory, id+".key")
	if err := os.WriteFile(filename, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (s *fileSlotStorage) Load(id string) (sagecrypto.KeyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := validateSlotName(id); err != nil {
		return nil, err
	}

	filename := filepath.Join(s.directory, id+".key")
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, sagecrypto.ErrKeyNotFound
	}

	jsonData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var fileData keyFileData
	if err := json.Unmarshal(jsonData, &fileData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key data: %w", err)
	}

	return s.importer.Import([]byte(fileData.Data), fileData.Format)
}

func (s *fileSlotStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateSlotName(id); err != nil {
		return err
	}

	filename := filepath.Join(s.directory, id+".key")
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return sagecrypto.ErrKeyNotFound
	}
	return os.Remove(filename)
}

func (s *fileSlotStorage) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".key") {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".key"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fileSlotStorage) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := validateSlotName(id); err != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.directory, id+".key"))
	return err == nil
}
