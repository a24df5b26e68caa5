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

// Package runtime persists the controller's state-machine position and
// the process table of everything it has launched, following the same
// lock-file-plus-atomic-rename shape as terassyi-tomei's
// internal/state/store.go, generalized from that package's generic
// Store[T State] to this controller's fixed RuntimeState shape.
package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

// State is the controller's current position in its state machine.
type State string

const (
	StateDefault  State = "default"
	StateUpdating State = "updating"
	StateRollback State = "rollback"
)

// FeatType distinguishes the two kinds of process the controller tracks.
type FeatType string

const (
	FeatAgent      FeatType = "agent"
	FeatController FeatType = "controller"
)

// ProcessInfo records one launched process, enough to find it again
// after a controller restart.
type ProcessInfo struct {
	ProcessID  int       `json:"process_id"`
	ExecutedAt time.Time `json:"executed_at"`
	Version    string    `json:"version"`
	FeatType   FeatType  `json:"feat_type"`
}

// RuntimeState is the controller's full persisted position.
type RuntimeState struct {
	State        State         `json:"state"`
	ProcessInfos []ProcessInfo `json:"process_infos"`
}

// defaultRuntimeState is the state a fresh controller starts from.
func defaultRuntimeState() *RuntimeState {
	return &RuntimeState{State: StateDefault, ProcessInfos: []ProcessInfo{}}
}

// AddProcessInfo appends info to the tracked process table.
func (r *RuntimeState) AddProcessInfo(info ProcessInfo) {
	r.ProcessInfos = append(r.ProcessInfos, info)
}

// RemoveProcessInfo drops the entry for pid, if present.
func (r *RuntimeState) RemoveProcessInfo(pid int) {
	kept := r.ProcessInfos[:0]
	for _, info := range r.ProcessInfos {
		if info.ProcessID != pid {
			kept = append(kept, info)
		}
	}
	r.ProcessInfos = kept
}

// FilterProcessInfos returns every tracked process of the given kind.
func (r *RuntimeState) FilterProcessInfos(feat FeatType) []ProcessInfo {
	var out []ProcessInfo
	for _, info := range r.ProcessInfos {
		if info.FeatType == feat {
			out = append(out, info)
		}
	}
	return out
}

// ErrLocked is returned by Lock when another controller process already
// holds the exclusive lock.
var ErrLocked = errors.New("runtime: another controller process is running")

// Store persists RuntimeState to dir/runtime.json, guarded by an
// exclusive flock at dir/runtime.lock, and keeps a dir/runtime.json.bak
// copy of the last-known-good state before every transition so a crash
// mid-write never loses the previous position.
type Store struct {
	dir       string
	statePath string
	backupPath string
	lockPath  string
	fileLock  *flock.Flock
	locked    bool
}

// NewStore opens (creating if absent) a runtime state directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("runtime: create state directory: %w", err)
	}
	return &Store{
		dir:        dir,
		statePath:  filepath.Join(dir, "runtime.json"),
		backupPath: filepath.Join(dir, "runtime.json.bak"),
		lockPath:   filepath.Join(dir, "runtime.lock"),
		fileLock:   flock.New(filepath.Join(dir, "runtime.lock")),
	}, nil
}

// Lock acquires the exclusive runtime lock, recording this process's PID
// so a concurrent controller invocation can report who is holding it.
func (s *Store) Lock() error {
	if s.locked {
		return nil
	}
	ok, err := s.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("runtime: acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	if err := os.WriteFile(s.lockPath, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		_ = s.fileLock.Unlock()
		return fmt.Errorf("runtime: write lock pid: %w", err)
	}
	s.locked = true
	return nil
}

// Unlock releases the exclusive runtime lock.
func (s *Store) Unlock() error {
	if !s.locked {
		return nil
	}
	if err := s.fileLock.Unlock(); err != nil {
		return fmt.Errorf("runtime: release lock: %w", err)
	}
	s.locked = false
	return nil
}

// Load reads the runtime state, returning a fresh StateDefault state if
// no file has been written yet. Must be called after Lock.
func (s *Store) Load() (*RuntimeState, error) {
	if !s.locked {
		return nil, errors.New("runtime: must hold lock before loading state")
	}
	return s.read(s.statePath)
}

func (s *Store) read(path string) (*RuntimeState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultRuntimeState(), nil
		}
		return nil, fmt.Errorf("runtime: read state file: %w", err)
	}
	var state RuntimeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("runtime: parse state file: %w", err)
	}
	return &state, nil
}

// Save backs up the current on-disk state to runtime.json.bak (if one
// exists) and then atomically writes state to runtime.json via a
// temp-file rename. Must be called after Lock.
func (s *Store) Save(state *RuntimeState) error {
	if !s.locked {
		return errors.New("runtime: must hold lock before saving state")
	}

	if _, err := os.Stat(s.statePath); err == nil {
		if err := copyFile(s.statePath, s.backupPath); err != nil {
			return fmt.Errorf("runtime: backup previous state: %w", err)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("runtime: marshal state: %w", err)
	}

	tmpPath := s.statePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("runtime: write temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.statePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("runtime: rename state file: %w", err)
	}
	return nil
}

// LoadBackup reads the last-known-good state saved before the most
// recent transition. The controller's state handlers do not call it;
// they always work from the live state file.
func (s *Store) LoadBackup() (*RuntimeState, error) {
	return s.read(s.backupPath)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}
