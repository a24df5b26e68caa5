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

// Package updating runs the declared post-extraction tasks an update
// bundle carries, grounded on
// original_source/controller/src/state/updating/action/mod.rs's
// Task::{Move,UpdateJson} enum and move_action.rs's file-move semantics.
// Update manifests are authored as YAML, parsed with gopkg.in/yaml.v3
// the same way config/config.go parses this repo's own configuration
// file, rather than the original's serde JSON/YAML-agnostic derive.
package updating

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Kind names a task's action, matching the original's #[serde(tag =
// "action")] discriminant values.
type Kind string

const (
	KindMove       Kind = "Move"
	KindUpdateJSON Kind = "UpdateJson"
)

// Task is one step of an UpdatePlan. Only the fields relevant to Kind
// are populated; this mirrors the original's single tagged enum rather
// than splitting into Go interface types, since tasks are always
// deserialized from the same update-manifest entry.
type Task struct {
	Action      Kind   `yaml:"action" json:"action"`
	Description string `yaml:"description" json:"description"`

	// Move
	Src  string `yaml:"src,omitempty" json:"src,omitempty"`
	Dest string `yaml:"dest,omitempty" json:"dest,omitempty"`

	// UpdateJson
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// ErrUnknownTaskKind is returned by Run when a task names an action
// this controller does not recognize.
var ErrUnknownTaskKind = errors.New("updating: unknown task action")

// Plan is the ordered list of tasks an update bundle declares, matching
// the original's UpdateAction{version, description, tasks}.
type Plan struct {
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
	Tasks       []Task `yaml:"tasks" json:"tasks"`
}

// LoadPlan reads and parses a YAML update manifest from path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("updating: read plan %q: %w", path, err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("updating: parse plan %q: %w", path, err)
	}
	return &plan, nil
}

// Run executes every task in order, stopping at the first failure
// (spec §4.2: "strictly ordered" within a state transition).
func (p *Plan) Run() error {
	for _, task := range p.Tasks {
		if err := runTask(task); err != nil {
			return fmt.Errorf("updating: task %q: %w", task.Description, err)
		}
	}
	return nil
}

func runTask(task Task) error {
	switch task.Action {
	case KindMove:
		return moveResource(task.Src, task.Dest)
	case KindUpdateJSON:
		return updateJSONField(task.File, task.Field, task.Value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTaskKind, task.Action)
	}
}

// moveResource moves the file at src into the directory dest, creating
// dest if it does not exist, matching move_action.rs's execute.
func moveResource(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return fmt.Errorf("updating: source %q not found or is not a file", src)
	}

	destInfo, err := os.Stat(dest)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dest, 0755); err != nil {
			return fmt.Errorf("updating: create destination directory %q: %w", dest, err)
		}
	case err != nil:
		return fmt.Errorf("updating: stat destination %q: %w", dest, err)
	case !destInfo.IsDir():
		return fmt.Errorf("updating: destination %q is not a directory", dest)
	}

	destPath := filepath.Join(dest, filepath.Base(src))
	if err := os.Rename(src, destPath); err != nil {
		return fmt.Errorf("updating: move %q to %q: %w", src, destPath, err)
	}
	return nil
}

// updateJSONField rewrites a single top-level string field of a JSON
// file in place, matching the original's Task::UpdateJson{file, field,
// value}.
func updateJSONField(path, field, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("updating: read %q: %w", path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("updating: parse %q: %w", path, err)
	}

	encodedValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("updating: encode value for %q: %w", field, err)
	}
	doc[field] = encodedValue

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("updating: marshal %q: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("updating: write %q: %w", path, err)
	}
	return nil
}
