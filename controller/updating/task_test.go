package updating

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRunMovesFileIntoDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.bin")
	dest := filepath.Join(dir, "installed")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	plan := &Plan{Tasks: []Task{{Action: KindMove, Description: "install payload", Src: src, Dest: dest}}}
	require.NoError(t, plan.Run())

	data, err := os.ReadFile(filepath.Join(dest, "payload.bin"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.NoFileExists(t, src)
}

func TestPlanRunUpdatesJSONField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0.0","name":"agent"}`), 0644))

	plan := &Plan{Tasks: []Task{{Action: KindUpdateJSON, Description: "bump version", File: path, Field: "version", Value: "2.0.0"}}}
	require.NoError(t, plan.Run())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.0.0"`)
	assert.Contains(t, string(data), `"name"`)
}

func TestPlanRunStopsAtFirstFailure(t *testing.T) {
	plan := &Plan{Tasks: []Task{
		{Action: KindMove, Description: "missing source", Src: "/nonexistent/path", Dest: "/tmp"},
		{Action: KindUpdateJSON, Description: "never reached", File: "/tmp/never", Field: "x", Value: "y"},
	}}
	err := plan.Run()
	assert.Error(t, err)
}

func TestRunTaskRejectsUnknownKind(t *testing.T) {
	err := runTask(Task{Action: "Delete", Description: "unsupported"})
	assert.ErrorIs(t, err, ErrUnknownTaskKind)
}

func TestLoadPlanParsesYAMLManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.yaml")
	manifest := `
version: 2.1.0
description: patch release
tasks:
  - action: Move
    description: install new binary
    src: /tmp/staging/agent
    dest: /usr/local/bin
  - action: UpdateJson
    description: record installed version
    file: /etc/sage/agent.json
    field: version
    value: 2.1.0
`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", plan.Version)
	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, KindMove, plan.Tasks[0].Action)
	assert.Equal(t, KindUpdateJSON, plan.Tasks[1].Action)
}
