package runtime

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadDefaultsWhenAbsent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, StateDefault, state.State)
	assert.Empty(t, state.ProcessInfos)
}

func TestStoreSaveAndLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	state, err := store.Load()
	require.NoError(t, err)
	state.State = StateUpdating
	state.AddProcessInfo(ProcessInfo{ProcessID: 123, ExecutedAt: time.Now().UTC(), Version: "v1.0.0", FeatType: FeatAgent})
	require.NoError(t, store.Save(state))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, StateUpdating, got.State)
	require.Len(t, got.ProcessInfos, 1)
	assert.Equal(t, 123, got.ProcessInfos[0].ProcessID)
}

func TestStoreSaveKeepsBackupOfPreviousState(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Lock())
	defer store.Unlock()

	first, err := store.Load()
	require.NoError(t, err)
	first.State = StateDefault
	require.NoError(t, store.Save(first))

	second, err := store.Load()
	require.NoError(t, err)
	second.State = StateUpdating
	require.NoError(t, store.Save(second))

	backup, err := store.LoadBackup()
	require.NoError(t, err)
	assert.Equal(t, StateDefault, backup.State)

	assert.FileExists(t, filepath.Join(dir, "runtime.json.bak"))
}

func TestStoreLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()
	a, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, a.Lock())
	defer a.Unlock()

	b, err := NewStore(dir)
	require.NoError(t, err)
	err = b.Lock()
	assert.ErrorIs(t, err, ErrLocked)
}

func TestFilterProcessInfosByFeatType(t *testing.T) {
	state := &RuntimeState{ProcessInfos: []ProcessInfo{
		{ProcessID: 1, FeatType: FeatAgent},
		{ProcessID: 2, FeatType: FeatController},
		{ProcessID: 3, FeatType: FeatAgent},
	}}

	agents := state.FilterProcessInfos(FeatAgent)
	require.Len(t, agents, 2)

	state.RemoveProcessInfo(1)
	assert.Len(t, state.FilterProcessInfos(FeatAgent), 1)
}
