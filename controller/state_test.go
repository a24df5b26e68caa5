package controller

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/sage/controller/runtime"
	"github.com/sage-x-project/sage/controller/updating"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/resource"
)

// fakeLauncher records Launch calls and returns a listener bound to a
// throwaway socket plus a ProcessInfo for this test process's own pid,
// so runDefault/runRollback/runUpdating can be exercised without
// execing a real agent binary.
type fakeLauncher struct {
	calls int
}

func (f *fakeLauncher) Launch(ctx context.Context, socketPath, version string) (*net.UnixListener, *runtime.ProcessInfo, error) {
	f.calls++
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, nil, err
	}
	return l.(*net.UnixListener), &runtime.ProcessInfo{
		ProcessID:  os.Getpid(),
		ExecutedAt: time.Now().UTC(),
		Version:    version,
		FeatType:   runtime.FeatAgent,
	}, nil
}

func newTestHandler(t *testing.T) (*Handler, *fakeLauncher) {
	t.Helper()
	dir := t.TempDir()

	store, err := runtime.NewStore(dir)
	require.NoError(t, err)
	resourceMgr, err := resource.NewManager(dir)
	require.NoError(t, err)
	launcher := &fakeLauncher{}

	h := &Handler{
		store:    store,
		resource: resourceMgr,
		launcher: launcher,
		cfg: Config{
			StateDir:       dir,
			SocketPath:     filepath.Join(dir, "agent.sock"),
			ExecutablePath: filepath.Join(dir, "agent-binary"),
			ConfigDir:      filepath.Join(dir, "config"),
			Version:        "1.2.3",
		},
		log: logger.NewDefaultLogger(),
	}
	return h, launcher
}

func TestHandleDefaultLaunchesAgentWhenNoneRunning(t *testing.T) {
	h, launcher := newTestHandler(t)

	require.NoError(t, h.Handle(context.Background(), nil))
	assert.Equal(t, 1, launcher.calls)

	require.NoError(t, h.store.Lock())
	defer h.store.Unlock()
	state, err := h.store.Load()
	require.NoError(t, err)
	assert.Len(t, state.FilterProcessInfos(runtime.FeatAgent), 1)
}

func TestHandleDefaultSkipsLaunchWhenAgentAlreadyTracked(t *testing.T) {
	h, launcher := newTestHandler(t)

	require.NoError(t, h.store.Lock())
	state, err := h.store.Load()
	require.NoError(t, err)
	state.AddProcessInfo(runtime.ProcessInfo{ProcessID: os.Getpid(), FeatType: runtime.FeatAgent, Version: "1.0.0"})
	require.NoError(t, h.store.Save(state))
	require.NoError(t, h.store.Unlock())

	require.NoError(t, h.Handle(context.Background(), nil))
	assert.Equal(t, 0, launcher.calls)
}

func TestHandleRollbackRestoresBackupAndRelaunches(t *testing.T) {
	h, launcher := newTestHandler(t)

	require.NoError(t, os.MkdirAll(h.cfg.ConfigDir, 0755))
	require.NoError(t, os.WriteFile(h.cfg.ExecutablePath, []byte("good-binary"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(h.cfg.ConfigDir, "config.json"), []byte(`{"k":"v"}`), 0644))

	_, err := h.resource.Backup(h.cfg.ExecutablePath, h.cfg.ConfigDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(h.cfg.ExecutablePath, []byte("corrupted"), 0644))

	require.NoError(t, h.store.Lock())
	state, err := h.store.Load()
	require.NoError(t, err)
	state.State = runtime.StateRollback
	state.AddProcessInfo(runtime.ProcessInfo{ProcessID: 999999, FeatType: runtime.FeatAgent, Version: "1.0.0"})
	require.NoError(t, h.store.Save(state))
	require.NoError(t, h.store.Unlock())

	require.NoError(t, h.Handle(context.Background(), nil))
	assert.Equal(t, 1, launcher.calls)

	restored, err := os.ReadFile(h.cfg.ExecutablePath)
	require.NoError(t, err)
	assert.Equal(t, "good-binary", string(restored))

	require.NoError(t, h.store.Lock())
	defer h.store.Unlock()
	final, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, runtime.StateDefault, final.State)
}

func TestHandleRollbackErrorsWithoutBackup(t *testing.T) {
	h, _ := newTestHandler(t)

	require.NoError(t, h.store.Lock())
	state, err := h.store.Load()
	require.NoError(t, err)
	state.State = runtime.StateRollback
	require.NoError(t, h.store.Save(state))
	require.NoError(t, h.store.Unlock())

	err = h.Handle(context.Background(), nil)
	assert.ErrorIs(t, err, resource.ErrNoBackup)
}

func TestHandleUpdatingWithoutRequestErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	require.NoError(t, h.store.Lock())
	state, err := h.store.Load()
	require.NoError(t, err)
	state.State = runtime.StateUpdating
	require.NoError(t, h.store.Save(state))
	require.NoError(t, h.store.Unlock())

	err = h.Handle(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoUpdateRequest)
}

func TestTriggerUpdateSetsStateBeforeDispatching(t *testing.T) {
	h, _ := newTestHandler(t)

	update := &UpdateRequest{
		Version:    "2.0.0",
		BundlePath: filepath.Join(t.TempDir(), "missing-bundle.json"),
		BlobPath:   filepath.Join(t.TempDir(), "missing-blob"),
		Identity:   "did:sidetree:agent",
		Issuer:     "https://sage.example.com",
	}

	err := h.TriggerUpdate(context.Background(), update)
	assert.Error(t, err)

	require.NoError(t, h.store.Lock())
	defer h.store.Unlock()
	final, loadErr := h.store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, runtime.StateRollback, final.State)
}

func TestHandleUpdatingFailureRoutesToRollback(t *testing.T) {
	h, _ := newTestHandler(t)

	require.NoError(t, h.store.Lock())
	state, err := h.store.Load()
	require.NoError(t, err)
	state.State = runtime.StateUpdating
	require.NoError(t, h.store.Save(state))
	require.NoError(t, h.store.Unlock())

	update := &UpdateRequest{
		Version:    "2.0.0",
		BundlePath: filepath.Join(t.TempDir(), "missing-bundle.json"),
		BlobPath:   filepath.Join(t.TempDir(), "missing-blob"),
		Identity:   "did:sidetree:agent",
		Issuer:     "https://sage.example.com",
		Plan:       &updating.Plan{},
	}

	err = h.Handle(context.Background(), update)
	assert.Error(t, err)

	require.NoError(t, h.store.Lock())
	defer h.store.Unlock()
	final, loadErr := h.store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, runtime.StateRollback, final.State)
}
