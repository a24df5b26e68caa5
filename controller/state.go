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

// Package controller drives the edge controller's state machine: it
// launches and supervises the edge agent process, applies updates, and
// rolls back a broken update, grounded on
// original_source/controller/src/state/handler.rs's StateHandler and
// the sibling default/updating/rollback state modules.
package controller

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/sage-x-project/sage/controller/runtime"
	"github.com/sage-x-project/sage/controller/updating"
	"github.com/sage-x-project/sage/handoff"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/resource"
	"github.com/sage-x-project/sage/verify"
)

// UpdateRequest is an update plan handed to Handle while the runtime
// state is StateUpdating, matching the original's UpdateAction but
// carrying the artifact locations the agent/resource managers need
// rather than assuming a fixed on-disk layout.
type UpdateRequest struct {
	Version     string
	Description string
	BinaryURL   string
	BundlePath  string
	BlobPath    string
	Identity    string
	Issuer      string
	Plan        *updating.Plan
}

// Config wires a Handler to this host's filesystem layout.
type Config struct {
	StateDir       string
	SocketPath     string
	ExecutablePath string
	ConfigDir      string
	BinaryPath     string
	Version        string
}

// agentLauncher starts a replacement edge agent, implemented by
// *handoff.Launcher in production and faked in tests so state-machine
// transitions can be exercised without execing a real binary.
type agentLauncher interface {
	Launch(ctx context.Context, socketPath, version string) (*net.UnixListener, *runtime.ProcessInfo, error)
}

// Handler dispatches runtime-state transitions, the Go counterpart of
// StateHandler::handle(): it loads the persisted RuntimeState, runs the
// execute() for whichever state is current, and persists the result.
type Handler struct {
	store    *runtime.Store
	resource *resource.Manager
	verifier *verify.ArtifactVerifier
	launcher agentLauncher
	cfg      Config
	log      logger.Logger
}

// NewHandler builds a Handler rooted at cfg.StateDir, creating its
// runtime-state and resource-working directories if absent.
func NewHandler(cfg Config, log logger.Logger) (*Handler, error) {
	store, err := runtime.NewStore(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("controller: open runtime store: %w", err)
	}
	resourceMgr, err := resource.NewManager(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("controller: open resource manager: %w", err)
	}
	return &Handler{
		store:    store,
		resource: resourceMgr,
		verifier: verify.NewArtifactVerifier(),
		launcher: &handoff.Launcher{BinaryPath: cfg.BinaryPath},
		cfg:      cfg,
		log:      log,
	}, nil
}

// Handle acquires the runtime lock, loads the current state, and runs
// whichever of runDefault/runUpdating/runRollback applies. update is
// only consulted when the loaded state is StateUpdating; it may be nil
// otherwise.
func (h *Handler) Handle(ctx context.Context, update *UpdateRequest) error {
	if err := h.store.Lock(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	defer h.store.Unlock()

	state, err := h.store.Load()
	if err != nil {
		return fmt.Errorf("controller: load runtime state: %w", err)
	}
	reapDeadProcesses(state)

	switch state.State {
	case runtime.StateUpdating:
		return h.runUpdating(ctx, state, update)
	case runtime.StateRollback:
		return h.runRollback(ctx, state)
	default:
		return h.runDefault(ctx, state)
	}
}

// TriggerUpdate transitions the runtime state to StateUpdating and then
// immediately dispatches Handle with the given request, the entrypoint
// used by edge-controller's update command rather than the periodic
// reconciliation loop, which only ever re-enters whatever state the
// last transition left behind.
func (h *Handler) TriggerUpdate(ctx context.Context, update *UpdateRequest) error {
	if err := h.store.Lock(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	state, err := h.store.Load()
	if err != nil {
		h.store.Unlock()
		return fmt.Errorf("controller: load runtime state: %w", err)
	}
	state.State = runtime.StateUpdating
	if err := h.store.Save(state); err != nil {
		h.store.Unlock()
		return fmt.Errorf("controller: persist updating state: %w", err)
	}
	if err := h.store.Unlock(); err != nil {
		return err
	}

	return h.Handle(ctx, update)
}

// saveOrLog persists state and logs (without returning) a failure to do
// so, mirroring the original's "state update failures are logged, never
// fatal" handling in handler.rs: a process table write failing must not
// mask the transition's own result.
func (h *Handler) saveOrLog(state *runtime.RuntimeState) {
	if err := h.store.Save(state); err != nil {
		h.log.Error("controller: failed to persist runtime state", logger.Error(err))
	}
}

// reapDeadProcesses drops every tracked process entry whose PID no
// longer exists, matching controller/src/runtime.rs's boot-time process
// table cleanup: a controller restart after its agent crashed should
// not keep treating that agent as running.
func reapDeadProcesses(state *runtime.RuntimeState) {
	for _, info := range append([]runtime.ProcessInfo(nil), state.ProcessInfos...) {
		if !processAlive(info.ProcessID) {
			state.RemoveProcessInfo(info.ProcessID)
		}
	}
}

// processAlive reports whether pid names a process we can still signal,
// using signal 0 the same way Unix liveness checks conventionally do.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
