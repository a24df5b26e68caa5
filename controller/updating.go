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

package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sage-x-project/sage/controller/runtime"
	"github.com/sage-x-project/sage/handoff"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
)

// ErrNoUpdateRequest is returned when the runtime state is StateUpdating
// but the caller did not supply the update plan describing what to do,
// which can only happen across a controller restart mid-update (the
// plan itself is never persisted, only the intent to apply one).
var ErrNoUpdateRequest = errors.New("controller: runtime state is updating but no update request was supplied")

// runUpdating verifies the update artifact, backs up the current
// executable and config, downloads and applies the new resources, runs
// the update's declared tasks, terminates the running agent, and
// launches its replacement. Any failure here transitions the runtime
// state to StateRollback instead of leaving it stuck mid-update,
// mirroring handler.rs's "update failure always routes through
// rollback" behavior.
func (h *Handler) runUpdating(ctx context.Context, state *runtime.RuntimeState, update *UpdateRequest) error {
	if update == nil {
		return ErrNoUpdateRequest
	}

	if err := h.applyUpdate(ctx, state, update); err != nil {
		metrics.UpdateAttempts.WithLabelValues("rolled_back").Inc()
		h.log.Error("controller: update failed, routing to rollback", logger.Error(err))
		state.State = runtime.StateRollback
		h.saveOrLog(state)
		return fmt.Errorf("controller: apply update %s: %w", update.Version, err)
	}

	metrics.UpdateAttempts.WithLabelValues("applied").Inc()
	state.State = runtime.StateDefault
	h.saveOrLog(state)
	h.log.Info("controller: update applied", logger.String("version", update.Version))
	return nil
}

func (h *Handler) applyUpdate(ctx context.Context, state *runtime.RuntimeState, update *UpdateRequest) error {
	if err := h.verifier.Verify(update.BundlePath, update.BlobPath, update.Identity, update.Issuer); err != nil {
		return fmt.Errorf("verify update artifact: %w", err)
	}

	if _, err := h.resource.Backup(h.cfg.ExecutablePath, h.cfg.ConfigDir); err != nil {
		return fmt.Errorf("back up current installation: %w", err)
	}

	if err := h.resource.DownloadUpdateResources(ctx, update.BinaryURL, h.cfg.ConfigDir); err != nil {
		return fmt.Errorf("download update resources: %w", err)
	}

	if update.Plan != nil {
		if err := update.Plan.Run(); err != nil {
			return fmt.Errorf("run update tasks: %w", err)
		}
	}

	for _, info := range state.FilterProcessInfos(runtime.FeatAgent) {
		if err := handoff.Terminate(info); err != nil {
			h.log.Warn("controller: failed to terminate outgoing agent", logger.Int("pid", info.ProcessID), logger.Error(err))
		}
		state.RemoveProcessInfo(info.ProcessID)
	}

	start := time.Now()
	listener, info, err := h.launcher.Launch(ctx, h.cfg.SocketPath, update.Version)
	if err != nil {
		return fmt.Errorf("launch updated agent: %w", err)
	}
	listener.Close()
	metrics.HandoffDuration.Observe(time.Since(start).Seconds())
	state.AddProcessInfo(*info)
	return nil
}
