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
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
	"github.com/sage-x-project/sage/resource"
)

// runRollback restores the last backup and launches a replacement agent
// if Handle's dead-process reap already cleared out every tracked
// agent, then returns to StateDefault. Grounded on
// original_source/controller/src/state/rollback/mod.rs's execute().
func (h *Handler) runRollback(ctx context.Context, state *runtime.RuntimeState) error {
	metrics.RollbackCount.Inc()

	backup, err := h.resource.GetLatestBackup()
	if err != nil {
		if errors.Is(err, resource.ErrNoBackup) {
			return fmt.Errorf("controller: rollback requested but %w", err)
		}
		return fmt.Errorf("controller: find latest backup: %w", err)
	}

	if err := h.resource.Rollback(backup); err != nil {
		return fmt.Errorf("controller: restore backup %s: %w", backup, err)
	}
	h.log.Info("controller: restored backup", logger.String("backup", backup))

	if len(state.FilterProcessInfos(runtime.FeatAgent)) == 0 {
		start := time.Now()
		listener, info, err := h.launcher.Launch(ctx, h.cfg.SocketPath, h.cfg.Version)
		if err != nil {
			return fmt.Errorf("controller: relaunch agent after rollback: %w", err)
		}
		listener.Close()
		metrics.HandoffDuration.Observe(time.Since(start).Seconds())
		state.AddProcessInfo(*info)
		h.log.Info("controller: relaunched agent after rollback",
			logger.Int("pid", info.ProcessID),
			logger.Duration("handoff", time.Since(start)))
	}

	state.State = runtime.StateDefault
	h.saveOrLog(state)
	return nil
}
