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
	"fmt"
	"time"

	"github.com/sage-x-project/sage/controller/runtime"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/internal/metrics"
)

// runDefault is the steady state: exactly one edge agent process should
// be alive. If one is already tracked, this is a no-op; otherwise it
// launches one and records it, grounded on
// original_source/controller/src/state/default/mod.rs's execute().
func (h *Handler) runDefault(ctx context.Context, state *runtime.RuntimeState) error {
	if running := state.FilterProcessInfos(runtime.FeatAgent); len(running) > 0 {
		h.log.Debug("controller: agent already running, nothing to do",
			logger.Int("pid", running[0].ProcessID))
		return nil
	}

	start := time.Now()
	listener, info, err := h.launcher.Launch(ctx, h.cfg.SocketPath, h.cfg.Version)
	if err != nil {
		return fmt.Errorf("controller: launch agent: %w", err)
	}
	// The parent's own copy of the listening fd is only needed to pass
	// it across the fork; the child now owns the accept loop.
	listener.Close()
	metrics.HandoffDuration.Observe(time.Since(start).Seconds())

	state.AddProcessInfo(*info)
	h.saveOrLog(state)
	h.log.Info("controller: launched agent",
		logger.Int("pid", info.ProcessID),
		logger.String("version", info.Version),
		logger.Duration("handoff", time.Since(start)),
		logger.Time("launched_at", start))
	return nil
}
