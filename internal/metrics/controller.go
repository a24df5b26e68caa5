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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdateAttempts counts every update the controller attempted to apply,
	// labeled by outcome (applied, rolled_back).
	UpdateAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "update_attempts_total",
			Help:      "Total number of update attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RollbackCount counts every time the controller entered StateRollback.
	RollbackCount = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "rollbacks_total",
			Help:      "Total number of rollbacks performed",
		},
	)

	// HandoffDuration tracks how long launching a replacement agent takes,
	// from handoff.Launcher.Launch() returning to the new process_info
	// being recorded.
	HandoffDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "handoff_duration_seconds",
			Help:      "Time to launch and register a replacement agent process",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
