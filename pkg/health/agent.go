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

package health

import (
	"fmt"
	"net"
	"time"
)

// CheckAgentSocket checks that the supervised edge agent is accepting
// connections on its unix socket, the controller's analogue of the
// original's blockchain-RPC liveness probe.
func CheckAgentSocket(socketPath string) *AgentHealth {
	health := &AgentHealth{
		SocketPath: socketPath,
		Connected:  false,
		Status:     StatusUnhealthy,
	}

	if socketPath == "" {
		health.Error = "agent socket path not configured"
		return health
	}

	start := time.Now()

	conn, err := net.DialTimeout("unix", socketPath, 10*time.Second)
	if err != nil {
		health.Error = fmt.Sprintf("dial failed: %v", err)
		return health
	}
	defer conn.Close()

	latency := time.Since(start)
	health.Latency = latency.String()
	health.Connected = true

	switch {
	case latency < 100*time.Millisecond:
		health.Status = StatusHealthy
	case latency < time.Second:
		health.Status = StatusDegraded
	default:
		health.Status = StatusUnhealthy
		health.Error = fmt.Sprintf("high latency: %v", latency)
	}

	return health
}
