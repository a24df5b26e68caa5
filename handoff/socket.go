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

// Package handoff launches the edge agent as a detached child process
// and hands it the listening socket the controller already bound, so a
// controller-triggered update never drops a connection waiting on that
// socket. This generalizes original_source's controller/src/managers/
// agent.rs, which does the same handoff with a raw fork()+execvp() and an
// inherited file descriptor; Go has no usable fork() once the runtime's
// goroutine scheduler is live, so the handoff is expressed with
// os/exec's ExtraFiles (the standard Go equivalent of systemd-style
// socket activation) instead.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sage-x-project/sage/controller/runtime"
)

// listenFDEnv names the environment variable the child reads to find
// its inherited listening socket's file descriptor number.
const listenFDEnv = "SAGE_LISTENER_FD"

// systemdListenFDsEnv/systemdListenPIDEnv/systemdFirstFD mirror sd_listen_fds(3)
// for the case an init system starts the agent directly with a
// pre-bound socket (LISTEN_FDS=1, LISTEN_PID=<our pid>, fd 3).
const (
	systemdListenFDsEnv = "LISTEN_FDS"
	systemdListenPIDEnv = "LISTEN_PID"
	systemdFirstFD       = 3
)

// extraFileFD is the fd number a process sees its first os/exec
// ExtraFiles entry as (0=stdin, 1=stdout, 2=stderr, 3=first extra file).
const extraFileFD = 3

var (
	// ErrNoInheritedListener is returned by ListenerFromEnvironment when
	// the process was not launched with a handed-off socket.
	ErrNoInheritedListener = errors.New("handoff: no inherited listener fd")
)

// ResolveListener picks the agent's listening socket using the same
// three-path precedence original_source/controller/src/managers/agent.rs
// uses to decide how it was started: an init system handed it a
// pre-bound fd (systemd socket activation), a controller parent handed
// it a fd across a handoff (SAGE_LISTENER_FD), or neither and it must
// bind socketPath itself, removing any stale socket file first.
func ResolveListener(socketPath string) (net.Listener, error) {
	if listener, ok, err := listenerFromSystemd(); ok || err != nil {
		return listener, err
	}
	if listener, err := ListenerFromEnvironment(); err == nil {
		return listener, nil
	} else if !errors.Is(err, ErrNoInheritedListener) {
		return nil, err
	}
	return BindNew(socketPath)
}

func listenerFromSystemd() (net.Listener, bool, error) {
	nfds := os.Getenv(systemdListenFDsEnv)
	pidStr := os.Getenv(systemdListenPIDEnv)
	if nfds == "" || pidStr == "" {
		return nil, false, nil
	}
	n, err := strconv.Atoi(nfds)
	if err != nil || n <= 0 {
		return nil, false, fmt.Errorf("handoff: invalid %s", systemdListenFDsEnv)
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		return nil, false, fmt.Errorf("handoff: %s does not match this process", systemdListenPIDEnv)
	}
	file := os.NewFile(uintptr(systemdFirstFD), "sage-agent-socket")
	listener, err := net.FileListener(file)
	if err != nil {
		return nil, false, fmt.Errorf("handoff: wrap systemd fd: %w", err)
	}
	return listener, true, nil
}

// BindNew creates a fresh Unix socket at path, removing any stale socket
// file left behind by a crashed previous agent.
func BindNew(path string) (*net.UnixListener, error) {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("handoff: remove stale socket: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("handoff: create socket directory: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("handoff: bind socket: %w", err)
	}
	return listener.(*net.UnixListener), nil
}

// ListenerFromEnvironment reconstructs the net.Listener handed off by a
// parent process via SAGE_LISTENER_FD, for use by the agent process
// launched through Launcher.Launch.
func ListenerFromEnvironment() (net.Listener, error) {
	fdStr := os.Getenv(listenFDEnv)
	if fdStr == "" {
		return nil, ErrNoInheritedListener
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return nil, fmt.Errorf("handoff: parse %s: %w", listenFDEnv, err)
	}
	file := os.NewFile(uintptr(fd), "sage-agent-socket")
	if file == nil {
		return nil, fmt.Errorf("handoff: invalid inherited fd %d", fd)
	}
	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("handoff: wrap inherited fd: %w", err)
	}
	return listener, nil
}

// Launcher starts the edge agent binary, handing it a bound Unix
// listener across the fork, and records/terminates it in terms of the
// runtime process table.
type Launcher struct {
	// BinaryPath is the edge-agent executable to launch. Empty uses the
	// currently running executable (os.Executable), matching the
	// original's "relaunch myself as the agent" convention.
	BinaryPath string
}

// Launch binds a new Unix listener at socketPath (removing any stale
// one), starts BinaryPath as a detached child in its own session with
// that listener as its first extra file descriptor, and returns both
// the listener (owned by the parent, who must Close it once the child
// has taken over) and a runtime.ProcessInfo describing the child.
func (l *Launcher) Launch(ctx context.Context, socketPath, version string) (*net.UnixListener, *runtime.ProcessInfo, error) {
	listener, err := BindNew(socketPath)
	if err != nil {
		return nil, nil, err
	}

	listenerFile, err := listener.File()
	if err != nil {
		listener.Close()
		return nil, nil, fmt.Errorf("handoff: dup listener fd: %w", err)
	}
	defer listenerFile.Close()

	binary, err := l.resolveBinary()
	if err != nil {
		listener.Close()
		return nil, nil, err
	}

	cmd := exec.CommandContext(ctx, binary)
	cmd.ExtraFiles = []*os.File{listenerFile}
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", listenFDEnv, extraFileFD))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		listener.Close()
		return nil, nil, fmt.Errorf("handoff: start agent: %w", err)
	}

	info := &runtime.ProcessInfo{
		ProcessID:  cmd.Process.Pid,
		ExecutedAt: time.Now().UTC(),
		Version:    version,
		FeatType:   runtime.FeatAgent,
	}
	return listener, info, nil
}

// Terminate sends SIGTERM to the process described by info.
func Terminate(info runtime.ProcessInfo) error {
	process, err := os.FindProcess(info.ProcessID)
	if err != nil {
		return fmt.Errorf("handoff: find process %d: %w", info.ProcessID, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("handoff: terminate process %d: %w", info.ProcessID, err)
	}
	return nil
}

func (l *Launcher) resolveBinary() (string, error) {
	if l.BinaryPath != "" {
		return l.BinaryPath, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("handoff: resolve current executable: %w", err)
	}
	return exe, nil
}
