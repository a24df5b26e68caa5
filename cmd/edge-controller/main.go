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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sage-x-project/sage/config"
	"github.com/sage-x-project/sage/controller"
	"github.com/sage-x-project/sage/controller/updating"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/pkg/health"
)

var (
	configPath     string
	stateDir       string
	socketPath     string
	executablePath string
	configDir      string
	agentBinary    string
	healthPort     int
	pollInterval   time.Duration
	appVersion     = "0.0.0-dev"

	fileCfg *config.ControllerConfig
)

var rootCmd = &cobra.Command{
	Use:   "edge-controller",
	Short: "SAGE edge controller - agent supervisor and update manager",
	Long: `edge-controller supervises the edge-agent process: it keeps one
instance running, applies signed update bundles, and rolls back a
failed update, tracking its position through a persisted runtime
state file guarded by an exclusive lock.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "supervise the edge agent, reconciling runtime state on an interval",
	RunE:  runSupervisor,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "apply a signed update bundle to the edge agent",
	RunE:  runUpdate,
}

var (
	updateVersion    string
	updateBinaryURL  string
	updateBundlePath string
	updateBlobPath   string
	updateIdentity   string
	updateIssuer     string
	updatePlanPath   string
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentPreRunE = loadFileConfig

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file; explicit flags always take precedence")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "/var/lib/sage/controller", "directory holding runtime state, backups and locks")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/sage/agent.sock", "unix socket the supervised agent listens on")
	rootCmd.PersistentFlags().StringVar(&executablePath, "agent-executable", "/usr/local/bin/edge-agent", "path to the agent executable this controller backs up and restores")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "/etc/sage", "agent configuration directory backed up alongside the executable")
	rootCmd.PersistentFlags().StringVar(&agentBinary, "agent-binary", "", "binary to launch as the agent (defaults to this process's own executable)")

	runCmd.Flags().IntVar(&healthPort, "health-port", 8090, "port serving /health, /health/ready and /metrics")
	runCmd.Flags().DurationVar(&pollInterval, "interval", 30*time.Second, "how often to reconcile runtime state")

	updateCmd.Flags().StringVar(&updateVersion, "version", "", "version string of the incoming update")
	updateCmd.Flags().StringVar(&updateBinaryURL, "binary-url", "", "URL to download the updated agent resources from")
	updateCmd.Flags().StringVar(&updateBundlePath, "bundle", "", "path to the update's sigstore bundle")
	updateCmd.Flags().StringVar(&updateBlobPath, "blob", "", "path to the artifact the bundle signs")
	updateCmd.Flags().StringVar(&updateIdentity, "identity", "", "expected signer certificate identity (SAN)")
	updateCmd.Flags().StringVar(&updateIssuer, "issuer", "", "expected signer certificate issuer")
	updateCmd.Flags().StringVar(&updatePlanPath, "plan", "", "path to the YAML task manifest to run after extraction")
	for _, name := range []string{"version", "binary-url", "bundle", "blob", "identity", "issuer"} {
		_ = updateCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(runCmd, updateCmd)
}

// loadFileConfig reads --config, if given, into fileCfg. Flags explicitly
// set on the command line always win over values read from the file;
// applyFileConfig below only fills in flags the caller did not set
// explicitly (cmd.Flags().Changed is false).
func loadFileConfig(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return nil
	}
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("edge-controller: load config: %w", err)
	}
	fileCfg = cfg.Controller
	return nil
}

// applyFileConfig overrides any controller flag the user didn't pass
// explicitly with the corresponding value from --config, if one was loaded.
func applyFileConfig(cmd *cobra.Command) {
	if fileCfg == nil {
		return
	}
	changed := cmd.Flags().Changed
	if !changed("state-dir") && fileCfg.StateDir != "" {
		stateDir = fileCfg.StateDir
	}
	if !changed("socket") && fileCfg.SocketPath != "" {
		socketPath = fileCfg.SocketPath
	}
	if !changed("agent-executable") && fileCfg.AgentExecutable != "" {
		executablePath = fileCfg.AgentExecutable
	}
	if !changed("config-dir") && fileCfg.ConfigDir != "" {
		configDir = fileCfg.ConfigDir
	}
	if !changed("agent-binary") && fileCfg.AgentBinaryPath != "" {
		agentBinary = fileCfg.AgentBinaryPath
	}
	if !changed("health-port") && fileCfg.HealthPort != 0 {
		healthPort = fileCfg.HealthPort
	}
	if !changed("interval") && fileCfg.PollInterval != 0 {
		pollInterval = fileCfg.PollInterval
	}
}

func newHandler(log logger.Logger) (*controller.Handler, error) {
	return controller.NewHandler(controller.Config{
		StateDir:       stateDir,
		SocketPath:     socketPath,
		ExecutablePath: executablePath,
		ConfigDir:      configDir,
		BinaryPath:     agentBinary,
		Version:        appVersion,
	}, log)
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	applyFileConfig(cmd)
	log := logger.NewDefaultLogger()

	handler, err := newHandler(log)
	if err != nil {
		return err
	}

	healthServer := health.NewServer(health.NewChecker(socketPath), log, healthPort)
	if err := healthServer.Start(); err != nil {
		return fmt.Errorf("edge-controller: start health server: %w", err)
	}
	defer healthServer.Stop(context.Background())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Info("edge-controller: supervising", logger.String("socket", socketPath), logger.Duration("interval", pollInterval))

	if err := handler.Handle(ctx, nil); err != nil {
		log.Error("edge-controller: initial reconcile failed", logger.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := handler.Handle(ctx, nil); err != nil {
				log.Error("edge-controller: reconcile failed", logger.Error(err))
			}
		}
	}
}

func runUpdate(cmd *cobra.Command, args []string) error {
	applyFileConfig(cmd)
	log := logger.NewDefaultLogger()

	handler, err := newHandler(log)
	if err != nil {
		return err
	}

	var plan *updating.Plan
	if updatePlanPath != "" {
		plan, err = updating.LoadPlan(updatePlanPath)
		if err != nil {
			return err
		}
	}

	req := &controller.UpdateRequest{
		Version:    updateVersion,
		BinaryURL:  updateBinaryURL,
		BundlePath: updateBundlePath,
		BlobPath:   updateBlobPath,
		Identity:   updateIdentity,
		Issuer:     updateIssuer,
		Plan:       plan,
	}

	return handler.TriggerUpdate(context.Background(), req)
}

func main() {
	if env := os.Getenv("SAGE_CONTROLLER_ENV_FILE"); env != "" {
		if err := godotenv.Load(env); err != nil {
			fmt.Fprintf(os.Stderr, "edge-controller: load env file %s: %v\n", env, err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
