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

	"github.com/spf13/cobra"

	"github.com/sage-x-project/sage/agentserver"
	"github.com/sage-x-project/sage/config"
	"github.com/sage-x-project/sage/did/sidetree"
	"github.com/sage-x-project/sage/handoff"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/keyring"
)

var (
	configPath  string
	socketPath  string
	keystoreDir string
	sidetreeURL string
	version     = "0.0.0-dev"
)

var rootCmd = &cobra.Command{
	Use:   "edge-agent",
	Short: "SAGE edge agent - identifier, credential and DIDComm surface",
	Long: `edge-agent serves DID identifier lookups, Verifiable Credential
issuance/verification, and DIDComm message exchange over a Unix
filesystem socket, for use by an on-device edge controller or any
local caller holding the socket's permissions.`,
	RunE: runAgent,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file; explicit flags always take precedence")
	rootCmd.Flags().StringVar(&socketPath, "socket", "/run/sage/agent.sock", "unix socket to serve on")
	rootCmd.Flags().StringVar(&keystoreDir, "keystore", "/var/lib/sage/keys", "directory holding this device's keyring")
	rootCmd.Flags().StringVar(&sidetreeURL, "sidetree-url", "", "base URL of the sidetree node used to resolve and create identifiers")
}

// applyFileConfig overrides any flag the user didn't pass explicitly with
// the corresponding value from --config, if one was given.
func applyFileConfig(cmd *cobra.Command) error {
	if configPath == "" {
		return nil
	}
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("edge-agent: load config: %w", err)
	}
	if cfg.Agent == nil {
		return nil
	}
	changed := cmd.Flags().Changed
	if !changed("socket") && cfg.Agent.SocketPath != "" {
		socketPath = cfg.Agent.SocketPath
	}
	if !changed("keystore") && cfg.Agent.KeystoreDir != "" {
		keystoreDir = cfg.Agent.KeystoreDir
	}
	if !changed("sidetree-url") && cfg.Agent.SidetreeURL != "" {
		sidetreeURL = cfg.Agent.SidetreeURL
	}
	return nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	if err := applyFileConfig(cmd); err != nil {
		return err
	}
	log := logger.NewDefaultLogger()

	ks, err := keyring.NewSecureKeystore(keystoreDir)
	if err != nil {
		return fmt.Errorf("edge-agent: open keystore: %w", err)
	}

	kr, err := ks.Load()
	if err != nil {
		return fmt.Errorf("edge-agent: load keyring: %w", err)
	}

	resolver := sidetree.NewHTTPResolver(sidetreeURL)

	srv := agentserver.New(kr, resolver, nil, nil, log)

	listener, err := handoff.ResolveListener(socketPath)
	if err != nil {
		return fmt.Errorf("edge-agent: resolve listener: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	log.Info("edge-agent: serving", logger.String("socket", socketPath), logger.String("version", version))
	return srv.Serve(ctx, listener)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
