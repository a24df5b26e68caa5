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

// Package config provides configuration management for the edge agent and
// edge controller, loaded from a YAML file. JSON is accepted only where
// it is also valid YAML; there is no separate JSON parsing step.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level on-disk configuration shared by edge-agent and
// edge-controller; either binary only reads the sub-section it cares about.
type Config struct {
	Environment string            `yaml:"environment" json:"environment"`
	Agent       *AgentConfig      `yaml:"agent" json:"agent"`
	Controller  *ControllerConfig `yaml:"controller" json:"controller"`
	Logging     *LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig    `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig     `yaml:"health" json:"health"`
}

// AgentConfig configures the edge agent process.
type AgentConfig struct {
	SocketPath  string `yaml:"socket_path" json:"socket_path"`
	KeystoreDir string `yaml:"keystore_dir" json:"keystore_dir"`
	SidetreeURL string `yaml:"sidetree_url" json:"sidetree_url"`
}

// ControllerConfig configures the edge controller's supervision loop.
type ControllerConfig struct {
	StateDir         string        `yaml:"state_dir" json:"state_dir"`
	SocketPath       string        `yaml:"socket_path" json:"socket_path"`
	AgentExecutable  string        `yaml:"agent_executable" json:"agent_executable"`
	ConfigDir        string        `yaml:"config_dir" json:"config_dir"`
	AgentBinaryPath  string        `yaml:"agent_binary_path" json:"agent_binary_path"`
	UpdateSourceURL  string        `yaml:"update_source_url" json:"update_source_url"`
	TrustRootRefresh time.Duration `yaml:"trust_root_refresh" json:"trust_root_refresh"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	HealthPort       int           `yaml:"health_port" json:"health_port"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration
type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file as YAML: %w", err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// setDefaults fills in zero-valued fields the caller left unset.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Controller != nil {
		if cfg.Controller.TrustRootRefresh == 0 {
			cfg.Controller.TrustRootRefresh = 6 * time.Hour
		}
		if cfg.Controller.PollInterval == 0 {
			cfg.Controller.PollInterval = 30 * time.Second
		}
		if cfg.Controller.HealthPort == 0 {
			cfg.Controller.HealthPort = 8090
		}
	}

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}
}
