// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// --- Global Command Variables ---
var (
	configDir string
	logLevel  string
	logDir    string

	rootCmd = &cobra.Command{
		Use:     "jyotiflow",
		Version: version,
		Short:   "The JyotiFlow spiritual guidance platform backend",
		Long: `jyotiflow runs the backend services of the JyotiFlow platform:
the guidance HTTP API, the analytics event worker, and the schema
migration tool.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the guidance HTTP API",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Run the analytics worker consuming session events into InfluxDB",
		RunE:  runWorker, // Defined in cmd_worker.go
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE:  runMigrate, // Defined in cmd_migrate.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"directory containing config.yaml (default cfg/yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"directory for log files (stderr only when empty)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}
