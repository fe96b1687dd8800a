// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JyotiFlowAI/jyotiflow/pkg/db"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

func runMigrate(_ *cobra.Command, _ []string) error {
	_, config, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger("migrate")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	logger.SetAsDefault()

	postgres, err := db.NewPostgres(config)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer postgres.Close()

	if err := postgres.Migrate(&store.User{}, &store.GuidanceSession{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("schema migration applied",
		"database", config.Postgres.Database,
		"tables", []string{"users", "guidance_sessions"})
	return nil
}
