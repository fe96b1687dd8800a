// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JyotiFlowAI/jyotiflow/services/analytics"
)

func runWorker(_ *cobra.Command, _ []string) error {
	_, config, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger("analytics")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	logger.SetAsDefault()

	worker, err := analytics.NewWorker(config, logger.Logger)
	if err != nil {
		return fmt.Errorf("init analytics worker: %w", err)
	}
	defer worker.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("analytics worker starting")
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker: %w", err)
	}
	logger.Info("analytics worker stopped")
	return nil
}
