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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/logging"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance"
)

const shutdownGrace = 15 * time.Second

func loadConfig() (*cfg.ViperLoader, *cfg.Config, error) {
	loader, err := cfg.NewViperLoader(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init config loader: %w", err)
	}
	config, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return loader, config, nil
}

func newLogger(service string) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: service,
		LogDir:  logDir,
	})
}

func runServe(_ *cobra.Command, _ []string) error {
	loader, config, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger("guidance")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	logger.SetAsDefault()

	svc, err := guidance.New(config, logger.Logger)
	if err != nil {
		return fmt.Errorf("init guidance service: %w", err)
	}

	// Edits to config.yaml (price table changes mostly) reach the
	// running engine through the viper file watch.
	loader.RegisterConfigChangeCallback(svc.ApplyConfig)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("guidance service stopped")
	return nil
}
