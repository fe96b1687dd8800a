// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cfg

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfgIns     *Config
	cfgInsOnce sync.Once
	cfgMutex   sync.RWMutex
)

// ViperLoader reads config.yaml from the given directory, overlays
// JYOTIFLOW_* environment variables, and hot-reloads on file change.
type ViperLoader struct {
	configDir             string
	configChangeCallbacks []func(*Config)
}

func NewViperLoader(configDir string) (*ViperLoader, error) {
	if configDir == "" {
		configDir = "cfg/yaml"
	}
	return &ViperLoader{
		configDir:             configDir,
		configChangeCallbacks: make([]func(*Config), 0),
	}, nil
}

func (vl *ViperLoader) Load() (*Config, error) {
	var err error
	cfgInsOnce.Do(func() {
		err = vl.loadConfig()
		if err == nil && vl.IsWatchChange() {
			viper.WatchConfig()
			viper.OnConfigChange(func(e fsnotify.Event) {
				slog.Info("config file changed", "file", e.Name)
				if errReload := vl.reloadConfig(); errReload != nil {
					slog.Error("failed to reload config", "error", errReload)
				}
			})
		}
	})

	if err != nil {
		return nil, err
	}

	cfgMutex.RLock()
	defer cfgMutex.RUnlock()
	return cfgIns, nil
}

func (vl *ViperLoader) IsWatchChange() bool {
	return true
}

// RegisterConfigChangeCallback registers a callback invoked (on its own
// goroutine) after each successful hot reload.
func (vl *ViperLoader) RegisterConfigChangeCallback(callback func(*Config)) {
	cfgMutex.Lock()
	vl.configChangeCallbacks = append(vl.configChangeCallbacks, callback)
	cfgMutex.Unlock()
}

func (vl *ViperLoader) loadConfig() error {
	viper.AddConfigPath(vl.configDir)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Secrets come from the environment in deployment:
	// JYOTIFLOW_OPENAI_APIKEY, JYOTIFLOW_AUTH_JWTSECRET, ...
	viper.SetEnvPrefix("JYOTIFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfgMutex.Lock()
	cfgIns = cfg
	cfgMutex.Unlock()

	return nil
}

func (vl *ViperLoader) reloadConfig() error {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config during reload: %w", err)
	}

	cfgMutex.Lock()
	cfgIns = cfg
	callbacks := make([]func(*Config), len(vl.configChangeCallbacks))
	copy(callbacks, vl.configChangeCallbacks)
	cfgMutex.Unlock()

	for _, callback := range callbacks {
		go callback(cfg)
	}

	slog.Info("configuration reloaded")
	return nil
}
