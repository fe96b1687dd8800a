// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package secrets keeps third-party API credentials (OpenAI, Prokerala,
// D-ID, ElevenLabs, Agora) in mlocked memory so they cannot be swapped
// to disk. Values are sealed in memguard enclaves and only decrypted for
// the duration of a single request signing.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// MinMlockLimitKB is the minimum mlock limit required in kilobytes.
// Each enclave holds at most a few KB of key material.
const MinMlockLimitKB = 64

var (
	initOnce            sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// Init arms memguard's interrupt handler and probes the mlock limit.
// Called once by any constructor; exported for use in main.
func Init() {
	initOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
		} else {
			slog.Warn("mlock limit low; secret enclaves may fall back to unlocked memory",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
		}
	})
}

// Purge wipes all enclaves. Call during shutdown.
func Purge() {
	memguard.Purge()
}

func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// Secret is a sealed credential.
type Secret struct {
	enclave *memguard.Enclave
}

// New seals the given value. The plaintext argument should not be retained
// by the caller.
func New(value string) (*Secret, error) {
	if value == "" {
		return nil, fmt.Errorf("secret value is empty")
	}
	Init()
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}, nil
}

// FromEnvOrFile reads a secret from the named environment variable, falling
// back to a secret file (container secret mounts). Env first, /run/secrets
// second.
func FromEnvOrFile(envVar, filePath string) (*Secret, error) {
	if v := os.Getenv(envVar); v != "" {
		return New(v)
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			slog.Info("read secret from file", "path", filePath)
			return New(strings.TrimSpace(string(data)))
		}
	}
	return nil, fmt.Errorf("%s not set and secret file not found", envVar)
}

// Use opens the enclave, passes the plaintext to fn, and wipes the buffer
// when fn returns. The plaintext must not escape fn.
func (s *Secret) Use(fn func(value string) error) error {
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("failed to open secret enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// Reveal returns the plaintext as a fresh string. Prefer Use; Reveal exists
// for clients that must hold the key for a connection lifetime (SDK
// constructors).
func (s *Secret) Reveal() (string, error) {
	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open secret enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}
