// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps artifacts on the local filesystem under a root directory.
// Keys map to paths; traversal outside the root is rejected.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o640); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return data, nil
}

func (s *LocalStore) URL(key string) string {
	return "file://" + filepath.Join(s.root, filepath.Clean(key))
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete artifact %s: %w", key, err)
	}
	return nil
}
