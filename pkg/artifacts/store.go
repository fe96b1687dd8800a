// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package artifacts stores generated media (narration audio, avatar video)
// and hands back stable references the API can serve to clients.
//
// Two backends exist: LocalStore for single-node deployments and GCSStore
// for cloud deployments. Both are addressed by an opaque key of the form
// {sessionID}/{kind}.{ext}.
package artifacts

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get/Delete for unknown keys.
var ErrNotFound = errors.New("artifact not found")

// Store is the artifact storage contract.
type Store interface {
	// Put stores data under key and returns a reference URL.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)

	// Get returns the stored bytes for key.
	Get(ctx context.Context, key string) ([]byte, error)

	// URL returns the reference URL for key without reading it.
	URL(key string) string

	// Delete removes key. Unknown keys return ErrNotFound.
	Delete(ctx context.Context, key string) error
}
