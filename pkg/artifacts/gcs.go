// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore opens a GCS-backed store. saKeyPath may be empty, in which
// case application default credentials are used.
func NewGCSStore(ctx context.Context, bucket, saKeyPath string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	writer := obj.NewWriter(ctx)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write GCS object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %s: %w", key, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", key, err)
	}
	return data, nil
}

func (s *GCSStore) URL(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete GCS object %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
