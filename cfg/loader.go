// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cfg

import (
	"sync"
)

var (
	loader     Loader
	loaderOnce sync.Once
)

type Loader interface {
	Load() (*Config, error)
}

func NewLoader(l Loader) (Loader, error) {
	loaderOnce.Do(func() {
		loader = l
	})
	return loader, nil
}
