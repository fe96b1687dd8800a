// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm abstracts text generation backends and the persona prompt
// templates that shape guidance output.
package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Personas holds the system-prompt template per service type, loaded from
// a YAML file. The "default" entry backs unknown service types.
type Personas struct {
	templates map[string]string
}

// LoadPersonas reads the persona template file.
func LoadPersonas(path string) (*Personas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file %s: %w", path, err)
	}
	templates := map[string]string{}
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	if _, ok := templates["default"]; !ok {
		return nil, fmt.Errorf("persona file %s has no default entry", path)
	}
	return &Personas{templates: templates}, nil
}

// Render returns the system prompt for serviceType with {{chart}} and
// {{question}} substituted.
func (p *Personas) Render(serviceType, chart, question string) string {
	tmpl, ok := p.templates[serviceType]
	if !ok {
		tmpl = p.templates["default"]
	}
	out := strings.ReplaceAll(tmpl, "{{chart}}", chart)
	out = strings.ReplaceAll(out, "{{question}}", question)
	return out
}

// Has reports whether serviceType has a dedicated template.
func (p *Personas) Has(serviceType string) bool {
	_, ok := p.templates[serviceType]
	return ok
}
