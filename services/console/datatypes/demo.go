// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "fmt"

// DemoParameter declares one user-settable parameter of a demo module.
// The console UI renders a form from these declarations.
type DemoParameter struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string", "select", "number"
	Default  string   `json:"default,omitempty"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// DemoDescriptor is the catalog entry for one demo module.
type DemoDescriptor struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Icon        string          `json:"icon,omitempty"`
	Parameters  []DemoParameter `json:"parameters,omitempty"`
}

// ResolveParams validates raw params against the declared schema and fills
// in defaults.
//
// Unknown keys are rejected: a demo must never receive a parameter it did
// not declare.
func (d DemoDescriptor) ResolveParams(raw map[string]string) (map[string]string, error) {
	declared := make(map[string]DemoParameter, len(d.Parameters))
	for _, p := range d.Parameters {
		declared[p.Name] = p
	}

	for k := range raw {
		if _, ok := declared[k]; !ok {
			return nil, fmt.Errorf("unknown parameter %q for demo %q", k, d.ID)
		}
	}

	out := make(map[string]string, len(d.Parameters))
	for _, p := range d.Parameters {
		v, ok := raw[p.Name]
		if !ok || v == "" {
			if p.Required && p.Default == "" {
				return nil, fmt.Errorf("missing required parameter %q for demo %q", p.Name, d.ID)
			}
			v = p.Default
		}
		if p.Type == "select" && v != "" {
			valid := false
			for _, opt := range p.Options {
				if v == opt {
					valid = true
					break
				}
			}
			if !valid {
				return nil, fmt.Errorf("parameter %q: %q is not one of %v", p.Name, v, p.Options)
			}
		}
		out[p.Name] = v
	}
	return out, nil
}
