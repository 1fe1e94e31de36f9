// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package catalog

import (
	"os"

	"gopkg.in/yaml.v3"

	faroerr "github.com/faro-dev/faro/pkg/errors"
)

// catalogFile is the on-disk shape of a catalog document.
type catalogFile struct {
	Capabilities map[string][]Candidate `yaml:"capabilities"`
}

// LoadFile reads a YAML catalog document and builds a Catalog from it.
// The file is read exactly once at startup; there is no hot reload.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faroerr.Errorf(faroerr.CodeConfigLoadReadFailure,
			"reading catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Catalog from raw YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, faroerr.Errorf(faroerr.CodeConfigParseInvalidFormat,
			"parsing catalog: %w", err)
	}
	if len(file.Capabilities) == 0 {
		return nil, faroerr.New(faroerr.CodeConfigParseInvalidFormat,
			"catalog must define at least one capability")
	}
	return New(file.Capabilities)
}
