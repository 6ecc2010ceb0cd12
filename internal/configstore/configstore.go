// Package configstore loads the declarative configuration documents that
// drive pipeline assembly. Each YAML file in the config directory becomes one
// document in the tree, keyed by its filename with the extension stripped.
// The tree is read-only after Load returns.
package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clusterfleet/infra-provisioner/internal/errors"
	"gopkg.in/yaml.v3"
)

// Tree is the merged configuration tree: document name to parsed document.
type Tree map[string]any

// Load scans dir for *.yaml / *.yml files and parses each into the tree.
// Two files sharing a stem (config.yaml and config.yml) would silently shadow
// one another, so that case is rejected rather than resolved by load order.
func Load(dir string) (Tree, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &errors.ConfigLoadError{Path: dir, Err: err}
	}

	tree := make(Tree)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		key := strings.TrimSuffix(entry.Name(), ext)
		if _, exists := tree[key]; exists {
			return nil, &errors.ConfigLoadError{
				Path: path,
				Err:  fmt.Errorf("document key %q already loaded from another file", key),
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &errors.ConfigLoadError{Path: path, Err: err}
		}

		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &errors.ConfigLoadError{Path: path, Err: err}
		}

		tree[key] = doc
	}

	return tree, nil
}

// Document returns the named document, or nil if it was not loaded.
func (t Tree) Document(name string) any {
	return t[name]
}

// DecodeDocument unmarshals one named document into a typed struct via a YAML
// round trip.
func DecodeDocument[T any](t Tree, name string) (T, error) {
	var out T

	doc, ok := t[name]
	if !ok {
		return out, &errors.ConfigLoadError{
			Path: name,
			Err:  fmt.Errorf("document %q not found in configuration tree", name),
		}
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return out, &errors.ConfigLoadError{Path: name, Err: err}
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, &errors.ConfigLoadError{Path: name, Err: err}
	}

	return out, nil
}
