// Package paths resolves logical keys into scoped parameter-store paths.
// Every path is tenant/environment-scoped unless explicitly requested as
// global; centralizing the construction here is what keeps operational
// parameters isolated per tenant.
package paths

import (
	"fmt"
	"os"
	"strings"

	"github.com/clusterfleet/infra-provisioner/internal/errors"
	"gopkg.in/yaml.v3"
)

// Builder resolves logical keys against a path specification. An instance is
// scoped to one (tenant, environment) and immutable for its lifetime; a
// different pair requires a fresh instance.
type Builder struct {
	tenantID    string
	environment string
	spec        map[string]any
}

// NewBuilder loads the path specification YAML from specFile.
func NewBuilder(tenantID, environment, specFile string) (*Builder, error) {
	data, err := os.ReadFile(specFile)
	if err != nil {
		return nil, &errors.ConfigLoadError{Path: specFile, Err: err}
	}

	var spec map[string]any
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, &errors.ConfigLoadError{Path: specFile, Err: err}
	}

	return NewBuilderFromSpec(tenantID, environment, spec), nil
}

// NewBuilderFromSpec wraps an already-parsed path specification.
func NewBuilderFromSpec(tenantID, environment string, spec map[string]any) *Builder {
	return &Builder{
		tenantID:    tenantID,
		environment: environment,
		spec:        spec,
	}
}

// Path walks keys through the specification and returns the tenant- and
// environment-scoped path /{tenant}/{environment}/{segment}.
func (b *Builder) Path(keys ...string) (string, error) {
	segment, err := b.resolve(keys)
	if err != nil {
		return "", err
	}
	return join(b.tenantID, b.environment, segment), nil
}

// GlobalPath walks keys through the specification and returns the unscoped
// path /{segment}. Global paths are shared across tenants; callers must opt
// in explicitly.
func (b *Builder) GlobalPath(keys ...string) (string, error) {
	segment, err := b.resolve(keys)
	if err != nil {
		return "", err
	}
	return join(segment), nil
}

// AllPath returns the wildcard path covering the whole tenant/environment
// parameter namespace.
func (b *Builder) AllPath() string {
	return join(b.tenantID, b.environment, "*")
}

// resolve walks keys through the nested specification. The walk must end on a
// scalar: stopping on a sub-mapping is ambiguous and rejected rather than
// stringified.
func (b *Builder) resolve(keys []string) (string, error) {
	if len(keys) == 0 {
		return "", &errors.PathResolutionError{Keys: keys, Reason: "no keys given"}
	}

	var node any = b.spec
	for i, key := range keys {
		mapping, ok := node.(map[string]any)
		if !ok {
			return "", &errors.PathResolutionError{
				Keys:   keys,
				Reason: fmt.Sprintf("key %q resolves past a scalar", keys[i-1]),
			}
		}
		node, ok = mapping[key]
		if !ok {
			return "", &errors.PathResolutionError{
				Keys:   keys,
				Reason: fmt.Sprintf("key %q not found", key),
			}
		}
	}

	segment, ok := node.(string)
	if !ok {
		return "", &errors.PathResolutionError{
			Keys:   keys,
			Reason: "resolution terminates on a sub-mapping, not a path segment",
		}
	}

	return segment, nil
}

// join builds a path from components, dropping empty ones so a missing
// component never produces a double slash.
func join(components ...string) string {
	parts := make([]string, 0, len(components))
	for _, c := range components {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return "/" + strings.Join(parts, "/")
}
