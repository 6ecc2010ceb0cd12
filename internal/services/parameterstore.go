package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Parameter is one named value read from the parameter store.
type Parameter struct {
	Name  string
	Value string
}

// ParameterStore defines the interface for reading namespaced configuration
// parameters. Paths come from the path builder; this service never constructs
// its own.
type ParameterStore interface {
	// GetParameter retrieves a single parameter by path
	GetParameter(ctx context.Context, name string) (string, error)

	// ListByPath retrieves every parameter under a path prefix
	ListByPath(ctx context.Context, path string) ([]Parameter, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager
// Parameter Store
type SSMParameterStore struct {
	client *ssm.Client
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client *ssm.Client) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// ListByPath retrieves all parameters under the given path prefix. A
// trailing wildcard segment (as produced by the path builder's namespace
// path) is stripped before the query.
func (s *SSMParameterStore) ListByPath(ctx context.Context, path string) ([]Parameter, error) {
	prefix := trimWildcard(path)

	var parameters []Parameter
	var nextToken *string
	for {
		result, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           &prefix,
			Recursive:      boolPtr(true),
			WithDecryption: boolPtr(true),
			NextToken:      nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", prefix, err)
		}

		for _, param := range result.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			parameters = append(parameters, Parameter{Name: *param.Name, Value: *param.Value})
		}

		if result.NextToken == nil {
			break
		}
		nextToken = result.NextToken
	}

	s.mu.Lock()
	for _, param := range parameters {
		s.cache[param.Name] = param.Value
	}
	s.mu.Unlock()

	return parameters, nil
}

// MemoryParameterStore implements ParameterStore in memory, for tests and
// local development without an AWS connection.
type MemoryParameterStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryParameterStore creates an in-memory parameter store seeded with
// the given values.
func NewMemoryParameterStore(values map[string]string) *MemoryParameterStore {
	store := &MemoryParameterStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		store.values[k] = v
	}
	return store
}

// Put sets a parameter value.
func (m *MemoryParameterStore) Put(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// GetParameter retrieves a single parameter.
func (m *MemoryParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[name]
	if !ok {
		return "", fmt.Errorf("parameter %s not found", name)
	}
	return value, nil
}

// ListByPath retrieves all parameters under the given path prefix, sorted by
// name.
func (m *MemoryParameterStore) ListByPath(ctx context.Context, path string) ([]Parameter, error) {
	prefix := trimWildcard(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var parameters []Parameter
	for name, value := range m.values {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			parameters = append(parameters, Parameter{Name: name, Value: value})
		}
	}
	sort.Slice(parameters, func(i, j int) bool { return parameters[i].Name < parameters[j].Name })

	return parameters, nil
}

// trimWildcard strips the trailing /* of a namespace path.
func trimWildcard(path string) string {
	if len(path) >= 2 && path[len(path)-2:] == "/*" {
		return path[:len(path)-2]
	}
	return path
}

func boolPtr(b bool) *bool {
	return &b
}
