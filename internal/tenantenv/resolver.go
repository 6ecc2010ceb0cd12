// Package tenantenv validates a (tenant, environment) pair against the
// configuration tree and extracts its scoped sub-configuration.
package tenantenv

import (
	"fmt"
	"sort"

	"github.com/clusterfleet/infra-provisioner/internal/configstore"
	"github.com/clusterfleet/infra-provisioner/internal/errors"
	"gopkg.in/yaml.v3"
)

// TenantConfig is the scoped configuration for one (tenant, environment).
type TenantConfig struct {
	Account              string   `yaml:"account"`
	Region               string   `yaml:"region"`
	ClusterAdminRoleName string   `yaml:"cluster_admin_role_name"`
	Applications         []string `yaml:"applications"`
	EnableManualApproval bool     `yaml:"enable_manual_approval"`
	ProductsPurchased    []string `yaml:"products_purchased"`
}

// Resolve looks up environments[tenantID][environment] in the tree. A missing
// tenant and a missing environment are the same failure: a single
// ValidationError enumerating every valid pair in the tree.
func Resolve(tree configstore.Tree, tenantID, environment string) (*TenantConfig, error) {
	environments, ok := tree.Document("environments").(map[string]any)
	if !ok {
		return nil, &errors.ConfigLoadError{
			Path: "environments",
			Err:  fmt.Errorf("environments document missing or not a mapping"),
		}
	}

	fail := func() error {
		return &errors.ValidationError{
			TenantID:    tenantID,
			Environment: environment,
			ValidPairs:  Pairs(tree),
		}
	}

	tenant, ok := environments[tenantID].(map[string]any)
	if !ok {
		return nil, fail()
	}
	sub, ok := tenant[environment]
	if !ok {
		return nil, fail()
	}

	data, err := yaml.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode environment definition: %w", err)
	}
	var cfg TenantConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode environment definition for %s/%s: %w", tenantID, environment, err)
	}

	return &cfg, nil
}

// Pair is one valid (tenant, environment) combination.
type Pair struct {
	TenantID    string
	Environment string
}

// List flattens the two-level environments mapping into the sorted list of
// valid combinations.
func List(tree configstore.Tree) []Pair {
	environments, ok := tree.Document("environments").(map[string]any)
	if !ok {
		return nil
	}

	var pairs []Pair
	for tenantID, v := range environments {
		tenant, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for environment := range tenant {
			pairs = append(pairs, Pair{TenantID: tenantID, Environment: environment})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].TenantID != pairs[j].TenantID {
			return pairs[i].TenantID < pairs[j].TenantID
		}
		return pairs[i].Environment < pairs[j].Environment
	})

	return pairs
}

// Pairs formats the valid combinations as "Tenant: X, Environment: Y" for the
// validation error message.
func Pairs(tree configstore.Tree) []string {
	pairs := List(tree)
	formatted := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		formatted = append(formatted, fmt.Sprintf("Tenant: %s, Environment: %s", pair.TenantID, pair.Environment))
	}
	return formatted
}
