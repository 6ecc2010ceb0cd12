package tenantenv

import (
	goerrors "errors"
	"testing"

	"github.com/clusterfleet/infra-provisioner/internal/configstore"
	"github.com/clusterfleet/infra-provisioner/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() configstore.Tree {
	return configstore.Tree{
		"environments": map[string]any{
			"acme": map[string]any{
				"dev": map[string]any{
					"account":                 "111111111111",
					"region":                  "us-east-1",
					"cluster_admin_role_name": "acme-cluster-admin",
					"applications":            []any{"billing", "reporting"},
					"enable_manual_approval":  true,
					"products_purchased":      []any{"analytics"},
				},
				"prod": map[string]any{
					"account": "222222222222",
					"region":  "us-east-1",
				},
			},
			"globex": map[string]any{
				"dev": map[string]any{
					"account": "333333333333",
					"region":  "eu-west-1",
				},
			},
		},
	}
}

func TestResolve(t *testing.T) {
	cfg, err := Resolve(testTree(), "acme", "dev")
	require.NoError(t, err)

	assert.Equal(t, "111111111111", cfg.Account)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "acme-cluster-admin", cfg.ClusterAdminRoleName)
	assert.Equal(t, []string{"billing", "reporting"}, cfg.Applications)
	assert.True(t, cfg.EnableManualApproval)
}

func TestResolve_UnknownPair(t *testing.T) {
	tests := []struct {
		name        string
		tenantID    string
		environment string
	}{
		{name: "unknown tenant", tenantID: "initech", environment: "dev"},
		{name: "unknown environment for known tenant", tenantID: "globex", environment: "prod"},
	}

	want := []string{
		"Tenant: acme, Environment: dev",
		"Tenant: acme, Environment: prod",
		"Tenant: globex, Environment: dev",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(testTree(), tt.tenantID, tt.environment)
			require.Error(t, err)

			var validationErr *errors.ValidationError
			require.True(t, goerrors.As(err, &validationErr))
			assert.Equal(t, tt.tenantID, validationErr.TenantID)
			assert.Equal(t, tt.environment, validationErr.Environment)
			assert.Equal(t, want, validationErr.ValidPairs)
			for _, pair := range want {
				assert.Contains(t, validationErr.Error(), pair)
			}
		})
	}
}

func TestResolve_MissingEnvironmentsDocument(t *testing.T) {
	_, err := Resolve(configstore.Tree{}, "acme", "dev")
	require.Error(t, err)

	var loadErr *errors.ConfigLoadError
	assert.True(t, goerrors.As(err, &loadErr))
}

func TestList_Sorted(t *testing.T) {
	pairs := List(testTree())
	assert.Equal(t, []Pair{
		{TenantID: "acme", Environment: "dev"},
		{TenantID: "acme", Environment: "prod"},
		{TenantID: "globex", Environment: "dev"},
	}, pairs)
}

func TestPairs_Sorted(t *testing.T) {
	pairs := Pairs(testTree())
	assert.Equal(t, []string{
		"Tenant: acme, Environment: dev",
		"Tenant: acme, Environment: prod",
		"Tenant: globex, Environment: dev",
	}, pairs)
}
