package commands

import (
	goerrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/configstore"
	"github.com/clusterfleet/infra-provisioner/internal/errors"
)

func writeConfigDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"config.yaml": `deployment_account: "999999999999"
deployment_region: us-east-1
`,
		"environments.yaml": `acme:
  dev:
    account: "111111111111"
    region: us-east-1
`,
		"ecr_repositories.yaml": `clusterfleet:
  - billing
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func runDeploy(t *testing.T, args ...string) error {
	t.Helper()

	logger := zerolog.Nop()
	app := &cli.App{Commands: []*cli.Command{DeployCommand(&logger)}}
	return app.Run(append([]string{"infra-provisioner", "deploy"}, args...))
}

func TestDeploy_NoTenantTakesToolchainPath(t *testing.T) {
	dir := writeConfigDir(t)

	err := runDeploy(t, "--env", "dev", "--config-dir", dir, "--dry-run")
	require.NoError(t, err)

	// target-env alone does not change the routing: no tenant means
	// toolchain setup.
	err = runDeploy(t, "--env", "dev", "--config-dir", dir, "--target-env", "dev", "--dry-run")
	require.NoError(t, err)
}

func TestDeploy_TenantWithoutTargetEnv(t *testing.T) {
	dir := writeConfigDir(t)

	err := runDeploy(t, "--env", "dev", "--config-dir", dir, "--tenant-id", "acme")
	require.Error(t, err)

	var validationErr *errors.ValidationError
	require.True(t, goerrors.As(err, &validationErr))
	assert.Equal(t, "acme", validationErr.TenantID)
	assert.Empty(t, validationErr.Environment)
	assert.Equal(t, []string{"Tenant: acme, Environment: dev"}, validationErr.ValidPairs)
	assert.Contains(t, validationErr.Error(), "Tenant: acme, Environment: dev")
}

func TestPipelineRoleARN(t *testing.T) {
	t.Setenv("PIPELINE_ROLE_ARN", "arn:aws:iam::999999999999:role/fallback")

	deploy := &configstore.DeployConfig{
		PipelineRoleARN: "arn:aws:iam::999999999999:role/configured",
	}
	assert.Equal(t, "arn:aws:iam::999999999999:role/configured", pipelineRoleARN(deploy))

	deploy.PipelineRoleARN = ""
	assert.Equal(t, "arn:aws:iam::999999999999:role/fallback", pipelineRoleARN(deploy))
}
