package commands

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/configstore"
	"github.com/clusterfleet/infra-provisioner/internal/paths"
	"github.com/clusterfleet/infra-provisioner/internal/pipeline"
	"github.com/clusterfleet/infra-provisioner/internal/policy"
	"github.com/clusterfleet/infra-provisioner/internal/tenantenv"
)

// ValidateCommand returns the validate command: assemble every configured
// tenant environment without touching AWS, so a broken configuration tree
// fails in CI instead of at deployment time.
func ValidateCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate the configuration tree for every tenant environment",
		Description: `Load the configuration documents, enumerate every (tenant, environment)
pair, and assemble and policy-check each pipeline. No AWS credentials are
needed; the command exits non-zero when any pair fails.

Example:
  infra-provisioner validate --config-dir config`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Aliases: []string{"c"},
				Usage:   "Directory holding the configuration documents",
				Value:   "config",
				EnvVars: []string{"CONFIG_DIR"},
			},
		},
		Action: func(c *cli.Context) error {
			return validateAction(c, logger)
		},
	}
}

func validateAction(c *cli.Context, logger *zerolog.Logger) error {
	configDir := c.String("config-dir")

	tree, err := configstore.Load(configDir)
	if err != nil {
		return err
	}

	deploy, err := configstore.DecodeDeployConfig(tree)
	if err != nil {
		return err
	}

	pairs := tenantenv.List(tree)
	if len(pairs) == 0 {
		return fmt.Errorf("environments document declares no tenant environments")
	}

	guard, err := policy.NewGuard()
	if err != nil {
		return err
	}

	specFile := filepath.Join(configDir, "ssm_paths.yaml")

	failures := 0
	for _, pair := range pairs {
		if err := validatePair(c, guard, tree, deploy, specFile, pair.TenantID, pair.Environment); err != nil {
			logger.Error().
				Str("tenant_id", pair.TenantID).
				Str("target_env", pair.Environment).
				Err(err).
				Msg("Validation failed")
			failures++
			continue
		}

		logger.Info().
			Str("tenant_id", pair.TenantID).
			Str("target_env", pair.Environment).
			Msg("Validation passed")
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d tenant environments failed validation", failures, len(pairs))
	}

	logger.Info().Int("pairs", len(pairs)).Msg("Configuration tree is valid")
	return nil
}

func validatePair(
	c *cli.Context,
	guard *policy.Guard,
	tree configstore.Tree,
	deploy *configstore.DeployConfig,
	specFile, tenantID, targetEnv string,
) error {
	tenant, err := tenantenv.Resolve(tree, tenantID, targetEnv)
	if err != nil {
		return err
	}

	builder, err := paths.NewBuilder(tenantID, targetEnv, specFile)
	if err != nil {
		return err
	}

	spec, err := pipeline.Assemble(pipeline.Config{
		TenantID:    tenantID,
		Environment: targetEnv,
		Tenant:      tenant,
		Deploy:      deploy,
		Paths:       builder,
	})
	if err != nil {
		return err
	}

	result, err := guard.Check(c.Context, spec)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return fmt.Errorf("policy violations: %v", result.Violations)
	}

	return nil
}
