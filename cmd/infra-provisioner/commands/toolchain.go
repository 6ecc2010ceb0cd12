package commands

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/configstore"
	"github.com/clusterfleet/infra-provisioner/internal/services"
)

// ECRRepositories is the typed view of the "ecr_repositories" document:
// registry namespace to repository names.
type ECRRepositories map[string][]string

// Names flattens the namespaced repositories into sorted
// {namespace}/{repository} names.
func (r ECRRepositories) Names() []string {
	var names []string
	for namespace, repositories := range r {
		for _, repository := range repositories {
			names = append(names, fmt.Sprintf("%s/%s", namespace, repository))
		}
	}
	sort.Strings(names)
	return names
}

// toolchainAction prepares the shared container registries in the deployment
// account: one ECR repository per configured name, with organization-wide
// pull access when the account belongs to an organization.
func toolchainAction(c *cli.Context, logger *zerolog.Logger, tree configstore.Tree) error {
	deploy, err := configstore.DecodeDeployConfig(tree)
	if err != nil {
		return err
	}

	repositories, err := configstore.DecodeDocument[ECRRepositories](tree, "ecr_repositories")
	if err != nil {
		return err
	}

	names := repositories.Names()
	if len(names) == 0 {
		return fmt.Errorf("ecr_repositories document declares no repositories")
	}

	if c.Bool("dry-run") {
		logger.Info().Msgf("DRY RUN: Would create %d ECR repository/repositories in %s:",
			len(names), deploy.DeploymentRegion)
		for _, name := range names {
			logger.Info().Msgf("  - %s", name)
		}
		return nil
	}

	ecrService, err := services.NewECRService(c.Context, deploy.DeploymentRegion)
	if err != nil {
		return fmt.Errorf("failed to create ECR service: %w", err)
	}

	organizationID := deploy.OrganizationID
	if organizationID == "" {
		organizationID, err = ecrService.GetOrganizationID(c.Context)
		if err != nil {
			return err
		}
	}

	for _, name := range names {
		info, err := ecrService.CreateRepository(c.Context, name)
		if err != nil {
			return fmt.Errorf("failed to create repository %s: %w", name, err)
		}

		if organizationID != "" {
			if err := ecrService.SetRepositoryPolicy(c.Context, name, organizationID); err != nil {
				return err
			}
		}

		logger.Info().
			Str("repository", info.Name).
			Str("uri", info.URI).
			Msg("Repository ready")
	}

	logger.Info().
		Int("repositories", len(names)).
		Str("region", deploy.DeploymentRegion).
		Bool("org_wide_pull", organizationID != "").
		Msg("Toolchain setup complete")

	return nil
}
