package main

import (
	"context"
	"os"

	"github.com/clusterfleet/infra-provisioner/cmd/infra-provisioner/commands"
	"github.com/clusterfleet/infra-provisioner/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "infra-provisioner",
		Usage: "Multi-tenant infrastructure pipeline provisioner",
		Description: `Assembles and submits per-tenant deployment pipelines from declarative
configuration.

This tool provides commands for:
  - Assembling and deploying tenant environment pipelines
  - Approving or rejecting pipelines blocked at the manual approval gate
  - Resolving and inspecting tenant-scoped parameter paths
  - Validating the configuration tree ahead of deployment
  - Listing the assembly history of a tenant environment`,
		Commands: []*cli.Command{
			commands.DeployCommand(&logger),
			commands.ApproveCommand(&logger),
			commands.RejectCommand(&logger),
			commands.PathsCommand(&logger),
			commands.ValidateCommand(&logger),
			commands.HistoryCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
