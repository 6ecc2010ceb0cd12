package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/constants"
	"github.com/clusterfleet/infra-provisioner/internal/di"
	"github.com/clusterfleet/infra-provisioner/internal/orchestrator"
)

// ApproveCommand returns the approve command. It forwards the task token an
// approval-gate notification carried, resuming the blocked execution.
func ApproveCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "approve",
		Usage: "Approve a pipeline blocked at the manual approval gate",
		Description: `Forward the task token from the approval notification, letting the
execution proceed past the gate.

Example:
  infra-provisioner approve --env prd --task-token "AAAA..." --comment "cluster verified"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Provisioner environment (dev, stg, or prd)",
				Required: true,
				EnvVars:  []string{constants.EnvDeployerEnv},
			},
			&cli.StringFlag{
				Name:     "task-token",
				Aliases:  []string{"t"},
				Usage:    "Task token from the approval notification",
				Required: true,
				EnvVars:  []string{"TASK_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "comment",
				Aliases: []string{"c"},
				Usage:   "Free-form approval comment",
			},
		},
		Action: func(c *cli.Context) error {
			container, err := di.New(c.String("env"))
			if err != nil {
				return fmt.Errorf("failed to build container: %w", err)
			}

			orch := di.MustGet[*orchestrator.Orchestrator](container)
			if err := orch.Approve(c.Context, c.String("task-token"), c.String("comment")); err != nil {
				return err
			}

			logger.Info().Msg("Pipeline approved")
			return nil
		},
	}
}

// RejectCommand returns the reject command: the gate's failure path.
func RejectCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "reject",
		Usage: "Reject a pipeline blocked at the manual approval gate",
		Description: `Fail the approval gate. The execution takes its failure path and the
application deployment never runs.

Example:
  infra-provisioner reject --env prd --task-token "AAAA..." --cause "smoke tests failed"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Provisioner environment (dev, stg, or prd)",
				Required: true,
				EnvVars:  []string{constants.EnvDeployerEnv},
			},
			&cli.StringFlag{
				Name:     "task-token",
				Aliases:  []string{"t"},
				Usage:    "Task token from the approval notification",
				Required: true,
				EnvVars:  []string{"TASK_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "cause",
				Aliases: []string{"c"},
				Usage:   "Reason for the rejection",
			},
		},
		Action: func(c *cli.Context) error {
			container, err := di.New(c.String("env"))
			if err != nil {
				return fmt.Errorf("failed to build container: %w", err)
			}

			orch := di.MustGet[*orchestrator.Orchestrator](container)
			if err := orch.Reject(c.Context, c.String("task-token"), c.String("cause")); err != nil {
				return err
			}

			logger.Info().Msg("Pipeline rejected")
			return nil
		},
	}
}
