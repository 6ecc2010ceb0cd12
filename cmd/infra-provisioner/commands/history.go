package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/constants"
	"github.com/clusterfleet/infra-provisioner/internal/dao/assemblydao"
	"github.com/clusterfleet/infra-provisioner/internal/di"
)

// HistoryCommand returns the history command for listing assembly records.
func HistoryCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List the assembly history of a tenant environment",
		Description: `List assembly records for one tenant environment, or the latest record
per tenant when no tenant is given.

Examples:
  # Full history of acme/dev
  infra-provisioner history --env dev --tenant-id acme --target-env dev

  # Latest assembly per tenant in dev
  infra-provisioner history --env dev --target-env dev

  # Machine-readable output
  infra-provisioner history --env dev --tenant-id acme --target-env dev --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Provisioner environment (dev, stg, or prd) - determines which DynamoDB table to use",
				Required: true,
				EnvVars:  []string{constants.EnvDeployerEnv},
			},
			&cli.StringFlag{
				Name:    "tenant-id",
				Aliases: []string{"t"},
				Usage:   "Tenant identifier (omit to list the latest record per tenant)",
				EnvVars: []string{"TENANT_ID"},
			},
			&cli.StringFlag{
				Name:     "target-env",
				Usage:    "Target environment of the tenant",
				Required: true,
				EnvVars:  []string{"TARGET_ENV"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			return historyAction(c, logger)
		},
	}
}

func historyAction(c *cli.Context, logger *zerolog.Logger) error {
	env := c.String("env")
	tenantID := c.String("tenant-id")
	targetEnv := c.String("target-env")

	container, err := di.New(env)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	dao := di.MustGet[*assemblydao.DAO](container)

	var records []assemblydao.Record
	if tenantID == "" {
		records, err = dao.QueryLatest(c.Context, targetEnv)
	} else {
		records, err = dao.QueryByTenantEnv(c.Context, tenantID, targetEnv)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		if tenantID == "" {
			fmt.Printf("No assemblies recorded for target environment %s\n", targetEnv)
		} else {
			fmt.Printf("No assemblies recorded for %s/%s\n", tenantID, targetEnv)
		}
		return nil
	}

	if c.Bool("json") {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	}

	for _, record := range records {
		fmt.Printf("%s  %-9s  %s", record.GetID(), record.Status, record.PipelineName)
		if record.ManualApproval {
			fmt.Print("  [manual approval]")
		}
		if record.CreatedAt > 0 {
			fmt.Printf("  %s", time.Unix(record.CreatedAt, 0).UTC().Format(time.RFC3339))
		}
		if record.ExecutionArn != nil {
			fmt.Printf("\n    execution: %s", *record.ExecutionArn)
		}
		if record.ErrorMsg != nil {
			fmt.Printf("\n    error: %s", *record.ErrorMsg)
		}
		fmt.Println()
	}

	logger.Info().
		Str("target_env", targetEnv).
		Int("records", len(records)).
		Msg("Listed assembly history")

	return nil
}
