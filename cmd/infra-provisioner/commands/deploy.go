package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/configstore"
	"github.com/clusterfleet/infra-provisioner/internal/constants"
	"github.com/clusterfleet/infra-provisioner/internal/dao/assemblydao"
	"github.com/clusterfleet/infra-provisioner/internal/di"
	"github.com/clusterfleet/infra-provisioner/internal/errors"
	"github.com/clusterfleet/infra-provisioner/internal/orchestrator"
	"github.com/clusterfleet/infra-provisioner/internal/paths"
	"github.com/clusterfleet/infra-provisioner/internal/pipeline"
	"github.com/clusterfleet/infra-provisioner/internal/policy"
	"github.com/clusterfleet/infra-provisioner/internal/services"
	"github.com/clusterfleet/infra-provisioner/internal/tenantenv"
)

// DeployCommand returns the deploy command. With a tenant and target
// environment it assembles, validates, and submits that tenant's pipeline;
// without a tenant it runs the toolchain path that prepares the shared
// container registries in the deployment account.
func DeployCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Assemble and submit a tenant environment pipeline",
		Description: `Assemble the deployment pipeline for one tenant environment and submit it
to the execution engine.

Examples:
  # Toolchain setup: shared ECR repositories in the deployment account
  infra-provisioner deploy --env dev

  # Assemble and apply the pipeline for acme/dev
  infra-provisioner deploy --env dev --tenant-id acme --target-env dev

  # Assemble, apply, and start the execution immediately
  infra-provisioner deploy --env prd --tenant-id acme --target-env prd --start

  # Show the assembled pipeline without touching AWS
  infra-provisioner deploy --env dev --tenant-id acme --target-env dev --dry-run`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Provisioner environment (dev, stg, or prd) - determines which DynamoDB table and Lambda functions to use",
				Required: true,
				EnvVars:  []string{constants.EnvDeployerEnv},
			},
			&cli.StringFlag{
				Name:    "tenant-id",
				Aliases: []string{"t"},
				Usage:   "Tenant identifier (omit for toolchain setup)",
				EnvVars: []string{"TENANT_ID"},
			},
			&cli.StringFlag{
				Name:    "target-env",
				Usage:   "Target environment of the tenant (dev, stg, or prd)",
				EnvVars: []string{"TARGET_ENV"},
			},
			&cli.StringFlag{
				Name:    "config-dir",
				Aliases: []string{"c"},
				Usage:   "Directory holding the configuration documents",
				Value:   "config",
				EnvVars: []string{"CONFIG_DIR"},
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Assemble and validate only; print the pipeline without creating resources",
			},
			&cli.BoolFlag{
				Name:  "start",
				Usage: "Start the pipeline execution after applying the state machine",
			},
		},
		Action: func(c *cli.Context) error {
			return deployAction(c, logger)
		},
	}
}

func deployAction(c *cli.Context, logger *zerolog.Logger) error {
	env := c.String("env")
	tenantID := c.String("tenant-id")
	targetEnv := c.String("target-env")
	configDir := c.String("config-dir")

	tree, err := configstore.Load(configDir)
	if err != nil {
		return err
	}

	if tenantID == "" {
		return toolchainAction(c, logger, tree)
	}
	if targetEnv == "" {
		return &errors.ValidationError{
			TenantID:   tenantID,
			ValidPairs: tenantenv.Pairs(tree),
		}
	}

	deploy, err := configstore.DecodeDeployConfig(tree)
	if err != nil {
		return err
	}

	tenant, err := tenantenv.Resolve(tree, tenantID, targetEnv)
	if err != nil {
		return err
	}

	builder, err := paths.NewBuilder(tenantID, targetEnv, filepath.Join(configDir, "ssm_paths.yaml"))
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

	logger.Info().
		Str("pipeline", spec.Name).
		Int("nodes", len(spec.Nodes)).
		Bool("manual_approval", spec.Gate() != nil).
		Msg("Pipeline assembled")

	container, err := di.New(env)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	guard := di.MustGet[*policy.Guard](container)
	result, err := guard.Check(c.Context, spec)
	if err != nil {
		return fmt.Errorf("failed to check pipeline policy: %w", err)
	}
	if !result.Allowed {
		for _, violation := range result.Violations {
			logger.Error().Str("pipeline", spec.Name).Msg(violation)
		}
		return fmt.Errorf("pipeline %s violates policy", spec.Name)
	}

	if c.Bool("dry-run") {
		return printPipeline(spec)
	}

	// The SNS topic must exist before the definition referencing it is
	// applied.
	var topicARN string
	if gate := spec.Gate(); gate != nil {
		notifications := di.MustGet[*services.NotificationService](container)
		topicARN, err = notifications.EnsureTopic(c.Context, gate.TopicName)
		if err != nil {
			return err
		}
		if binding := spec.Notification(); binding != nil {
			if err := notifications.Subscribe(c.Context, topicARN, binding.Addresses); err != nil {
				return err
			}
		}
	}

	definition, err := orchestrator.Render(spec, orchestrator.RenderInput{
		StageDeployerARN: lambdaARN(deploy, env, "stage-deployer"),
		StackStatusARN:   lambdaARN(deploy, env, "stack-status"),
		DBInitializerARN: lambdaARN(deploy, env, "db-initializer"),
		CodeBuildProject: fmt.Sprintf("%s-infra-provisioner-waves", env),
		TopicARN:         topicARN,
		ProjectTags:      deploy.ProjectTags,
	})
	if err != nil {
		return err
	}

	dao := di.MustGet[*assemblydao.DAO](container)
	record, err := dao.Create(c.Context, assemblydao.CreateInput{
		TenantID:       tenantID,
		Env:            targetEnv,
		SK:             ksuid.New().String(),
		PipelineName:   spec.Name,
		NodeCount:      len(spec.Nodes),
		ManualApproval: spec.Gate() != nil,
	})
	if err != nil {
		return err
	}

	orch := di.MustGet[*orchestrator.Orchestrator](container)
	arn, err := orch.Apply(c.Context, orchestrator.ApplyInput{
		Name:       spec.Name,
		Definition: definition,
		RoleARN:    pipelineRoleARN(deploy),
	})
	if err != nil {
		return err
	}

	if err := dao.UpdateStatus(c.Context, record.PK, record.SK, assemblydao.StatusApplied, nil); err != nil {
		return err
	}

	logger.Info().
		Str("state_machine_arn", arn).
		Str("assembly_id", record.GetID().String()).
		Msg("Pipeline applied")

	if c.Bool("start") {
		executionARN, err := orch.Start(c.Context, orchestrator.StartInput{
			StateMachineARN: arn,
			TenantID:        tenantID,
			Environment:     targetEnv,
			SK:              record.SK,
		})
		if err != nil {
			return err
		}
		logger.Info().Str("execution_arn", executionARN).Msg("Pipeline execution started")
	}

	return nil
}

// lambdaARN names the execution-engine function for one provisioner
// environment.
func lambdaARN(deploy *configstore.DeployConfig, env, name string) string {
	return fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s-infra-provisioner-%s",
		deploy.DeploymentRegion, deploy.DeploymentAccount, env, name)
}

// pipelineRoleARN prefers the configured pipeline role and falls back to the
// PIPELINE_ROLE_ARN environment variable.
func pipelineRoleARN(deploy *configstore.DeployConfig) string {
	if deploy.PipelineRoleARN != "" {
		return deploy.PipelineRoleARN
	}
	return os.Getenv(constants.EnvPipelineRoleARN)
}

func printPipeline(spec *pipeline.Spec) error {
	fmt.Printf("Pipeline: %s (%s/%s)\n", spec.Name, spec.TenantID, spec.Environment)
	fmt.Println()
	for i, node := range spec.Nodes {
		fmt.Printf("  %d. [%s] %s\n", i+1, node.NodeKind(), node.NodeName())
		switch n := node.(type) {
		case *pipeline.Stage:
			for _, ref := range n.Stacks {
				if ref.DBScript != "" {
					fmt.Printf("       - %s (db script: %s)\n", ref.Name, ref.DBScript)
				} else {
					fmt.Printf("       - %s\n", ref.Name)
				}
			}
		case *pipeline.Wave:
			for _, step := range n.Steps {
				fmt.Printf("       - %s\n", step.Name)
			}
		case *pipeline.NotificationBinding:
			for _, address := range n.Addresses {
				fmt.Printf("       - %s\n", address)
			}
		}
	}
	return nil
}
