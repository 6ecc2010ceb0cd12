package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/constants"
	"github.com/clusterfleet/infra-provisioner/internal/di"
	"github.com/clusterfleet/infra-provisioner/internal/paths"
	"github.com/clusterfleet/infra-provisioner/internal/services"
)

// PathsCommand returns the paths command for resolving and inspecting
// tenant-scoped parameter paths.
func PathsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "paths",
		Usage: "Resolve and inspect tenant-scoped parameter paths",
		Description: `Resolve logical keys into parameter-store paths, or list the parameter
namespace of one tenant environment.

Examples:
  # Resolve a logical key sequence for acme/dev
  infra-provisioner paths get --tenant-id acme --target-env dev eks oidc-id

  # Resolve a global (tenant-independent) path
  infra-provisioner paths get --tenant-id acme --target-env dev --global toolchain version

  # List the whole acme/dev parameter namespace with live values
  infra-provisioner paths list --env dev --tenant-id acme --target-env dev --resolve`,
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Resolve logical keys into a parameter path",
				ArgsUsage: "KEY...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tenant-id",
						Aliases:  []string{"t"},
						Usage:    "Tenant identifier",
						Required: true,
						EnvVars:  []string{"TENANT_ID"},
					},
					&cli.StringFlag{
						Name:     "target-env",
						Usage:    "Target environment of the tenant",
						Required: true,
						EnvVars:  []string{"TARGET_ENV"},
					},
					&cli.StringFlag{
						Name:    "config-dir",
						Aliases: []string{"c"},
						Usage:   "Directory holding the configuration documents",
						Value:   "config",
						EnvVars: []string{"CONFIG_DIR"},
					},
					&cli.BoolFlag{
						Name:    "global",
						Aliases: []string{"g"},
						Usage:   "Resolve as a global path shared across tenants",
					},
				},
				Action: func(c *cli.Context) error {
					return pathsGetAction(c)
				},
			},
			{
				Name:  "list",
				Usage: "List the tenant environment's parameter namespace",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "env",
						Aliases: []string{"e"},
						Usage:   "Provisioner environment (required with --resolve)",
						EnvVars: []string{constants.EnvDeployerEnv},
					},
					&cli.StringFlag{
						Name:     "tenant-id",
						Aliases:  []string{"t"},
						Usage:    "Tenant identifier",
						Required: true,
						EnvVars:  []string{"TENANT_ID"},
					},
					&cli.StringFlag{
						Name:     "target-env",
						Usage:    "Target environment of the tenant",
						Required: true,
						EnvVars:  []string{"TARGET_ENV"},
					},
					&cli.StringFlag{
						Name:    "config-dir",
						Aliases: []string{"c"},
						Usage:   "Directory holding the configuration documents",
						Value:   "config",
						EnvVars: []string{"CONFIG_DIR"},
					},
					&cli.BoolFlag{
						Name:    "resolve",
						Aliases: []string{"r"},
						Usage:   "Read the live parameter values from the parameter store",
					},
				},
				Action: func(c *cli.Context) error {
					return pathsListAction(c, logger)
				},
			},
		},
	}
}

func pathsGetAction(c *cli.Context) error {
	keys := c.Args().Slice()
	if len(keys) == 0 {
		return fmt.Errorf("at least one logical key is required")
	}

	builder, err := newBuilder(c)
	if err != nil {
		return err
	}

	var path string
	if c.Bool("global") {
		path, err = builder.GlobalPath(keys...)
	} else {
		path, err = builder.Path(keys...)
	}
	if err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}

func pathsListAction(c *cli.Context, logger *zerolog.Logger) error {
	builder, err := newBuilder(c)
	if err != nil {
		return err
	}

	namespace := builder.AllPath()
	if !c.Bool("resolve") {
		fmt.Println(namespace)
		return nil
	}

	env := c.String("env")
	if env == "" {
		return fmt.Errorf("--env is required with --resolve")
	}

	container, err := di.New(env)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	store := di.MustGet[services.ParameterStore](container)
	parameters, err := store.ListByPath(c.Context, namespace)
	if err != nil {
		return err
	}

	if len(parameters) == 0 {
		fmt.Printf("No parameters under %s\n", namespace)
		return nil
	}

	width := 0
	for _, parameter := range parameters {
		if len(parameter.Name) > width {
			width = len(parameter.Name)
		}
	}
	for _, parameter := range parameters {
		fmt.Printf("%s%s  %s\n", parameter.Name, strings.Repeat(" ", width-len(parameter.Name)), parameter.Value)
	}

	logger.Info().
		Str("namespace", namespace).
		Int("parameters", len(parameters)).
		Msg("Listed parameter namespace")

	return nil
}

func newBuilder(c *cli.Context) (*paths.Builder, error) {
	specFile := filepath.Join(c.String("config-dir"), "ssm_paths.yaml")
	return paths.NewBuilder(c.String("tenant-id"), c.String("target-env"), specFile)
}
