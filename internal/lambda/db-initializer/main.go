package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/constants"
	"github.com/clusterfleet/infra-provisioner/internal/di"
	"github.com/clusterfleet/infra-provisioner/internal/errors"
	"github.com/clusterfleet/infra-provisioner/internal/services"
)

// InitInput lists the database stacks whose initialization scripts should
// run. The assembler attaches a script reference only to stacks that declare
// one.
type InitInput struct {
	Scripts []ScriptRef `json:"scripts"`
}

// ScriptRef pairs a database stack with its SQL script.
type ScriptRef struct {
	Stack  string `json:"stack"`
	Script string `json:"script"`
}

// InitResult reports the databases created per stack.
type InitResult struct {
	Created map[string][]string `json:"created"`
}

type Handler struct {
	s3Client *s3.Client
	secrets  *services.SecretsManagerService
	bucket   string
}

func NewHandler(ctx context.Context) (*Handler, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	secrets, err := services.NewSecretsManagerService()
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager service: %w", err)
	}

	bucket := os.Getenv(constants.EnvStacksBucket)
	if bucket == "" {
		return nil, fmt.Errorf("%s environment variable is required", constants.EnvStacksBucket)
	}

	return &Handler{
		s3Client: s3.NewFromConfig(cfg),
		secrets:  secrets,
		bucket:   bucket,
	}, nil
}

// HandleInit runs every script's CREATE DATABASE statements against the
// stack's database server, creating only the databases that don't exist yet.
// Idempotent: a second run is a no-op.
func (h *Handler) HandleInit(ctx context.Context, input *InitInput) (result *InitResult, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Int("scripts", len(input.Scripts)).
			Dur("duration", time.Since(begin)).
			Msg("HandleInit completed")
	}(time.Now())

	if len(input.Scripts) == 0 {
		return nil, errors.ErrNoDatabaseScript
	}

	result = &InitResult{Created: make(map[string][]string)}
	for _, ref := range input.Scripts {
		created, err := h.initDatabases(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize databases for %s: %w", ref.Stack, err)
		}
		result.Created[ref.Stack] = created
	}

	return result, nil
}

func (h *Handler) initDatabases(ctx context.Context, ref ScriptRef) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	script, err := h.downloadScript(ctx, ref.Script)
	if err != nil {
		return nil, err
	}

	wanted := ParseDatabaseNames(script)
	if len(wanted) == 0 {
		logger.Warn().Str("script", ref.Script).Msg("Script contains no CREATE DATABASE statements")
		return nil, nil
	}

	// The database stack stores its admin credentials under
	// {stack}-credentials.
	creds, err := h.secrets.GetDatabaseCredentials(ctx, ref.Stack+"-credentials")
	if err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, connString(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", creds.Host, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer conn.Close(ctx)

	existing, err := listDatabases(ctx, conn)
	if err != nil {
		return nil, err
	}

	var created []string
	for _, name := range MissingDatabases(existing, wanted) {
		// CREATE DATABASE cannot run inside a transaction; pgx executes
		// single statements in autocommit mode.
		if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
			return nil, fmt.Errorf("failed to create database %s: %w", name, err)
		}
		logger.Info().Str("database", name).Str("stack", ref.Stack).Msg("Created database")
		created = append(created, name)
	}

	return created, nil
}

func connString(creds *services.DatabaseCredentials) string {
	// Connect to the maintenance database; the target databases may not
	// exist yet.
	return fmt.Sprintf("postgres://%s:%s@%s:%d/postgres", creds.Username, creds.Password, creds.Host, creds.Port)
}

func listDatabases(ctx context.Context, conn *pgx.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, "SELECT datname FROM pg_database WHERE datistemplate = false")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		existing[name] = true
	}

	return existing, rows.Err()
}

var createDatabasePattern = regexp.MustCompile(`(?i)CREATE\s+DATABASE\s+"([^"]+)"`)

// ParseDatabaseNames extracts the quoted database names from every
// CREATE DATABASE statement in the script, preserving order.
func ParseDatabaseNames(script string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range createDatabasePattern.FindAllStringSubmatch(script, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// MissingDatabases returns the wanted databases that don't exist yet,
// preserving the script order.
func MissingDatabases(existing map[string]bool, wanted []string) []string {
	var missing []string
	for _, name := range wanted {
		if !existing[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func (h *Handler) downloadScript(ctx context.Context, script string) (string, error) {
	key := "scripts/" + script

	result, err := h.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get script %s from bucket %s: %w", key, h.bucket, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read script content: %w", err)
	}

	return string(content), nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "db-initializer").Logger()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Lambda mode
		handler, err := NewHandler(context.Background())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		wrappedHandler := func(ctx context.Context, input *InitInput) (*InitResult, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleInit(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "db-initializer",
		Usage: "Create the databases a stack's SQL script declares",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stack",
				Usage:    "Database stack name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "script",
				Usage:    "SQL script name",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(context.Background())

			handler, err := NewHandler(ctx)
			if err != nil {
				return err
			}

			result, err := handler.HandleInit(ctx, &InitInput{
				Scripts: []ScriptRef{
					{Stack: c.String("stack"), Script: c.String("script")},
				},
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
