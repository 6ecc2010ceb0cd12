package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/di"
	"github.com/clusterfleet/infra-provisioner/internal/errors"
)

// StatusInput asks for the state of one stack.
type StatusInput struct {
	StackName string `json:"stack_name"`
}

// StatusResult is the projection the state machine branches on.
type StatusResult struct {
	StackName string `json:"stack_name"`
	Status    string `json:"status"`
	Done      bool   `json:"done"`
	Failed    bool   `json:"failed"`
	Reason    string `json:"reason,omitempty"`
}

type Handler struct {
	cfClient *cloudformation.Client
}

func NewHandler(ctx context.Context) (*Handler, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Handler{cfClient: cloudformation.NewFromConfig(cfg)}, nil
}

func (h *Handler) HandleStatus(ctx context.Context, input *StatusInput) (*StatusResult, error) {
	logger := zerolog.Ctx(ctx)

	output, err := h.cfClient.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(input.StackName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe stack %s: %w", input.StackName, err)
	}
	if len(output.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrStackNotFound, input.StackName)
	}

	stack := output.Stacks[0]
	result := projectStatus(input.StackName, stack.StackStatus, aws.ToString(stack.StackStatusReason))

	logger.Info().
		Str("stack_name", result.StackName).
		Str("status", result.Status).
		Bool("done", result.Done).
		Bool("failed", result.Failed).
		Msg("Stack status")

	if result.Failed {
		h.logRecentEvents(ctx, input.StackName)
	}

	return result, nil
}

// projectStatus reduces a CloudFormation status to the done/failed pair the
// state machine needs.
func projectStatus(stackName string, status types.StackStatus, reason string) *StatusResult {
	s := string(status)

	failed := strings.Contains(s, "FAILED") ||
		strings.Contains(s, "ROLLBACK_COMPLETE") ||
		strings.Contains(s, "ROLLBACK_IN_PROGRESS")
	done := failed || strings.HasSuffix(s, "_COMPLETE")

	result := &StatusResult{
		StackName: stackName,
		Status:    s,
		Done:      done,
		Failed:    failed,
	}
	if failed {
		result.Reason = reason
	}
	return result
}

func (h *Handler) logRecentEvents(ctx context.Context, stackName string) {
	logger := zerolog.Ctx(ctx)

	output, err := h.cfClient.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to describe stack events")
		return
	}

	const maxEvents = 10
	for i, event := range output.StackEvents {
		if i >= maxEvents {
			break
		}
		logger.Info().
			Str("resource", aws.ToString(event.LogicalResourceId)).
			Str("status", string(event.ResourceStatus)).
			Str("reason", aws.ToString(event.ResourceStatusReason)).
			Msg("Stack event")
	}
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "stack-status").Logger()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Lambda mode
		handler, err := NewHandler(context.Background())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		wrappedHandler := func(ctx context.Context, input *StatusInput) (*StatusResult, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleStatus(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "stack-status",
		Usage: "Report the status of a CloudFormation stack",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stack-name",
				Usage:    "Stack to inspect",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(context.Background())

			handler, err := NewHandler(ctx)
			if err != nil {
				return err
			}

			result, err := handler.HandleStatus(ctx, &StatusInput{StackName: c.String("stack-name")})
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
