package main

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/clusterfleet/infra-provisioner/internal/constants"
	"github.com/clusterfleet/infra-provisioner/internal/di"
	"github.com/clusterfleet/infra-provisioner/internal/utils"
)

// StageInput is one pipeline stage task: deploy every stack of the stage into
// the target account.
type StageInput struct {
	Stage      string            `json:"stage"`
	Account    string            `json:"account"`
	Region     string            `json:"region"`
	Stacks     []string          `json:"stacks"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// StackResult reports one stack operation.
type StackResult struct {
	StackName string `json:"stack_name"`
	StackID   string `json:"stack_id"`
	Operation string `json:"operation"`
}

// StageResult reports the whole stage.
type StageResult struct {
	Stage  string        `json:"stage"`
	Stacks []StackResult `json:"stacks"`
}

type Handler struct {
	cfClient *cloudformation.Client
	s3Client *s3.Client
	bucket   string
}

func NewHandler(ctx context.Context) (*Handler, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	bucket := os.Getenv(constants.EnvStacksBucket)
	if bucket == "" {
		return nil, fmt.Errorf("%s environment variable is required", constants.EnvStacksBucket)
	}

	return &Handler{
		cfClient: cloudformation.NewFromConfig(cfg),
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucket,
	}, nil
}

// HandleStage deploys the stage's stacks sequentially. Templates live in S3
// under stacks/{stage}/{stack}.template.
func (h *Handler) HandleStage(ctx context.Context, input *StageInput) (result *StageResult, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("stage", input.Stage).
			Int("stacks", len(input.Stacks)).
			Dur("duration", time.Since(begin)).
			Msg("HandleStage completed")
	}(time.Now())

	result = &StageResult{Stage: input.Stage}
	for _, stackName := range input.Stacks {
		stackResult, err := h.deployStack(ctx, input, stackName)
		if err != nil {
			return nil, fmt.Errorf("failed to deploy stack %s: %w", stackName, err)
		}
		result.Stacks = append(result.Stacks, *stackResult)
	}

	return result, nil
}

func (h *Handler) deployStack(ctx context.Context, input *StageInput, stackName string) (*StackResult, error) {
	logger := zerolog.Ctx(ctx)

	template, err := h.downloadS3Object(ctx, h.bucket, templateKey(input.Stage, stackName))
	if err != nil {
		return nil, fmt.Errorf("failed to download template: %w", err)
	}

	parameters := utils.MergeParameters(input.Parameters)
	tags := utils.StackTags(input.Tags)

	logger.Info().
		Str("stack_name", stackName).
		Str("stage", input.Stage).
		Str("account", input.Account).
		Msg("Deploying stack")

	exists, err := h.stackExists(ctx, stackName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if stack exists: %w", err)
	}

	var result *StackResult
	if exists {
		result, err = h.updateStack(ctx, stackName, template, parameters, tags)
		if err != nil {
			return nil, err
		}
		result.Operation = "UPDATE"
	} else {
		result, err = h.createStack(ctx, stackName, template, parameters, tags)
		if err != nil {
			return nil, err
		}
		result.Operation = "CREATE"
	}

	return result, nil
}

// templateKey locates a stage's stack template within the stacks bucket.
func templateKey(stage, stack string) string {
	return fmt.Sprintf("stacks/%s/%s.template", stage, stack)
}

// stackMissing reports whether err is DescribeStacks telling us the stack
// does not exist yet.
func stackMissing(err error) bool {
	var apiErr smithy.APIError
	if goerrors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" ||
			strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}

// noUpdates reports whether err is UpdateStack declining a template and
// parameter set identical to what is already deployed.
func noUpdates(err error) bool {
	var apiErr smithy.APIError
	if goerrors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" &&
			(strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed") ||
				strings.Contains(apiErr.ErrorMessage(), "No updates to be performed"))
	}
	return false
}

func (h *Handler) stackExists(ctx context.Context, stackName string) (bool, error) {
	_, err := h.cfClient.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if stackMissing(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (h *Handler) createStack(
	ctx context.Context,
	stackName, template string,
	parameters []types.Parameter,
	tags []types.Tag,
) (*StackResult, error) {
	input := &cloudformation.CreateStackInput{
		StackName:    aws.String(stackName),
		TemplateBody: aws.String(template),
		Parameters:   parameters,
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
			types.CapabilityCapabilityNamedIam,
		},
		Tags: tags,
	}

	result, err := h.cfClient.CreateStack(ctx, input)
	if err != nil {
		return nil, err
	}

	return &StackResult{
		StackName: stackName,
		StackID:   aws.ToString(result.StackId),
	}, nil
}

func (h *Handler) updateStack(
	ctx context.Context,
	stackName, template string,
	parameters []types.Parameter,
	tags []types.Tag,
) (*StackResult, error) {
	logger := zerolog.Ctx(ctx)

	input := &cloudformation.UpdateStackInput{
		StackName:    aws.String(stackName),
		TemplateBody: aws.String(template),
		Parameters:   parameters,
		Capabilities: []types.Capability{
			types.CapabilityCapabilityIam,
			types.CapabilityCapabilityNamedIam,
		},
		Tags: tags,
	}

	result, err := h.cfClient.UpdateStack(ctx, input)
	if err != nil {
		if noUpdates(err) {
			logger.Info().Str("stack_name", stackName).Msg("No updates needed for stack")
			return &StackResult{
				StackName: stackName,
				StackID:   stackName,
			}, nil
		}
		return nil, err
	}

	return &StackResult{
		StackName: stackName,
		StackID:   aws.ToString(result.StackId),
	}, nil
}

func (h *Handler) downloadS3Object(ctx context.Context, bucket, key string) (s string, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Int("length", len(s)).
			Interface("error", err).
			Str("bucket", bucket).
			Str("key", key).
			Dur("duration", time.Since(begin)).
			Msg("Downloaded S3 object")
	}(time.Now())

	result, err := h.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get object %s from bucket %s: %w", key, bucket, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read object content: %w", err)
	}

	return string(content), nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "stage-deployer").Logger()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Lambda mode
		handler, err := NewHandler(context.Background())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		wrappedHandler := func(ctx context.Context, input *StageInput) (*StageResult, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleStage(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "stage-deployer",
		Usage: "Deploy the stacks of one pipeline stage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stage",
				Usage:    "Stage name (network, infra, post-deploy)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "account",
				Usage:    "Target account id",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "region",
				Usage:   "Target region",
				EnvVars: []string{"AWS_REGION"},
				Value:   "us-east-1",
			},
			&cli.StringSliceFlag{
				Name:     "stack",
				Usage:    "Stack name(s) to deploy (can be specified multiple times)",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(context.Background())

			handler, err := NewHandler(ctx)
			if err != nil {
				return err
			}

			result, err := handler.HandleStage(ctx, &StageInput{
				Stage:   c.String("stage"),
				Account: c.String("account"),
				Region:  c.String("region"),
				Stacks:  c.StringSlice("stack"),
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
