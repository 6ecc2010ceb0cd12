package di

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/clusterfleet/infra-provisioner/internal/dao/assemblydao"
	"github.com/clusterfleet/infra-provisioner/internal/orchestrator"
	"github.com/clusterfleet/infra-provisioner/internal/policy"
	"github.com/clusterfleet/infra-provisioner/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	// Check if SSM should be disabled (local development)
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation
// Uses SSM Parameter Store in AWS, falls back to an in-memory store when disabled
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Info().Msg("Using in-memory parameter store (SSM disabled)")
		return services.NewMemoryParameterStore(nil)
	}

	return services.NewSSMParameterStore(ssmClient)
}

func ProvideNotificationService(client *sns.Client) *services.NotificationService {
	return services.NewNotificationService(client)
}

func ProvideAssemblyDAO(env string, client *dynamodb.Client) *assemblydao.DAO {
	return assemblydao.New(client, assemblydao.TableName(env))
}

func ProvideOrchestrator(sfnClient *sfn.Client, dao *assemblydao.DAO) *orchestrator.Orchestrator {
	return orchestrator.New(sfnClient, dao)
}

func ProvideGuard() (*policy.Guard, error) {
	return policy.NewGuard()
}
