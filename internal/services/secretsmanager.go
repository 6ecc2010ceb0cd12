package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type SecretsManagerService struct {
	client *secretsmanager.Client
}

func NewSecretsManagerService() (*SecretsManagerService, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SecretsManagerService{
		client: secretsmanager.NewFromConfig(cfg),
	}, nil
}

// DatabaseCredentials is the JSON shape the database stacks store for their
// admin credentials.
type DatabaseCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
}

// GetSecret retrieves a secret value by path from AWS Secrets Manager
func (s *SecretsManagerService) GetSecret(ctx context.Context, secretPath string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretPath),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", secretPath, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretPath)
	}

	return *result.SecretString, nil
}

// GetDatabaseCredentials retrieves and decodes the database admin credentials
// stored under the given secret path.
func (s *SecretsManagerService) GetDatabaseCredentials(ctx context.Context, secretPath string) (*DatabaseCredentials, error) {
	raw, err := s.GetSecret(ctx, secretPath)
	if err != nil {
		return nil, err
	}

	var creds DatabaseCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal database credentials: %w", err)
	}

	if creds.Username == "" || creds.Host == "" {
		return nil, fmt.Errorf("database credentials in %s are missing username or host", secretPath)
	}
	if creds.Port == 0 {
		creds.Port = 5432
	}

	return &creds, nil
}
