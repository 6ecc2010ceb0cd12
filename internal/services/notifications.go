package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
)

// NotificationService manages the SNS topic and e-mail subscriptions behind a
// pipeline's notification binding. It is only invoked when the pipeline
// carries an approval gate.
type NotificationService struct {
	client *sns.Client
}

func NewNotificationService(client *sns.Client) *NotificationService {
	return &NotificationService{client: client}
}

// EnsureTopic creates the topic if needed and returns its ARN. CreateTopic is
// idempotent for an unchanged name.
func (s *NotificationService) EnsureTopic(ctx context.Context, name string) (string, error) {
	result, err := s.client.CreateTopic(ctx, &sns.CreateTopicInput{
		Name: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create topic %s: %w", name, err)
	}

	return aws.ToString(result.TopicArn), nil
}

// Subscribe adds e-mail subscriptions for the given addresses. Each address
// receives a confirmation message; SNS deduplicates already-confirmed
// subscriptions on its side.
func (s *NotificationService) Subscribe(ctx context.Context, topicARN string, addresses []string) error {
	logger := zerolog.Ctx(ctx)

	for _, address := range addresses {
		_, err := s.client.Subscribe(ctx, &sns.SubscribeInput{
			TopicArn: aws.String(topicARN),
			Protocol: aws.String("email"),
			Endpoint: aws.String(address),
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe %s to %s: %w", address, topicARN, err)
		}

		logger.Info().
			Str("topic_arn", topicARN).
			Str("address", address).
			Msg("subscribed address to pipeline notifications")
	}

	return nil
}
