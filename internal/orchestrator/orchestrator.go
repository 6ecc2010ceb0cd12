// Package orchestrator submits assembled pipelines to Step Functions. The
// assembler only describes structure; the execution engine owns the actual
// block/resume of the approval gate and all timeout policy.
package orchestrator

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/aws/smithy-go"
	"github.com/clusterfleet/infra-provisioner/internal/dao/assemblydao"
	"github.com/clusterfleet/infra-provisioner/internal/errors"
)

// Orchestrator manages the state machine and execution lifecycle for
// assembled pipelines.
type Orchestrator struct {
	sfnClient *sfn.Client
	dao       *assemblydao.DAO
}

// New creates a new Orchestrator instance.
func New(sfnClient *sfn.Client, dao *assemblydao.DAO) *Orchestrator {
	return &Orchestrator{
		sfnClient: sfnClient,
		dao:       dao,
	}
}

// ApplyInput describes the state machine to create or update.
type ApplyInput struct {
	Name       string
	Definition string
	RoleARN    string
}

// Apply creates the state machine, or updates its definition when it already
// exists. Returns the state machine ARN.
func (o *Orchestrator) Apply(ctx context.Context, input ApplyInput) (string, error) {
	result, err := o.sfnClient.CreateStateMachine(ctx, &sfn.CreateStateMachineInput{
		Name:       aws.String(input.Name),
		Definition: aws.String(input.Definition),
		RoleArn:    aws.String(input.RoleARN),
		Type:       types.StateMachineTypeStandard,
	})
	if err == nil {
		return aws.ToString(result.StateMachineArn), nil
	}

	var apiErr smithy.APIError
	if !goerrors.As(err, &apiErr) || apiErr.ErrorCode() != "StateMachineAlreadyExists" {
		return "", fmt.Errorf("failed to create state machine %s: %w", input.Name, err)
	}

	arn, err := o.findStateMachine(ctx, input.Name)
	if err != nil {
		return "", err
	}

	_, err = o.sfnClient.UpdateStateMachine(ctx, &sfn.UpdateStateMachineInput{
		StateMachineArn: aws.String(arn),
		Definition:      aws.String(input.Definition),
		RoleArn:         aws.String(input.RoleARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to update state machine %s: %w", input.Name, err)
	}

	return arn, nil
}

func (o *Orchestrator) findStateMachine(ctx context.Context, name string) (string, error) {
	var nextToken *string
	for {
		result, err := o.sfnClient.ListStateMachines(ctx, &sfn.ListStateMachinesInput{
			NextToken: nextToken,
		})
		if err != nil {
			return "", fmt.Errorf("failed to list state machines: %w", err)
		}

		for _, machine := range result.StateMachines {
			if aws.ToString(machine.Name) == name {
				return aws.ToString(machine.StateMachineArn), nil
			}
		}

		if result.NextToken == nil {
			return "", fmt.Errorf("%w: %s", errors.ErrStateMachineMissing, name)
		}
		nextToken = result.NextToken
	}
}

// StartInput describes one pipeline execution.
type StartInput struct {
	StateMachineARN string
	TenantID        string
	Environment     string
	SK              string
}

// Start begins an execution and atomically marks the assembly record STARTED
// with the execution ARN.
func (o *Orchestrator) Start(ctx context.Context, input StartInput) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"tenant_id":   input.TenantID,
		"environment": input.Environment,
		"sk":          input.SK,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal execution input: %w", err)
	}

	executionName := fmt.Sprintf("%s-%s-%s", input.TenantID, input.Environment, input.SK)

	result, err := o.sfnClient.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(input.StateMachineARN),
		Name:            aws.String(executionName),
		Input:           aws.String(string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start pipeline execution: %w", err)
	}

	executionARN := aws.ToString(result.ExecutionArn)

	pk := assemblydao.NewPK(input.TenantID, input.Environment)
	if err := o.dao.StartExecution(ctx, pk, input.SK, executionARN); err != nil {
		return "", fmt.Errorf("failed to update assembly record: %w", err)
	}

	return executionARN, nil
}

// Approve forwards the approval-gate task token, letting the execution
// proceed past the gate.
func (o *Orchestrator) Approve(ctx context.Context, taskToken, comment string) error {
	if strings.TrimSpace(taskToken) == "" {
		return errors.ErrTaskTokenRequired
	}

	output, err := json.Marshal(map[string]any{
		"approved": true,
		"comment":  comment,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal approval output: %w", err)
	}

	_, err = o.sfnClient.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	})
	if err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	return nil
}

// Reject fails the approval gate; the execution takes its failure path.
func (o *Orchestrator) Reject(ctx context.Context, taskToken, cause string) error {
	if strings.TrimSpace(taskToken) == "" {
		return errors.ErrTaskTokenRequired
	}

	_, err := o.sfnClient.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: aws.String(taskToken),
		Error:     aws.String("ApprovalRejected"),
		Cause:     aws.String(cause),
	})
	if err != nil {
		return fmt.Errorf("failed to send task failure: %w", err)
	}

	return nil
}
