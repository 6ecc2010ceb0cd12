package orchestrator

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/clusterfleet/infra-provisioner/internal/pipeline"
)

// RenderInput carries the execution-engine resources a rendered state machine
// refers to. TopicARN is required only when the pipeline has an approval gate
// or a notification binding.
type RenderInput struct {
	StageDeployerARN string
	StackStatusARN   string
	DBInitializerARN string
	CodeBuildProject string
	TopicARN         string
	ProjectTags      map[string]string
}

// Render turns an assembled pipeline into an Amazon States Language
// definition. Stages become Lambda task states, each followed by a Map state
// that polls the stack-status function until every stack of the stage reaches
// a terminal state, waves become CodeBuild startBuild.sync tasks, the
// approval gate becomes an SNS publish with waitForTaskToken so the
// block/resume is a durable Step Functions checkpoint, and the notification
// binding adds publish states at start and success plus a failure catch on
// every task.
func Render(spec *pipeline.Spec, in RenderInput) (string, error) {
	binding := spec.Notification()
	if (binding != nil || spec.Gate() != nil) && in.TopicARN == "" {
		return "", fmt.Errorf("topic ARN is required to render pipeline %s", spec.Name)
	}

	states := map[string]any{}
	var order []string

	if binding != nil {
		states["NotifyStarted"] = publishState(in.TopicARN,
			fmt.Sprintf("Pipeline %s execution started", spec.Name), string(pipeline.EventStarted))
		order = append(order, "NotifyStarted")
	}

	for _, node := range spec.Nodes {
		switch n := node.(type) {
		case *pipeline.Stage:
			name := "Stage-" + n.Name
			states[name] = stageState(n, in)
			order = append(order, name)

			if len(n.Stacks) > 0 {
				states["Verify-"+n.Name] = verifyState(in)
				order = append(order, "Verify-"+n.Name)
			}

			if n.Name == "infra" && stageHasDBScripts(n) {
				states["InitDatabases"] = dbInitializerState(n, in)
				order = append(order, "InitDatabases")
			}
		case *pipeline.Wave:
			for _, step := range n.Steps {
				name := "Wave-" + step.Name
				states[name] = waveState(step, in)
				order = append(order, name)
			}
		case *pipeline.ApprovalGate:
			name := "Approval-" + n.Name
			states[name] = approvalState(spec, in)
			order = append(order, name)
		case *pipeline.NotificationBinding:
			states["NotifySucceeded"] = publishState(in.TopicARN,
				fmt.Sprintf("Pipeline %s execution succeeded", spec.Name), string(pipeline.EventSucceeded))
			order = append(order, "NotifySucceeded")
		default:
			return "", fmt.Errorf("unknown pipeline node kind %s", node.NodeKind())
		}
	}

	if len(order) == 0 {
		return "", fmt.Errorf("pipeline %s has no nodes to render", spec.Name)
	}

	// Chain the states and, when notifications are wired, catch every task
	// failure into a single failure publish.
	for i, name := range order {
		state := states[name].(map[string]any)
		if i < len(order)-1 {
			state["Next"] = order[i+1]
		} else {
			state["End"] = true
		}
		if binding != nil && name != "NotifyStarted" && name != "NotifySucceeded" {
			state["Catch"] = []any{
				map[string]any{
					"ErrorEquals": []string{"States.ALL"},
					"Next":        "NotifyFailed",
				},
			}
		}
	}

	if binding != nil {
		failed := publishState(in.TopicARN,
			fmt.Sprintf("Pipeline %s execution failed", spec.Name), string(pipeline.EventFailed))
		failed["Next"] = "ExecutionFailed"
		states["NotifyFailed"] = failed
		states["ExecutionFailed"] = map[string]any{
			"Type":  "Fail",
			"Error": "PipelineExecutionFailed",
		}
	}

	definition := map[string]any{
		"Comment": fmt.Sprintf("Deployment pipeline for %s/%s", spec.TenantID, spec.Environment),
		"StartAt": order[0],
		"States":  states,
	}

	data, err := json.Marshal(definition)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state machine definition: %w", err)
	}

	return string(data), nil
}

func stageHasDBScripts(stage *pipeline.Stage) bool {
	for _, ref := range stage.Stacks {
		if ref.DBScript != "" {
			return true
		}
	}
	return false
}

func stageState(stage *pipeline.Stage, in RenderInput) map[string]any {
	stacks := make([]any, 0, len(stage.Stacks))
	for _, ref := range stage.Stacks {
		stacks = append(stacks, ref.Name)
	}

	params := map[string]any{
		"stage":   stage.Name,
		"account": stage.Account,
		"region":  stage.Region,
		"stacks":  stacks,
	}
	if len(in.ProjectTags) > 0 {
		params["tags"] = in.ProjectTags
	}

	return map[string]any{
		"Type":       "Task",
		"Resource":   in.StageDeployerARN,
		"Parameters": params,
	}
}

// verifyState polls the stack-status function for each stack the preceding
// stage reported until it settles. CreateStack and UpdateStack return before
// the stack converges, so the pipeline must not advance on the API call
// alone. A failed stack fails its iteration and with it the whole Map state.
func verifyState(in RenderInput) map[string]any {
	return map[string]any{
		"Type":      "Map",
		"ItemsPath": "$.stacks",
		"Iterator": map[string]any{
			"StartAt": "CheckStack",
			"States": map[string]any{
				"CheckStack": map[string]any{
					"Type":     "Task",
					"Resource": in.StackStatusARN,
					"Parameters": map[string]any{
						"stack_name.$": "$.stack_name",
					},
					"ResultPath": "$.status",
					"Next":       "IsStable",
				},
				"IsStable": map[string]any{
					"Type": "Choice",
					"Choices": []any{
						map[string]any{
							"Variable":      "$.status.failed",
							"BooleanEquals": true,
							"Next":          "StackFailed",
						},
						map[string]any{
							"Variable":      "$.status.done",
							"BooleanEquals": true,
							"Next":          "StackReady",
						},
					},
					"Default": "WaitForStack",
				},
				"WaitForStack": map[string]any{
					"Type":    "Wait",
					"Seconds": 30,
					"Next":    "CheckStack",
				},
				"StackFailed": map[string]any{
					"Type":  "Fail",
					"Error": "StackDeploymentFailed",
				},
				"StackReady": map[string]any{
					"Type": "Succeed",
				},
			},
		},
	}
}

func dbInitializerState(stage *pipeline.Stage, in RenderInput) map[string]any {
	scripts := make([]any, 0)
	for _, ref := range stage.Stacks {
		if ref.DBScript != "" {
			scripts = append(scripts, map[string]any{
				"stack":  ref.Name,
				"script": ref.DBScript,
			})
		}
	}

	return map[string]any{
		"Type":     "Task",
		"Resource": in.DBInitializerARN,
		"Parameters": map[string]any{
			"scripts": scripts,
		},
	}
}

func waveState(step pipeline.Step, in RenderInput) map[string]any {
	overrides := make([]any, 0, len(step.Env))
	for _, key := range sortedKeys(step.Env) {
		overrides = append(overrides, map[string]any{
			"Name":  key,
			"Value": step.Env[key],
			"Type":  "PLAINTEXT",
		})
	}

	return map[string]any{
		"Type":     "Task",
		"Resource": "arn:aws:states:::codebuild:startBuild.sync",
		"Parameters": map[string]any{
			"ProjectName":                  in.CodeBuildProject,
			"EnvironmentVariablesOverride": overrides,
		},
	}
}

func approvalState(spec *pipeline.Spec, in RenderInput) map[string]any {
	return map[string]any{
		"Type":     "Task",
		"Resource": "arn:aws:states:::sns:publish.waitForTaskToken",
		"Parameters": map[string]any{
			"TopicArn": in.TopicARN,
			"Message": map[string]any{
				"event":         string(pipeline.EventApprovalNeeded),
				"pipeline":      spec.Name,
				"tenant_id":     spec.TenantID,
				"environment":   spec.Environment,
				"taskToken.$":   "$$.Task.Token",
				"executionId.$": "$$.Execution.Id",
			},
		},
	}
}

func publishState(topicARN, message, event string) map[string]any {
	return map[string]any{
		"Type":     "Task",
		"Resource": "arn:aws:states:::sns:publish",
		"Parameters": map[string]any{
			"TopicArn": topicARN,
			"Message":  message,
			"MessageAttributes": map[string]any{
				"event": map[string]any{
					"DataType":    "String",
					"StringValue": event,
				},
			},
		},
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
