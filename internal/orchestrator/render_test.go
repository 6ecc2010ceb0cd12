package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/clusterfleet/infra-provisioner/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderInput() RenderInput {
	return RenderInput{
		StageDeployerARN: "arn:aws:lambda:us-east-1:999999999999:function:stage-deployer",
		StackStatusARN:   "arn:aws:lambda:us-east-1:999999999999:function:stack-status",
		DBInitializerARN: "arn:aws:lambda:us-east-1:999999999999:function:db-initializer",
		CodeBuildProject: "acme-dev-pipeline-steps",
		TopicARN:         "arn:aws:sns:us-east-1:999999999999:acme-dev-cluster-approval",
		ProjectTags:      map[string]string{"project": "clusterfleet"},
	}
}

func gatedSpec() *pipeline.Spec {
	return &pipeline.Spec{
		Name:        "acme-dev-infra-pipeline",
		TenantID:    "acme",
		Environment: "dev",
		Nodes: []pipeline.Node{
			&pipeline.Stage{Name: "network", Account: "111111111111", Region: "us-east-1", Stacks: []pipeline.StackRef{{Name: "acme-dev-network"}}},
			&pipeline.Stage{Name: "infra", Account: "111111111111", Region: "us-east-1", Stacks: []pipeline.StackRef{
				{Name: "acme-dev-secrets"},
				{Name: "acme-dev-billing-database", DBScript: "init_billing.sql"},
			}},
			&pipeline.Wave{Name: "deploy-cluster", Steps: []pipeline.Step{{
				Name: "deploy-eks-cluster",
				Env:  map[string]string{"CLUSTER_NAME": "acme-dev-eks", "AWS_REGION": "us-east-1"},
			}}},
			&pipeline.Stage{Name: "post-deploy", Account: "111111111111", Region: "us-east-1"},
			&pipeline.Wave{Name: "config-cluster", Steps: []pipeline.Step{{Name: "config-eks-cluster"}}},
			&pipeline.ApprovalGate{Name: "manual-approval", TopicName: "acme-dev-cluster-approval"},
			&pipeline.Wave{Name: "deploy-apps", Steps: []pipeline.Step{{Name: "deploy-apps-into-cluster"}}},
			&pipeline.NotificationBinding{
				Name:      "pipeline-notifications",
				TopicName: "acme-dev-cluster-approval",
				Addresses: []string{"ops@example.com"},
				Events:    pipeline.LifecycleEvents,
			},
		},
	}
}

func decode(t *testing.T, definition string) (startAt string, states map[string]any) {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(definition), &doc))
	startAt, _ = doc["StartAt"].(string)
	states, _ = doc["States"].(map[string]any)
	return startAt, states
}

func stateChain(states map[string]any, startAt string) []string {
	var chain []string
	name := startAt
	for name != "" {
		chain = append(chain, name)
		state, ok := states[name].(map[string]any)
		if !ok {
			break
		}
		next, _ := state["Next"].(string)
		if _, end := state["End"]; end {
			break
		}
		name = next
	}
	return chain
}

func TestRender_GatedPipeline(t *testing.T) {
	definition, err := Render(gatedSpec(), renderInput())
	require.NoError(t, err)

	startAt, states := decode(t, definition)
	assert.Equal(t, "NotifyStarted", startAt)

	chain := stateChain(states, startAt)
	assert.Equal(t, []string{
		"NotifyStarted",
		"Stage-network",
		"Verify-network",
		"Stage-infra",
		"Verify-infra",
		"InitDatabases",
		"Wave-deploy-eks-cluster",
		"Stage-post-deploy",
		"Wave-config-eks-cluster",
		"Approval-manual-approval",
		"Wave-deploy-apps-into-cluster",
		"NotifySucceeded",
	}, chain)

	// The gate is a durable checkpoint: SNS publish with waitForTaskToken.
	approval := states["Approval-manual-approval"].(map[string]any)
	assert.Equal(t, "arn:aws:states:::sns:publish.waitForTaskToken", approval["Resource"])
	params := approval["Parameters"].(map[string]any)
	message := params["Message"].(map[string]any)
	assert.Equal(t, "$$.Task.Token", message["taskToken.$"])
	assert.Equal(t, string(pipeline.EventApprovalNeeded), message["event"])

	// Every task catches into the failure publish.
	infra := states["Stage-infra"].(map[string]any)
	require.Contains(t, infra, "Catch")
	catch := infra["Catch"].([]any)[0].(map[string]any)
	assert.Equal(t, "NotifyFailed", catch["Next"])

	// Failure path ends in a Fail state.
	failed := states["NotifyFailed"].(map[string]any)
	assert.Equal(t, "ExecutionFailed", failed["Next"])
	assert.Equal(t, "Fail", states["ExecutionFailed"].(map[string]any)["Type"])
}

func TestRender_UngatedPipeline(t *testing.T) {
	spec := &pipeline.Spec{
		Name:        "acme-dev-infra-pipeline",
		TenantID:    "acme",
		Environment: "dev",
		Nodes: []pipeline.Node{
			&pipeline.Stage{Name: "network"},
			&pipeline.Stage{Name: "infra"},
			&pipeline.Wave{Name: "deploy-cluster", Steps: []pipeline.Step{{Name: "deploy-eks-cluster"}}},
			&pipeline.Stage{Name: "post-deploy"},
			&pipeline.Wave{Name: "config-cluster", Steps: []pipeline.Step{{Name: "config-eks-cluster"}}},
			&pipeline.Wave{Name: "deploy-apps", Steps: []pipeline.Step{{Name: "deploy-apps-into-cluster"}}},
		},
	}

	in := renderInput()
	in.TopicARN = ""

	definition, err := Render(spec, in)
	require.NoError(t, err)

	startAt, states := decode(t, definition)
	assert.Equal(t, "Stage-network", startAt)

	// No notification infrastructure at all without the gate.
	assert.NotContains(t, states, "NotifyStarted")
	assert.NotContains(t, states, "NotifySucceeded")
	assert.NotContains(t, states, "NotifyFailed")
	for _, state := range states {
		assert.NotContains(t, state.(map[string]any), "Catch")
	}

	last := states["Wave-deploy-apps-into-cluster"].(map[string]any)
	assert.Equal(t, true, last["End"])
}

func TestRender_StackVerification(t *testing.T) {
	definition, err := Render(gatedSpec(), renderInput())
	require.NoError(t, err)

	_, states := decode(t, definition)
	verify := states["Verify-infra"].(map[string]any)
	assert.Equal(t, "Map", verify["Type"])
	assert.Equal(t, "$.stacks", verify["ItemsPath"])

	iterator := verify["Iterator"].(map[string]any)
	assert.Equal(t, "CheckStack", iterator["StartAt"])
	inner := iterator["States"].(map[string]any)

	check := inner["CheckStack"].(map[string]any)
	assert.Equal(t, renderInput().StackStatusARN, check["Resource"])
	assert.Equal(t, "$.stack_name", check["Parameters"].(map[string]any)["stack_name.$"])
	assert.Equal(t, "IsStable", check["Next"])

	// Failed beats done: ROLLBACK_COMPLETE projects as both.
	choice := inner["IsStable"].(map[string]any)
	choices := choice["Choices"].([]any)
	require.Len(t, choices, 2)
	assert.Equal(t, "$.status.failed", choices[0].(map[string]any)["Variable"])
	assert.Equal(t, "StackFailed", choices[0].(map[string]any)["Next"])
	assert.Equal(t, "$.status.done", choices[1].(map[string]any)["Variable"])
	assert.Equal(t, "StackReady", choices[1].(map[string]any)["Next"])
	assert.Equal(t, "WaitForStack", choice["Default"])

	wait := inner["WaitForStack"].(map[string]any)
	assert.Equal(t, float64(30), wait["Seconds"])
	assert.Equal(t, "CheckStack", wait["Next"])

	assert.Equal(t, "Fail", inner["StackFailed"].(map[string]any)["Type"])
	assert.Equal(t, "Succeed", inner["StackReady"].(map[string]any)["Type"])

	// Nothing deployed, nothing to verify.
	assert.NotContains(t, states, "Verify-post-deploy")
}

func TestRender_StageProjectTags(t *testing.T) {
	definition, err := Render(gatedSpec(), renderInput())
	require.NoError(t, err)

	_, states := decode(t, definition)
	stage := states["Stage-infra"].(map[string]any)
	params := stage["Parameters"].(map[string]any)
	assert.Equal(t, map[string]any{"project": "clusterfleet"}, params["tags"])

	in := renderInput()
	in.ProjectTags = nil
	definition, err = Render(gatedSpec(), in)
	require.NoError(t, err)

	_, states = decode(t, definition)
	stage = states["Stage-infra"].(map[string]any)
	assert.NotContains(t, stage["Parameters"].(map[string]any), "tags")
}

func TestRender_WaveEnvironmentOverrides(t *testing.T) {
	definition, err := Render(gatedSpec(), renderInput())
	require.NoError(t, err)

	_, states := decode(t, definition)
	wave := states["Wave-deploy-eks-cluster"].(map[string]any)
	assert.Equal(t, "arn:aws:states:::codebuild:startBuild.sync", wave["Resource"])

	params := wave["Parameters"].(map[string]any)
	assert.Equal(t, "acme-dev-pipeline-steps", params["ProjectName"])

	overrides := params["EnvironmentVariablesOverride"].([]any)
	require.Len(t, overrides, 2)
	// Sorted by name for deterministic definitions.
	first := overrides[0].(map[string]any)
	assert.Equal(t, "AWS_REGION", first["Name"])
	assert.Equal(t, "us-east-1", first["Value"])
}

func TestRender_DatabaseInitialization(t *testing.T) {
	definition, err := Render(gatedSpec(), renderInput())
	require.NoError(t, err)

	_, states := decode(t, definition)
	init := states["InitDatabases"].(map[string]any)
	params := init["Parameters"].(map[string]any)
	scripts := params["scripts"].([]any)
	require.Len(t, scripts, 1)

	script := scripts[0].(map[string]any)
	assert.Equal(t, "acme-dev-billing-database", script["stack"])
	assert.Equal(t, "init_billing.sql", script["script"])
}

func TestRender_GateRequiresTopic(t *testing.T) {
	in := renderInput()
	in.TopicARN = ""

	_, err := Render(gatedSpec(), in)
	assert.Error(t, err)
}
