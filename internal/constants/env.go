package constants

// Environment variable names shared between the CLI and the Lambda
// collaborators.
const (
	// EnvDeployerEnv selects the provisioner environment (dev, stg, prd)
	// that namespaces the assembly table and execution-engine resources
	EnvDeployerEnv = "ENV"

	// EnvStacksBucket is the S3 bucket holding rendered stack templates
	EnvStacksBucket = "STACKS_BUCKET"

	// EnvPipelineRoleARN is the fallback role Step Functions assumes when
	// the config document does not set pipeline_role_arn
	EnvPipelineRoleARN = "PIPELINE_ROLE_ARN"
)
