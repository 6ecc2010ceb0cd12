package configstore

import (
	"fmt"
)

// DeployConfig is the typed view of the "config" document: settings of the
// deployment account itself. It is constructed once at process start and
// threaded explicitly through constructors; nothing reads it ambiently.
type DeployConfig struct {
	DeploymentAccount  string                 `yaml:"deployment_account"`
	DeploymentRegion   string                 `yaml:"deployment_region"`
	CodeConnectionARN  string                 `yaml:"code_connection_arn"`
	DeploymentBranch   string                 `yaml:"deployment_branch_name"`
	GitHubOwner        string                 `yaml:"github_owner"`
	GitHubRepo         string                 `yaml:"github_repo"`
	KubernetesVersion  string                 `yaml:"kubernetes_version"`
	KarpenterVersion   string                 `yaml:"karpenter_version"`
	HostedZone         string                 `yaml:"hosted_zone"`
	IdentityCenterARN  string                 `yaml:"identity_center_instance_arn"`
	OrganizationID     string                 `yaml:"organization_id"`
	PipelineRoleARN    string                 `yaml:"pipeline_role_arn"`
	EmailSubscriptions []string               `yaml:"email_subscriptions"`
	ProjectTags        map[string]string      `yaml:"project_tags"`
	Applications       map[string]Application `yaml:"applications"`
}

// Application holds the per-application infrastructure settings. DBScriptName
// is optional: a database-initialization step is attached to the application's
// stack only when it is present.
type Application struct {
	DatabaseEngine string `yaml:"database_engine"`
	InstanceClass  string `yaml:"instance_class"`
	DBScriptName   string `yaml:"db_script_name"`
}

// DecodeDeployConfig extracts the typed deployment configuration from the
// "config" document.
func DecodeDeployConfig(tree Tree) (*DeployConfig, error) {
	cfg, err := DecodeDocument[DeployConfig](tree, "config")
	if err != nil {
		return nil, err
	}
	if cfg.DeploymentAccount == "" || cfg.DeploymentRegion == "" {
		return nil, fmt.Errorf("config document must set deployment_account and deployment_region")
	}
	return &cfg, nil
}
