package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clusterfleet/infra-provisioner/internal/configstore"
	"github.com/clusterfleet/infra-provisioner/internal/errors"
	"github.com/clusterfleet/infra-provisioner/internal/paths"
	"github.com/clusterfleet/infra-provisioner/internal/tenantenv"
	"github.com/clusterfleet/infra-provisioner/internal/versions"
)

// Config carries everything Assemble needs, resolved ahead of time and passed
// by value semantics: the assembler reads, never writes.
type Config struct {
	TenantID    string
	Environment string
	Tenant      *tenantenv.TenantConfig
	Deploy      *configstore.DeployConfig
	Paths       *paths.Builder
}

// ResourcePrefix is the {tenant}-{environment} prefix stamped on every
// resource the pipeline creates.
func (c Config) ResourcePrefix() string {
	return fmt.Sprintf("%s-%s", c.TenantID, c.Environment)
}

// Assemble produces the ordered pipeline for one tenant environment. The
// order is a hard invariant:
//
//	network stage -> infra stage -> cluster-deploy wave -> post-deploy stage
//	-> cluster-config wave -> [approval gate] -> application-deploy wave
//	-> [notification binding]
//
// The gate and the binding exist together or not at all: notifications are
// meaningless without a human in the loop. Every parameter path a wave
// declares is resolved here; an unresolvable input fails assembly before any
// provisioning side effect.
func Assemble(cfg Config) (*Spec, error) {
	if cfg.Tenant == nil || cfg.Deploy == nil || cfg.Paths == nil {
		return nil, &errors.AssemblyError{Node: "pipeline", Err: fmt.Errorf("incomplete assembly configuration")}
	}
	if cfg.Tenant.Account == "" || cfg.Tenant.Region == "" {
		return nil, &errors.AssemblyError{Node: "pipeline", Err: fmt.Errorf("tenant environment must define account and region")}
	}

	kubernetesVersion, err := versions.ParseKubernetes(cfg.Deploy.KubernetesVersion)
	if err != nil {
		return nil, &errors.AssemblyError{Node: "pipeline", Err: err}
	}
	karpenterVersion, err := versions.ParseKarpenter(cfg.Deploy.KarpenterVersion)
	if err != nil {
		return nil, &errors.AssemblyError{Node: "pipeline", Err: err}
	}

	prefix := cfg.ResourcePrefix()
	spec := &Spec{
		Name:        prefix + "-infra-pipeline",
		TenantID:    cfg.TenantID,
		Environment: cfg.Environment,
	}

	infraStage, err := infraStage(cfg, prefix)
	if err != nil {
		return nil, err
	}
	deployWave, err := clusterDeployWave(cfg, prefix, kubernetesVersion, karpenterVersion)
	if err != nil {
		return nil, err
	}
	configWave, err := clusterConfigWave(cfg, prefix, deployWave.Steps[0].Env)
	if err != nil {
		return nil, err
	}
	appsWave, err := applicationDeployWave(cfg, prefix)
	if err != nil {
		return nil, err
	}

	spec.Nodes = append(spec.Nodes,
		networkStage(cfg, prefix),
		infraStage,
		deployWave,
		postDeployStage(cfg, prefix),
		configWave,
	)

	if cfg.Tenant.EnableManualApproval {
		spec.Nodes = append(spec.Nodes, &ApprovalGate{
			Name:      "manual-approval",
			TopicName: prefix + "-cluster-approval",
		})
	}

	spec.Nodes = append(spec.Nodes, appsWave)

	if cfg.Tenant.EnableManualApproval {
		spec.Nodes = append(spec.Nodes, &NotificationBinding{
			Name:      "pipeline-notifications",
			TopicName: prefix + "-cluster-approval",
			Addresses: append([]string(nil), cfg.Deploy.EmailSubscriptions...),
			Events:    append([]EventKind(nil), LifecycleEvents...),
		})
	}

	return spec, nil
}

// networkStage produces the networking foundations every later node consumes.
func networkStage(cfg Config, prefix string) *Stage {
	return &Stage{
		Name:    "network",
		Account: cfg.Tenant.Account,
		Region:  cfg.Tenant.Region,
		Stacks: []StackRef{
			{Name: prefix + "-network"},
			{Name: prefix + "-dns"},
		},
	}
}

// infraStage produces cluster-adjacent resources, including one database
// stack per tenant application. Applications without infra settings in the
// deployment config are a configuration mismatch, caught here.
func infraStage(cfg Config, prefix string) (*Stage, error) {
	stage := &Stage{
		Name:    "infra",
		Account: cfg.Tenant.Account,
		Region:  cfg.Tenant.Region,
		Stacks: []StackRef{
			{Name: prefix + "-codebuild-role"},
			{Name: prefix + "-certificate"},
			{Name: prefix + "-filesystem"},
			{Name: prefix + "-secrets"},
		},
	}

	apps := append([]string(nil), cfg.Tenant.Applications...)
	sort.Strings(apps)
	for _, app := range apps {
		settings, ok := cfg.Deploy.Applications[app]
		if !ok {
			return nil, &errors.AssemblyError{
				Node: "infra",
				Err:  fmt.Errorf("application %q has no infra settings in the deployment config", app),
			}
		}
		stage.Stacks = append(stage.Stacks, StackRef{
			Name:     fmt.Sprintf("%s-%s-database", prefix, app),
			DBScript: settings.DBScriptName,
		})
	}

	return stage, nil
}

// postDeployStage wires DNS and workload identity, which must exist before
// application workloads can register.
func postDeployStage(cfg Config, prefix string) *Stage {
	return &Stage{
		Name:    "post-deploy",
		Account: cfg.Tenant.Account,
		Region:  cfg.Tenant.Region,
		Stacks: []StackRef{
			{Name: prefix + "-external-dns"},
			{Name: prefix + "-workload-identity"},
		},
	}
}

func clusterDeployWave(cfg Config, prefix string, kubernetes versions.Kubernetes, karpenter versions.Karpenter) (*Wave, error) {
	oidcParam, err := cfg.Paths.Path("eks", "oidc-id")
	if err != nil {
		return nil, &errors.AssemblyError{Node: "deploy-cluster", Err: err}
	}

	env := map[string]string{
		"AWS_REGION":              cfg.Tenant.Region,
		"CLUSTER_ACCESS_ROLE_ARN": roleARN(cfg.Tenant.Account, prefix, "cluster-access"),
		"CLUSTER_ADMIN_ROLE_NAME": cfg.Tenant.ClusterAdminRoleName,
		"CLUSTER_NAME":            prefix + "-eks",
		"CODE_BUILD_ROLE_NAME":    prefix + "-codebuild",
		"KARPENTER_VERSION":       karpenter.String(),
		"KUBERNETES_VERSION":      kubernetes.String(),
		"MAP_MIGRATED":            cfg.Deploy.ProjectTags["map-migrated"],
		"OIDC_ID_PARAM":           oidcParam,
		"RESOURCE_PREFIX":         prefix,
		"TARGET_ACCOUNT_ID":       cfg.Tenant.Account,
	}

	return &Wave{
		Name: "deploy-cluster",
		Steps: []Step{
			{
				Name:     "deploy-eks-cluster",
				Commands: []string{"./scripts/deploy-cluster.sh"},
				Env:      env,
			},
		},
	}, nil
}

// clusterConfigWave extends the deploy wave's environment with the
// certificate, filesystem, and identity-role inputs created by the infra and
// post-deploy stages.
func clusterConfigWave(cfg Config, prefix string, base map[string]string) (*Wave, error) {
	certificateParam, err := cfg.Paths.Path("acm", "certificate-arn")
	if err != nil {
		return nil, &errors.AssemblyError{Node: "config-cluster", Err: err}
	}
	filesystemParam, err := cfg.Paths.Path("efs", "file-system-id")
	if err != nil {
		return nil, &errors.AssemblyError{Node: "config-cluster", Err: err}
	}

	env := make(map[string]string, len(base)+5)
	for k, v := range base {
		env[k] = v
	}
	env["ACM_CERTIFICATE_ARN"] = certificateParam
	env["EFS_FILE_SYSTEM_PARAM"] = filesystemParam
	env["EXTERNAL_DNS_ROLE"] = roleARN(cfg.Tenant.Account, prefix, "external-dns")
	env["EXTERNAL_DNS_SA_ROLE"] = roleARN(cfg.Tenant.Account, prefix, "external-dns-sa")
	env["EXTERNAL_SECRETS_SA_ROLE"] = roleARN(cfg.Tenant.Account, prefix, "external-secrets-sa")

	return &Wave{
		Name: "config-cluster",
		Steps: []Step{
			{
				Name:     "config-eks-cluster",
				Commands: []string{"./scripts/config-cluster.sh"},
				Env:      env,
			},
		},
	}, nil
}

func applicationDeployWave(cfg Config, prefix string) (*Wave, error) {
	credentialsParam, err := cfg.Paths.Path("documentdb", "app-db-credentials")
	if err != nil {
		return nil, &errors.AssemblyError{Node: "deploy-apps", Err: err}
	}

	return &Wave{
		Name: "deploy-apps",
		Steps: []Step{
			{
				Name:     "deploy-apps-into-cluster",
				Commands: []string{"./scripts/deploy-apps.sh"},
				Env: map[string]string{
					"APPLICATIONS":             strings.Join(cfg.Tenant.Applications, ","),
					"APP_DB_CREDENTIALS_PARAM": credentialsParam,
					"AWS_REGION":               cfg.Tenant.Region,
					"CLUSTER_NAME":             prefix + "-eks",
					"RESOURCE_PREFIX":          prefix,
					"TARGET_ACCOUNT_ID":        cfg.Tenant.Account,
				},
			},
		},
	}, nil
}

func roleARN(account, prefix, role string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s-%s", account, prefix, role)
}
