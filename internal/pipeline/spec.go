// Package pipeline assembles the ordered deployment pipeline for one tenant
// environment: stages, waves, an optional manual-approval gate, and the
// notification binding that accompanies it.
package pipeline

// Kind identifies the type of a pipeline node.
type Kind string

const (
	KindStage        Kind = "STAGE"
	KindWave         Kind = "WAVE"
	KindApprovalGate Kind = "APPROVAL_GATE"
	KindNotification Kind = "NOTIFICATION_BINDING"
)

// EventKind is a pipeline lifecycle event a notification binding subscribes
// to.
type EventKind string

const (
	EventStarted        EventKind = "PIPELINE_EXECUTION_STARTED"
	EventFailed         EventKind = "PIPELINE_EXECUTION_FAILED"
	EventSucceeded      EventKind = "PIPELINE_EXECUTION_SUCCEEDED"
	EventApprovalNeeded EventKind = "MANUAL_APPROVAL_NEEDED"
)

// LifecycleEvents is the fixed set of event kinds a binding covers.
var LifecycleEvents = []EventKind{
	EventStarted,
	EventFailed,
	EventSucceeded,
	EventApprovalNeeded,
}

// Node is one ordered element of an assembled pipeline.
type Node interface {
	NodeKind() Kind
	NodeName() string
}

// Spec is a static description of an assembled pipeline. It is re-assembled
// per invocation, never mutated in place.
type Spec struct {
	Name        string
	TenantID    string
	Environment string
	Nodes       []Node
}

// Gate returns the approval gate, or nil when the pipeline has none.
func (s *Spec) Gate() *ApprovalGate {
	for _, node := range s.Nodes {
		if gate, ok := node.(*ApprovalGate); ok {
			return gate
		}
	}
	return nil
}

// Notification returns the notification binding, or nil when the pipeline has
// none.
func (s *Spec) Notification() *NotificationBinding {
	for _, node := range s.Nodes {
		if binding, ok := node.(*NotificationBinding); ok {
			return binding
		}
	}
	return nil
}

// Index returns the position of the named node, or -1.
func (s *Spec) Index(name string) int {
	for i, node := range s.Nodes {
		if node.NodeName() == name {
			return i
		}
	}
	return -1
}

// Stage deploys a group of CloudFormation stacks into the target account.
type Stage struct {
	Name    string
	Account string
	Region  string
	Stacks  []StackRef
}

func (s *Stage) NodeKind() Kind   { return KindStage }
func (s *Stage) NodeName() string { return s.Name }

// StackRef names one stack within a stage. DBScript is set only for database
// stacks that carry an initialization script; its presence is decided once at
// assembly time.
type StackRef struct {
	Name     string
	DBScript string
}

// Wave is a named group of sequential steps.
type Wave struct {
	Name  string
	Steps []Step
}

func (w *Wave) NodeKind() Kind   { return KindWave }
func (w *Wave) NodeName() string { return w.Name }

// Step is one command execution within a wave. Env is the exhaustive set of
// named environment variables the command receives.
type Step struct {
	Name     string
	Commands []string
	Env      map[string]string
}

// ApprovalGate is a blocking checkpoint: the execution engine halts here until
// an external acknowledgment arrives. The assembler only marks its position.
type ApprovalGate struct {
	Name      string
	TopicName string
}

func (g *ApprovalGate) NodeKind() Kind   { return KindApprovalGate }
func (g *ApprovalGate) NodeName() string { return g.Name }

// NotificationBinding attaches subscriber addresses to the fixed lifecycle
// event kinds. It exists only when the pipeline carries an approval gate.
type NotificationBinding struct {
	Name      string
	TopicName string
	Addresses []string
	Events    []EventKind
}

func (n *NotificationBinding) NodeKind() Kind   { return KindNotification }
func (n *NotificationBinding) NodeName() string { return n.Name }
