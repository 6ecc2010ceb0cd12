// Package versions maps accepted tool version strings onto validated
// enumerated values. Unknown versions are rejected with a typed error rather
// than resolved dynamically.
package versions

import (
	"fmt"
	"regexp"
)

// Kubernetes is a supported cluster minor version.
type Kubernetes string

const (
	KubernetesV129 Kubernetes = "1.29"
	KubernetesV130 Kubernetes = "1.30"
	KubernetesV131 Kubernetes = "1.31"
	KubernetesV132 Kubernetes = "1.32"
	KubernetesV133 Kubernetes = "1.33"
)

var kubernetesVersions = map[string]Kubernetes{
	"1.29": KubernetesV129,
	"1.30": KubernetesV130,
	"1.31": KubernetesV131,
	"1.32": KubernetesV132,
	"1.33": KubernetesV133,
}

// UnsupportedVersionError reports a version string outside the allow-list.
type UnsupportedVersionError struct {
	Tool    string
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported %s version %q", e.Tool, e.Version)
}

// ParseKubernetes validates s against the supported minor versions.
func ParseKubernetes(s string) (Kubernetes, error) {
	v, ok := kubernetesVersions[s]
	if !ok {
		return "", &UnsupportedVersionError{Tool: "kubernetes", Version: s}
	}
	return v, nil
}

func (k Kubernetes) String() string {
	return string(k)
}

// Karpenter is a validated node-autoscaler release string.
type Karpenter string

var karpenterPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

// ParseKarpenter validates the release-string shape (major.minor.patch, no
// leading v).
func ParseKarpenter(s string) (Karpenter, error) {
	if !karpenterPattern.MatchString(s) {
		return "", &UnsupportedVersionError{Tool: "karpenter", Version: s}
	}
	return Karpenter(s), nil
}

func (k Karpenter) String() string {
	return string(k)
}
