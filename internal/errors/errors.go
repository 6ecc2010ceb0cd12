// Package errors defines the typed failure taxonomy of the provisioner core.
// All four kinds are terminal: they propagate to the invocation boundary
// unmodified and are never retried or downgraded to warnings.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTaskTokenRequired   = errors.New("task token is required")
	ErrStateMachineMissing = errors.New("state machine not found")
	ErrStackNotFound       = errors.New("stack not found")
	ErrNoDatabaseScript    = errors.New("no database script configured")
)

// ConfigLoadError reports a malformed or unreadable configuration document.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("failed to load configuration document %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}

// ValidationError reports an unknown (tenant, environment) pair. The message
// enumerates every valid pair present in the configuration tree so the
// operator can correct the invocation. The type does not distinguish
// unknown-tenant from unknown-environment; callers that need the finer
// distinction can inspect TenantID against ValidPairs.
type ValidationError struct {
	TenantID    string
	Environment string
	ValidPairs  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("no environment %q configured for tenant %q; valid combinations: %s",
		e.Environment, e.TenantID, strings.Join(e.ValidPairs, "; "))
}

// PathResolutionError reports a logical key sequence that could not be
// resolved against the parameter path specification.
type PathResolutionError struct {
	Keys   []string
	Reason string
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve parameter path %s: %s", strings.Join(e.Keys, "."), e.Reason)
}

// AssemblyError reports a pipeline node whose declared inputs could not be
// resolved. Assembly fails before any provisioning side effect occurs.
type AssemblyError struct {
	Node string
	Err  error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("cannot assemble pipeline node %s: %v", e.Node, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
