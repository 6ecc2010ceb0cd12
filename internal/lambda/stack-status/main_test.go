package main

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

func TestProjectStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     types.StackStatus
		reason     string
		wantDone   bool
		wantFailed bool
	}{
		{
			name:   "create in progress",
			status: types.StackStatusCreateInProgress,
		},
		{
			name:     "create complete",
			status:   types.StackStatusCreateComplete,
			wantDone: true,
		},
		{
			name:     "update complete",
			status:   types.StackStatusUpdateComplete,
			wantDone: true,
		},
		{
			name:       "create failed",
			status:     types.StackStatusCreateFailed,
			reason:     "resource limit exceeded",
			wantDone:   true,
			wantFailed: true,
		},
		{
			name:       "rollback complete",
			status:     types.StackStatusRollbackComplete,
			reason:     "rolled back",
			wantDone:   true,
			wantFailed: true,
		},
		{
			name:       "rollback in progress",
			status:     types.StackStatusRollbackInProgress,
			wantDone:   true,
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := projectStatus("acme-dev-network", tt.status, tt.reason)

			if got.Done != tt.wantDone {
				t.Errorf("projectStatus() Done = %v, want %v", got.Done, tt.wantDone)
			}
			if got.Failed != tt.wantFailed {
				t.Errorf("projectStatus() Failed = %v, want %v", got.Failed, tt.wantFailed)
			}
			if tt.wantFailed && got.Reason != tt.reason {
				t.Errorf("projectStatus() Reason = %q, want %q", got.Reason, tt.reason)
			}
			if !tt.wantFailed && got.Reason != "" {
				t.Errorf("projectStatus() Reason = %q, want empty", got.Reason)
			}
		})
	}
}
