package main

import (
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestTemplateKey(t *testing.T) {
	assert.Equal(t, "stacks/infra/acme-dev-secrets.template", templateKey("infra", "acme-dev-secrets"))
	assert.Equal(t, "stacks/network/acme-dev-network.template", templateKey("network", "acme-dev-network"))
}

func TestNoUpdates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "no updates to be performed",
			err:  &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."},
			want: true,
		},
		{
			name: "alternate phrasing",
			err:  &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates to be performed."},
			want: true,
		},
		{
			name: "wrapped by the sdk operation error",
			err: fmt.Errorf("operation error CloudFormation: UpdateStack: %w",
				&smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}),
			want: true,
		},
		{
			name: "other validation error",
			err:  &smithy.GenericAPIError{Code: "ValidationError", Message: "Template format error: unsupported structure"},
			want: false,
		},
		{
			name: "other api error",
			err:  &smithy.GenericAPIError{Code: "AccessDenied", Message: "No updates are to be performed."},
			want: false,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("connection reset"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, noUpdates(tt.err))
		})
	}
}

func TestStackMissing(t *testing.T) {
	missing := &smithy.GenericAPIError{
		Code:    "ValidationError",
		Message: "Stack with id acme-dev-network does not exist",
	}
	assert.True(t, stackMissing(missing))
	assert.True(t, stackMissing(fmt.Errorf("operation error CloudFormation: DescribeStacks: %w", missing)))

	assert.False(t, stackMissing(&smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}))
	assert.False(t, stackMissing(fmt.Errorf("connection reset")))
}
