package paths

import (
	goerrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clusterfleet/infra-provisioner/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() map[string]any {
	return map[string]any{
		"documentdb": map[string]any{
			"app-db-credentials": "documentdb/app-credentials",
		},
		"eks": map[string]any{
			"oidc-id":      "eks/oidc-id",
			"cluster-name": "eks/cluster-name",
		},
		"acm": map[string]any{
			"certificate-arn": "acm/certificate-arn",
		},
		"toolchain": map[string]any{
			"version": "toolchain/version",
		},
	}
}

func TestBuilder_Path(t *testing.T) {
	b := NewBuilderFromSpec("acme", "dev", testSpec())

	tests := []struct {
		name string
		keys []string
		want string
	}{
		{
			name: "nested key",
			keys: []string{"documentdb", "app-db-credentials"},
			want: "/acme/dev/documentdb/app-credentials",
		},
		{
			name: "eks oidc",
			keys: []string{"eks", "oidc-id"},
			want: "/acme/dev/eks/oidc-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Path(tt.keys...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(got, "/acme/dev/"))
		})
	}
}

func TestBuilder_Path_Idempotent(t *testing.T) {
	b := NewBuilderFromSpec("acme", "dev", testSpec())

	first, err := b.Path("eks", "cluster-name")
	require.NoError(t, err)
	second, err := b.Path("eks", "cluster-name")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuilder_GlobalPath(t *testing.T) {
	b := NewBuilderFromSpec("acme", "dev", testSpec())

	got, err := b.GlobalPath("toolchain", "version")
	require.NoError(t, err)
	assert.Equal(t, "/toolchain/version", got)
	assert.NotContains(t, strings.Split(got, "/"), "acme")
	assert.NotContains(t, strings.Split(got, "/"), "dev")
}

func TestBuilder_Path_MissingKey(t *testing.T) {
	b := NewBuilderFromSpec("acme", "dev", testSpec())

	_, err := b.Path("documentdb", "missing")
	require.Error(t, err)

	var pathErr *errors.PathResolutionError
	require.True(t, goerrors.As(err, &pathErr))
	assert.Equal(t, []string{"documentdb", "missing"}, pathErr.Keys)
}

func TestBuilder_Path_AmbiguousTerminal(t *testing.T) {
	b := NewBuilderFromSpec("acme", "dev", testSpec())

	// The walk stops on the documentdb sub-mapping, never stringified.
	_, err := b.Path("documentdb")
	require.Error(t, err)

	var pathErr *errors.PathResolutionError
	require.True(t, goerrors.As(err, &pathErr))
	assert.Contains(t, pathErr.Reason, "sub-mapping")
}

func TestBuilder_Path_WalkPastScalar(t *testing.T) {
	b := NewBuilderFromSpec("acme", "dev", testSpec())

	_, err := b.Path("eks", "oidc-id", "extra")
	require.Error(t, err)

	var pathErr *errors.PathResolutionError
	assert.True(t, goerrors.As(err, &pathErr))
}

func TestBuilder_Path_NoKeys(t *testing.T) {
	b := NewBuilderFromSpec("acme", "dev", testSpec())

	_, err := b.Path()
	require.Error(t, err)

	var pathErr *errors.PathResolutionError
	assert.True(t, goerrors.As(err, &pathErr))
}

func TestBuilder_Path_EmptyComponents(t *testing.T) {
	// A missing tenant still yields a syntactically valid path without a
	// double slash.
	b := NewBuilderFromSpec("", "dev", testSpec())

	got, err := b.Path("eks", "oidc-id")
	require.NoError(t, err)
	assert.Equal(t, "/dev/eks/oidc-id", got)
	assert.NotContains(t, got, "//")
}

func TestBuilder_AllPath(t *testing.T) {
	b := NewBuilderFromSpec("acme", "dev", testSpec())
	assert.Equal(t, "/acme/dev/*", b.AllPath())
}

func TestNewBuilder_FromFile(t *testing.T) {
	dir := t.TempDir()
	specFile := filepath.Join(dir, "ssm_paths.yaml")
	content := "eks:\n  oidc-id: eks/oidc-id\n"
	require.NoError(t, os.WriteFile(specFile, []byte(content), 0o644))

	b, err := NewBuilder("acme", "prod", specFile)
	require.NoError(t, err)

	got, err := b.Path("eks", "oidc-id")
	require.NoError(t, err)
	assert.Equal(t, "/acme/prod/eks/oidc-id", got)
}

func TestNewBuilder_UnreadableFile(t *testing.T) {
	_, err := NewBuilder("acme", "dev", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	var loadErr *errors.ConfigLoadError
	assert.True(t, goerrors.As(err, &loadErr))
}
