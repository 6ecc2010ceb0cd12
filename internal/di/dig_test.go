package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	env string
}

func TestNew_RegistersEnvironment(t *testing.T) {
	container, err := New("dev")
	require.NoError(t, err)

	var got string
	require.NoError(t, container.Invoke(func(env string) {
		got = env
	}))
	assert.Equal(t, "dev", got)
}

func TestWithProviders(t *testing.T) {
	container, err := New("staging",
		WithProviders(
			func(env string) *widget { return &widget{env: env} },
		),
	)
	require.NoError(t, err)

	w := MustGet[*widget](container)
	assert.Equal(t, "staging", w.env)
}

func TestMustGet_PanicsOnMissingDependency(t *testing.T) {
	container, err := New("dev")
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustGet[*widget](container)
	})
}
