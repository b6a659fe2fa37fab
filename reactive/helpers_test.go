package reactive_test

import (
	"testing"

	"github.com/cellgraph/cellgraph/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failOnError(t *testing.T) reactive.ErrorHandler {
	return func(origin reactive.Dependent, err error) {
		assert.FailNow(t, err.Error())
	}
}

func getv[T any](t *testing.T, get func() (T, error)) T {
	t.Helper()
	v, err := get()
	require.NoError(t, err)
	return v
}
