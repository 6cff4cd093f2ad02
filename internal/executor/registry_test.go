package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/pkg/models"
)

func noopExecutor() Executor {
	return ExecutorFunc(func(_ context.Context, _ string, _ *models.Node, _ interface{}, _ *Context) (*models.NodeOutput, error) {
		return &models.NodeOutput{}, nil
	})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Has(models.NodeTransform))

	r.Register(models.NodeTransform, noopExecutor())

	assert.True(t, r.Has(models.NodeTransform))
	e, ok := r.Get(models.NodeTransform)
	require.True(t, ok)
	assert.NotNil(t, e)
}

func TestRegistry_GetMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(models.NodeTransform)
	assert.False(t, ok)
}

func TestRegistry_RegisterOverwritesExisting(t *testing.T) {
	r := NewRegistry()
	first := noopExecutor()
	second := noopExecutor()

	r.Register(models.NodeTransform, first)
	r.Register(models.NodeTransform, second)

	e, ok := r.Get(models.NodeTransform)
	require.True(t, ok)
	assert.NotNil(t, e)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register(models.NodeTransform, noopExecutor())
	r.Register(models.NodeValidator, noopExecutor())

	types := r.List()
	assert.Len(t, types, 2)
	assert.Contains(t, types, models.NodeTransform)
	assert.Contains(t, types, models.NodeValidator)
}

func TestRegistry_MustGet(t *testing.T) {
	r := NewRegistry()
	r.Register(models.NodeTransform, noopExecutor())

	e, err := r.MustGet(models.NodeTransform)
	require.NoError(t, err)
	assert.NotNil(t, e)

	_, err = r.MustGet(models.NodeValidator)
	assert.Error(t, err)
}
