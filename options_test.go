package guardrail

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTool_StrictInput(t *testing.T) {
	tool := newDoubleTool(t, "strict_tool", 1)
	res, err := tool.Execute(context.Background(), []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"y":1}`, string(res))

	_, err = tool.Execute(context.Background(), []byte(`{"x":1,"extra":2}`))
	require.Error(t, err)
	assert.True(t, IsClientError(err))
}

func TestWithTimeout(t *testing.T) {
	type A struct{}
	type R struct{}
	tool, err := NewTool("t", "d", func(_ context.Context, _ A) (R, error) {
		return R{}, nil
	}, WithTimeout(time.Second))
	require.NoError(t, err)
	meta, ok := tool.(ToolMetadata)
	require.True(t, ok)
	assert.Equal(t, time.Second, meta.Timeout())
	res, err := tool.Execute(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(res))
}

func TestRegistryOptions_Defaults(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 5*time.Second, reg.opts.timeout)
	assert.True(t, reg.opts.recoverPanics)

	reg = NewRegistry(WithDefaultTimeout(time.Minute), WithRecoverPanics(false))
	assert.Equal(t, time.Minute, reg.opts.timeout)
	assert.False(t, reg.opts.recoverPanics)
}
