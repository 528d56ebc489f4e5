package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attislabs/mimir/pkg/tools"
)

func testTool(name string) tools.Tool {
	return tools.Tool{
		Name:        name,
		Description: "test tool: " + name,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{"type": "string"},
			},
		},
	}
}

func echoHandler(_ context.Context, args json.RawMessage) (tools.Result, error) {
	return tools.Result{Content: string(args)}, nil
}

func TestRegister(t *testing.T) {
	reg := tools.NewRegistry()

	require.NoError(t, reg.Register(testTool("echo"), echoHandler))

	err := reg.Register(tools.Tool{Name: ""}, echoHandler)
	assert.ErrorIs(t, err, tools.ErrEmptyName)

	err = reg.Register(testTool("echo"), echoHandler)
	assert.ErrorIs(t, err, tools.ErrAlreadyExists)
}

func TestGet(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(testTool("echo"), echoHandler))

	h, ok := reg.Get("echo")
	assert.True(t, ok)
	assert.NotNil(t, h)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestList_SortedByName(t *testing.T) {
	reg := tools.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(testTool(name), echoHandler))
	}

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
}

func TestExecute(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(testTool("echo"), echoHandler))

	result, err := reg.Execute(context.Background(), "echo", json.RawMessage(`{"input":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"input":"hi"}`, result.Content)

	_, err = reg.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, tools.ErrNotFound)
}

func TestExecute_WrapsHandlerError(t *testing.T) {
	reg := tools.NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, reg.Register(testTool("fail"), func(context.Context, json.RawMessage) (tools.Result, error) {
		return tools.Result{}, boom
	}))

	_, err := reg.Execute(context.Background(), "fail", nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fail")
}

func TestJSONResult(t *testing.T) {
	result, err := tools.JSONResult(map[string]int{"n": 3})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"n":3}`, result.Content)
}

func TestErrorResult(t *testing.T) {
	result := tools.ErrorResult(errors.New("no such entity"))
	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"error":"no such entity"}`, result.Content)
}
