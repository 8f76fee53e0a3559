package errors

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeSystem, "nothing"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeConstruction, "boom")
	outer := Wrap(inner, ErrorTypeSystem, "outer")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
}

func TestIsTypeWalksChain(t *testing.T) {
	err := Wrap(Wrap(io.EOF, ErrorTypeConstruction, "ctor"), ErrorTypeSystem, "get")

	assert.True(t, IsType(err, ErrorTypeSystem))
	assert.True(t, IsType(err, ErrorTypeConstruction))
	assert.False(t, IsType(err, ErrorTypeNoInstanceAvailable))
	assert.False(t, IsType(io.EOF, ErrorTypeSystem))
	assert.True(t, stderrors.Is(err, io.EOF))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeConfig, "bad").WithDetail("field", "max_size").WithDetail("value", -1)

	assert.Equal(t, "max_size", err.Details["field"])
	assert.Equal(t, -1, err.Details["value"])
	assert.Equal(t, "config: bad", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeNotFound, "deployment %q", "Calc")
	assert.Equal(t, `not_found: deployment "Calc"`, err.Error())
	assert.NotEmpty(t, err.Stack)
}
