package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgString(t *testing.T) {
	args := map[string]any{"name": "alice", "n": 3}
	assert.Equal(t, "alice", argString(args, "name"))
	assert.Equal(t, "", argString(args, "missing"))
	assert.Equal(t, "", argString(args, "n"))
}

func TestHasKey(t *testing.T) {
	args := map[string]any{"confidence": 0.0}
	assert.True(t, hasKey(args, "confidence"))
	assert.False(t, hasKey(args, "importance_score"))
}

func TestArgFloat(t *testing.T) {
	args := map[string]any{"threshold": float64(0.7), "count": 5}
	assert.Equal(t, 0.7, argFloat(args, "threshold"))
	assert.Equal(t, float64(0), argFloat(args, "missing"))
	assert.Equal(t, 5, argInt(args, "count"))
}

func TestArgStringSlice(t *testing.T) {
	args := map[string]any{"tags": []any{"a", "b", 3}}
	assert.Equal(t, []string{"a", "b"}, argStringSlice(args, "tags"))
	assert.Nil(t, argStringSlice(args, "missing"))
}

func TestArgBoolPtr(t *testing.T) {
	args := map[string]any{"async": false}
	got := argBoolPtr(args, "async")
	if assert.NotNil(t, got) {
		assert.False(t, *got)
	}
	assert.Nil(t, argBoolPtr(args, "missing"))
}
