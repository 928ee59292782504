package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memsvc/memory/internal/apperr"
)

func TestStripControlChars(t *testing.T) {
	in := "hello\x00world\x1f\tok\n\x7fend"
	assert.Equal(t, "helloworld\tok\nend", StripControlChars(in))
}

func TestSanitizeTag(t *testing.T) {
	assert.Equal(t, "hello-world_123", SanitizeTag("  hello-world_123!@#  ", 0))
	assert.Equal(t, "abcde", SanitizeTag("abcdefgh", 5))
}

func TestTags(t *testing.T) {
	t.Run("rejects over the count cap", func(t *testing.T) {
		tags := make([]string, 21)
		for i := range tags {
			tags[i] = "t"
		}
		_, err := Tags(tags, Limits{})
		require.Error(t, err)
		assert.Equal(t, apperr.InvalidParams, apperr.CategoryOf(err))
	})

	t.Run("sanitizes and drops empties, never rejects for characters", func(t *testing.T) {
		out, err := Tags([]string{"go!lang", "   ", "###"}, Limits{})
		require.NoError(t, err)
		assert.Equal(t, []string{"golang"}, out)
	})

	t.Run("truncates over-length tags instead of rejecting", func(t *testing.T) {
		long := strings.Repeat("a", 60)
		out, err := Tags([]string{long}, Limits{MaxTagLength: 50})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Len(t, out[0], 50)
	})
}

func TestContent(t *testing.T) {
	t.Run("accepts small content", func(t *testing.T) {
		raw, err := Content(map[string]string{"a": "b"}, Limits{})
		require.NoError(t, err)
		assert.NotEmpty(t, raw)
	})

	t.Run("rejects content over the byte cap", func(t *testing.T) {
		_, err := Content(strings.Repeat("x", 100), Limits{MaxContentBytes: 10})
		require.Error(t, err)
	})
}

func TestFloat01(t *testing.T) {
	t.Run("zero substitutes the default", func(t *testing.T) {
		v, err := Float01("confidence", 0, 0.8)
		require.NoError(t, err)
		assert.Equal(t, 0.8, v)
	})

	t.Run("out of range rejected", func(t *testing.T) {
		_, err := Float01("confidence", 1.5, 0.8)
		require.Error(t, err)
	})
}

func TestRange01(t *testing.T) {
	assert.NoError(t, Range01("importance_score", 0))
	assert.Error(t, Range01("importance_score", -0.1))
	assert.Error(t, Range01("importance_score", 1.1))
}

func TestIntRange(t *testing.T) {
	v, err := IntRange("limit", 0, 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = IntRange("limit", 500, 10, 1, 100)
	assert.Error(t, err)
}

func TestUUID(t *testing.T) {
	assert.Error(t, UUID("id", "not-a-uuid"))
	assert.NoError(t, UUID("id", "123e4567-e89b-12d3-a456-426614174000"))
}

func TestSanitizeErrorMessage(t *testing.T) {
	msg := SanitizeErrorMessage("bad 'quote'\x00here")
	assert.Equal(t, "bad ''quote''here", msg)
	assert.LessOrEqual(t, len(SanitizeErrorMessage(strings.Repeat("a", 1000))), maxSanitizedErrorLen)
}
