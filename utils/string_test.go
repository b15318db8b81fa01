package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	t.Run("short string is unchanged", func(t *testing.T) {
		assert.Equal(t, "abc", TruncateString("abc", 10))
	})

	t.Run("exact length is unchanged", func(t *testing.T) {
		assert.Equal(t, "abc", TruncateString("abc", 3))
	})

	t.Run("long string is truncated with ellipsis", func(t *testing.T) {
		assert.Equal(t, "abcde...", TruncateString("abcdefghij", 5))
	})
}
