package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedStringKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "c"}, SortedStringKeys(map[string]int{"b": 2, "a": 1, "c": 3}))
	assert.Empty(t, SortedStringKeys(map[string]bool{}))
}
