package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetBasics(t *testing.T) {
	s := New("a", "b")
	s.Add("c")
	assert.True(t, s.Has("c"))
	s.Delete("a")
	assert.False(t, s.Has("a"))
	assert.Len(t, s, 2)
}

func TestMissingPreservesOrder(t *testing.T) {
	known := New("/r/A", "/r/C")
	assert.Equal(t, []string{"/r/D", "/r/B"}, known.Missing([]string{"/r/A", "/r/D", "/r/B", "/r/C"}))
	assert.Nil(t, known.Missing([]string{"/r/A"}))
	assert.Nil(t, known.Missing(nil))
}
