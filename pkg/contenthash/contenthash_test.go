package contenthash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	a := Of("Nina sprach über Preise.")
	assert.Len(t, a, Size*2)
	assert.Equal(t, a, Of("  Nina sprach über Preise.\n"))
	assert.NotEqual(t, a, Of("Nina sprach über Preise"))
}
