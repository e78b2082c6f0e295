package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktoken_Count(t *testing.T) {
	c, err := NewTiktoken("gpt-4")
	require.NoError(t, err)

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 2, c.Count("hello world"))
	assert.Equal(t, c.Count("force majeure"), c.Count("force majeure"))
}

func TestEstimator_Count(t *testing.T) {
	var e Estimator
	assert.Equal(t, 0, e.Count(""))
	assert.Equal(t, 1, e.Count("abc"))
	assert.Equal(t, 2, e.Count("abcdefgh"))
	assert.Equal(t, 1, e.Count("éé"))
}

func TestNew_UnknownModelFallsBack(t *testing.T) {
	c, err := New("no-such-model")
	assert.Error(t, err)
	assert.IsType(t, Estimator{}, c)
}
