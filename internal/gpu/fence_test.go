package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilFence(t *testing.T) {
	assert.Nil(t, NewFence(-1))

	var f *Fence
	assert.Equal(t, NoFence, f.FD())
	assert.False(t, f.Valid())
	assert.NoError(t, f.Close())
	assert.Equal(t, NoFence, f.Detach())
}

func TestFenceDetachEmptiesFence(t *testing.T) {
	f := NewFence(42)
	assert.True(t, f.Valid())

	assert.Equal(t, 42, f.Detach())
	assert.False(t, f.Valid())
	assert.NoError(t, f.Close(), "close after detach is a no-op")
}
