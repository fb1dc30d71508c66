package seqnum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAround(t *testing.T) {
	assert.True(t, LessThan(0xFFFF, 0x0000))
	assert.True(t, GreaterThan(0x0000, 0xFFFF))
	assert.False(t, LessThan(5, 5))
	assert.True(t, LessOrEqual(5, 5))
	assert.True(t, GreaterOrEqual(5, 5))
}

func TestOrdinaryOrder(t *testing.T) {
	assert.True(t, LessThan(10, 20))
	assert.True(t, GreaterThan(20, 10))
}
