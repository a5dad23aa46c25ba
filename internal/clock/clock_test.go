package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualIsMonotonic(t *testing.T) {
	c := NewManual(1000)
	assert.Equal(t, int64(1000), c.NowMs())

	c.Advance(2 * time.Second)
	assert.Equal(t, int64(3000), c.NowMs())

	c.Advance(-time.Second)
	c.Set(500)
	assert.Equal(t, int64(3000), c.NowMs())

	c.Set(4000)
	assert.Equal(t, int64(4000), c.NowMs())
}

func TestSystem(t *testing.T) {
	before := time.Now().UnixMilli()
	got := System{}.NowMs()
	assert.GreaterOrEqual(t, got, before)
}
