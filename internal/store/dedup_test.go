package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupSeenMark(t *testing.T) {
	d := NewDedup(10, time.Hour)
	assert.False(t, d.Seen("2:1"))
	d.Mark("2:1")
	assert.True(t, d.Seen("2:1"))
	assert.False(t, d.Seen("1:1"))
}

func TestDedupEvictsOldest(t *testing.T) {
	d := NewDedup(3, time.Hour)
	for i := 0; i < 5; i++ {
		d.Mark(fmt.Sprint(i))
	}
	assert.Equal(t, 3, d.Len())
	assert.False(t, d.Seen("0"))
	assert.True(t, d.Seen("4"))
}

func TestDedupExpires(t *testing.T) {
	d := NewDedup(10, 20*time.Millisecond)
	d.Mark("k")
	assert.Eventually(t, func() bool { return !d.Seen("k") }, time.Second, 10*time.Millisecond)
}
