// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var order []string

	c.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })
	c.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "a")
		c.AfterFunc(50*time.Millisecond, func() { order = append(order, "a2") })
	})
	stopped := c.AfterFunc(120*time.Millisecond, func() { order = append(order, "never") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(99 * time.Millisecond)
	assert.Empty(t, order)

	c.Advance(101 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b"}, order)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, time.Unix(0, 0).Add(200*time.Millisecond), c.Now())
}

func TestReal_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}
