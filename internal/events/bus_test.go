package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishFanOut(t *testing.T) {
	b := NewBus()
	a, unsubA := b.Subscribe(EventOrderTerminal, 1)
	c, unsubC := b.Subscribe(EventOrderTerminal, 1)
	defer unsubC()

	assert.Equal(t, 2, b.Publish(EventOrderTerminal, "x"))
	assert.Equal(t, "x", <-a)
	assert.Equal(t, "x", <-c)

	unsubA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers(EventOrderTerminal))
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventBar, 1)
	defer unsub()

	assert.Equal(t, 1, b.Publish(EventBar, 1))
	// buffer full, payload dropped
	assert.Equal(t, 0, b.Publish(EventBar, 2))
	assert.Equal(t, 1, <-ch)

	var nilBus *Bus
	assert.Equal(t, 0, nilBus.Publish(EventBar, 3))
}
