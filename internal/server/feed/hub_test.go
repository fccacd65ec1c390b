package feed

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/clientkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversToOwnerOnly(t *testing.T) {
	h := NewHub(nil)
	ctx := context.Background()

	a, cancelA := h.Subscribe("owner-a")
	defer cancelA()
	b, cancelB := h.Subscribe("owner-b")
	defer cancelB()

	h.Publish(ctx, models.SnapshotEvent{ID: "s1", OwnerID: "owner-a"})

	select {
	case ev := <-a:
		assert.Equal(t, "s1", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("owner-a did not get the event")
	}
	select {
	case ev := <-b:
		t.Fatalf("owner-b got %v", ev)
	default:
	}
}

func TestHub_FanOutAndCancel(t *testing.T) {
	h := NewHub(nil)
	ctx := context.Background()

	one, cancelOne := h.Subscribe("o")
	two, cancelTwo := h.Subscribe("o")
	require.Equal(t, 2, h.Subscribers("o"))

	h.Publish(ctx, models.SnapshotEvent{ID: "s1", OwnerID: "o"})
	assert.Equal(t, "s1", (<-one).ID)
	assert.Equal(t, "s1", (<-two).ID)

	cancelOne()
	cancelOne()
	_, open := <-one
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers("o"))

	cancelTwo()
	assert.Zero(t, h.Subscribers("o"))

	// nobody listening
	h.Publish(ctx, models.SnapshotEvent{ID: "s2", OwnerID: "o"})
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(nil)
	h.buffer = 1
	ctx := context.Background()

	ch, cancel := h.Subscribe("o")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish(ctx, models.SnapshotEvent{ID: "s", OwnerID: "o"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}
