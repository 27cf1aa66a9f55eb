package broadcast

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(4)
	a, b := hub.Subscribe(), hub.Subscribe()
	defer a.Close()
	defer b.Close()
	assert.Equal(t, 2, hub.Subscribers())

	require.NoError(t, hub.Publish(context.Background(), models.ProgressMessage{JobID: "job-1", Status: "Syncing 1 of 1"}))

	for _, sub := range []*Subscription{a, b} {
		msg := <-sub.C
		assert.Equal(t, "job-1", msg.JobID)
		assert.Equal(t, "Syncing 1 of 1", msg.Status)
	}
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(2)
	slow := hub.Subscribe()
	fast := hub.Subscribe()
	defer fast.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(context.Background(), models.ProgressMessage{Status: "tick"}))
		<-fast.C
	}

	assert.Equal(t, 1, hub.Subscribers())
	received := 0
	for range slow.C {
		received++
	}
	assert.Equal(t, 2, received, "buffered messages stay readable before the close")
	slow.Close()
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(0)
	sub := hub.Subscribe()
	sub.Close()
	sub.Close()
	_, ok := <-sub.C
	assert.False(t, ok)

	live := hub.Subscribe()
	hub.Close()
	_, ok = <-live.C
	assert.False(t, ok)
	live.Close()

	late := hub.Subscribe()
	_, ok = <-late.C
	assert.False(t, ok)
	assert.Zero(t, hub.Subscribers())
	require.NoError(t, hub.Publish(context.Background(), models.ProgressMessage{Status: "ignored"}))
}
