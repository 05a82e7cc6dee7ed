package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/models"
)

func TestHubPublish(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 8)}
	hub.register <- client

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Publish(orchestration.Event{
		Type:   orchestration.EventStateChanged,
		HostID: "host:x",
		State:  models.StateRunning,
	})

	select {
	case raw := <-client.send:
		var event orchestration.Event
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, orchestration.EventStateChanged, event.Type)
		assert.Equal(t, "host:x", event.HostID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	hub.unregister <- client
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestHubEvictsSlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// A full send buffer marks the client as slow.
	client := &Client{hub: hub, send: make(chan []byte)}
	hub.register <- client

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Publish(orchestration.Event{Type: orchestration.EventSpendWarning})

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}
