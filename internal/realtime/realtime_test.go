package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, id string) Event {
	t.Helper()
	event, err := NewEvent(EventSaleCreated, map[string]string{"id": id}, time.Now())
	require.NoError(t, err)
	return event
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHubFansOutToAllSubscribers(t *testing.T) {
	hub := NewHub(4)
	first, cancelFirst, err := hub.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancelFirst()
	second, cancelSecond, err := hub.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancelSecond()

	require.NoError(t, hub.Publish(context.Background(), mustEvent(t, "sale_1")))

	require.Equal(t, EventSaleCreated, receive(t, first).Type)
	require.Equal(t, EventSaleCreated, receive(t, second).Type)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	ch, cancel, err := hub.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(context.Background(), mustEvent(t, "a")))
	require.NoError(t, hub.Publish(context.Background(), mustEvent(t, "b")))

	got := receive(t, ch)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	require.Equal(t, "a", payload["id"])
	require.Len(t, ch, 0)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(1)
	ch, cancel, err := hub.Subscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, hub.SubscriberCount())

	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)
	require.Equal(t, 0, hub.SubscriberCount())
	require.NoError(t, hub.Publish(context.Background(), mustEvent(t, "after")))
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	broker := NewRedisBroker(client, "test:events", nil)
	defer broker.Close()

	require.NoError(t, broker.Ping(context.Background()))

	ch, cancel, err := broker.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, broker.Publish(context.Background(), mustEvent(t, "sale_9")))

	got := receive(t, ch)
	require.Equal(t, EventSaleCreated, got.Type)
	require.JSONEq(t, `{"id":"sale_9"}`, string(got.Data))
}

func TestNoopPublisher(t *testing.T) {
	var publisher Publisher = Noop{}
	require.NoError(t, publisher.Publish(context.Background(), Event{Type: "x"}))
}
