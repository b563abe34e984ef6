package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/chatfold/inbox-server-go/internal/redis"
)

func setupBroker(t *testing.T) *Broker {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	broker := NewBroker(&redisclient.Client{Client: client})
	t.Cleanup(broker.Close)
	return broker
}

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	broker := setupBroker(t)

	client := broker.Subscribe("acct-1")
	defer broker.Unsubscribe(client)

	// the pubsub goroutine needs a moment to attach
	require.Eventually(t, func() bool {
		return broker.ClientCount("acct-1") == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	payload := json.RawMessage(`{"id":"msg-1"}`)
	require.NoError(t, broker.Publish(context.Background(), "acct-1", Event{
		Type: EventMessageReceived,
		Data: payload,
	}))

	select {
	case event := <-client.Events:
		assert.Equal(t, EventMessageReceived, event.Type)
		assert.JSONEq(t, `{"id":"msg-1"}`, string(event.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestBroker_EventsAreScopedToAccount(t *testing.T) {
	broker := setupBroker(t)

	first := broker.Subscribe("acct-1")
	defer broker.Unsubscribe(first)
	second := broker.Subscribe("acct-2")
	defer broker.Unsubscribe(second)

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, broker.Publish(context.Background(), "acct-1", Event{
		Type: EventMessageReceived,
		Data: json.RawMessage(`{}`),
	}))

	select {
	case <-first.Events:
	case <-time.After(2 * time.Second):
		t.Fatal("expected event was not delivered")
	}

	select {
	case <-second.Events:
		t.Fatal("event leaked to another account's subscriber")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	broker := setupBroker(t)

	client := broker.Subscribe("acct-1")
	require.Equal(t, 1, broker.ClientCount("acct-1"))

	broker.Unsubscribe(client)
	assert.Equal(t, 0, broker.ClientCount("acct-1"))

	select {
	case <-client.Done:
	default:
		t.Fatal("expected Done to be closed after unsubscribe")
	}
}

func TestBroker_Close(t *testing.T) {
	broker := setupBroker(t)

	first := broker.Subscribe("acct-1")
	second := broker.Subscribe("acct-2")
	require.Equal(t, 2, broker.TotalClients())

	broker.Close()

	assert.Equal(t, 0, broker.TotalClients())
	select {
	case <-first.Done:
	default:
		t.Fatal("expected Done to be closed after broker close")
	}
	select {
	case <-second.Done:
	default:
		t.Fatal("expected Done to be closed after broker close")
	}
}
