package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSchedule(t *testing.T) {
	base := 500 * time.Millisecond
	max := 10 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Backoff(tc.attempt, base, max), "attempt %d", tc.attempt)
	}
}

func TestBackoffBaseAboveMax(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0, 5*time.Second, time.Second))
}

var upgrader = websocket.Upgrader{}

// echoServer authenticates via the token query param, then echoes every
// inbound envelope back to the client.
func echoServer(t *testing.T, token string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialRejectsBadToken(t *testing.T) {
	server := echoServer(t, "good-token")

	_, err := Dial(context.Background(), Options{
		BaseURL: wsURL(server),
		Token:   "bad-token",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSendMessageRoundTrip(t *testing.T) {
	server := echoServer(t, "good-token")

	client, err := Dial(context.Background(), Options{
		BaseURL: wsURL(server),
		Token:   "good-token",
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SendMessage("bob", "hello bob", "booking-1"))

	select {
	case event := <-client.Events:
		assert.Equal(t, "send_message", event.Type)

		var data map[string]string
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, "bob", data["receiver_id"])
		assert.Equal(t, "hello bob", data["body"])
		assert.Equal(t, "booking-1", data["booking_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no echoed event received")
	}
}

func TestTypingOmitsEmptyBooking(t *testing.T) {
	server := echoServer(t, "tok")

	client, err := Dial(context.Background(), Options{BaseURL: wsURL(server), Token: "tok"})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SetTyping("bob", true))

	select {
	case event := <-client.Events:
		assert.Equal(t, "typing", event.Type)
		var data map[string]interface{}
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, "bob", data["to"])
		assert.Equal(t, true, data["is_typing"])
	case <-time.After(2 * time.Second):
		t.Fatal("no echoed event received")
	}
}

func TestCloseIsIdempotentAndEndsEvents(t *testing.T) {
	server := echoServer(t, "tok")

	client, err := Dial(context.Background(), Options{BaseURL: wsURL(server), Token: "tok"})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.Error(t, client.SendMessage("bob", "after close", ""))

	select {
	case _, open := <-client.Events:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after Close")
	}
}

func TestCloseUnblocksStalledConsumer(t *testing.T) {
	// Floods events without the client draining any of them.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 200; i++ {
			payload := []byte(`{"type":"new_message","timestamp":""}`)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
		// Hold the connection open so the read loop stays blocked on the
		// full events buffer rather than erroring out.
		conn.ReadMessage()
	}))
	t.Cleanup(server.Close)

	client, err := Dial(context.Background(), Options{BaseURL: wsURL(server), Token: "tok"})
	require.NoError(t, err)

	// Wait until the buffer is full, so the read loop is parked on the
	// blocked delivery.
	require.Eventually(t, func() bool {
		return len(client.Events) == cap(client.Events)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Close())

	// Draining must end with a closed channel, proving the read loop got
	// released instead of wedging forever.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-client.Events:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed after Close")
		}
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	var dials atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if dials.Add(1) == 1 {
			// Kill the first connection immediately to trigger reconnection.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	client, err := Dial(context.Background(), Options{
		BaseURL:     wsURL(server),
		Token:       "tok",
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer client.Close()

	// Sends go through once the second connection is up.
	require.Eventually(t, func() bool {
		return client.SendMessage("bob", "still here", "") == nil
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case event := <-client.Events:
		assert.Equal(t, "send_message", event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
}

func TestReconnectExhaustionReportsFailure(t *testing.T) {
	server := echoServer(t, "tok")

	client, err := Dial(context.Background(), Options{
		BaseURL:     wsURL(server),
		Token:       "tok",
		MaxAttempts: 2,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	})
	require.NoError(t, err)

	// Take the endpoint away entirely so every retry fails.
	server.Close()

	select {
	case err := <-client.Failed:
		assert.Contains(t, err.Error(), "2 reconnect attempts")
	case <-time.After(5 * time.Second):
		t.Fatal("no failure reported after reconnect exhaustion")
	}
}
