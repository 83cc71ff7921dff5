package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

func dialLive(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func TestLiveFeedDeliversProgressEvents(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := httptest.NewServer(newTestRouter(hub))
	defer srv.Close()

	conn := dialLive(t, srv.URL)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	want := contracts.ProgressEvent{
		RunID:     "20250307T093000-deadbeef",
		TradeDate: "2025-03-10",
		Stage:     contracts.StageFeatures,
		Status:    contracts.ProgressStarted,
		At:        time.Now().UTC(),
	}
	hub.Publish(want)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got contracts.ProgressEvent
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, want.RunID, got.RunID)
	require.Equal(t, want.TradeDate, got.TradeDate)
	require.Equal(t, contracts.StageFeatures, got.Stage)
	require.Equal(t, contracts.ProgressStarted, got.Status)
}

func TestLiveFeedFansOutToAllSubscribers(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := httptest.NewServer(newTestRouter(hub))
	defer srv.Close()

	a := dialLive(t, srv.URL)
	defer a.Close()
	b := dialLive(t, srv.URL)
	defer b.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	hub.Publish(contracts.ProgressEvent{RunID: "r1", Stage: contracts.StageGates, Status: contracts.ProgressCompleted})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got contracts.ProgressEvent
		require.NoError(t, conn.ReadJSON(&got))
		require.Equal(t, "r1", got.RunID)
	}
}

func TestDisconnectedSubscriberIsRemoved(t *testing.T) {
	hub := NewHub(logger.Nop())
	srv := httptest.NewServer(newTestRouter(hub))
	defer srv.Close()

	conn := dialLive(t, srv.URL)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// 購読者ゼロでも Publish は落ちない
	hub.Publish(contracts.ProgressEvent{RunID: "r2"})
}

func TestPublishDropsSlowSubscriber(t *testing.T) {
	hub := NewHub(logger.Nop())

	// Unbuffered channel with no write loop stands in for a stalled
	// subscriber.
	c := &wsClient{send: make(chan contracts.ProgressEvent)}
	hub.mu.Lock()
	hub.clients[c] = struct{}{}
	hub.mu.Unlock()

	hub.Publish(contracts.ProgressEvent{RunID: "r3"})

	require.Equal(t, 0, hub.ClientCount())
	_, open := <-c.send
	require.False(t, open)
}

func TestRemoveIsIdempotent(t *testing.T) {
	hub := NewHub(logger.Nop())
	c := &wsClient{send: make(chan contracts.ProgressEvent, 1)}
	hub.mu.Lock()
	hub.clients[c] = struct{}{}
	hub.mu.Unlock()

	hub.remove(c)
	hub.remove(c)
	require.Equal(t, 0, hub.ClientCount())
}
