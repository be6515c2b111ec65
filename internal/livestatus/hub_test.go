package livestatus

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/evcharge-backend/internal/availability"
	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(config.LiveStatusConfig{WriteTimeout: time.Second, PingInterval: time.Second, SendBuffer: 4}, []string{"*"},
		logger.New(logger.Options{ServiceName: "livestatus-test", Output: io.Discard}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/"))
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		hub.ServeStation(w, r, id)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, stationID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + stationID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubDeliversChangesToStationSubscribers(t *testing.T) {
	hub, srv := newTestHub(t)
	watched, other := uuid.New(), uuid.New()

	conn := dial(t, srv, watched)
	otherConn := dial(t, srv, other)
	require.Eventually(t, func() bool {
		return hub.Subscribers(watched) == 1 && hub.Subscribers(other) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.ChargerStatusChanged(context.Background(), availability.StatusChange{
		StationID:      watched,
		ChargerID:      "C1",
		Status:         enums.ChargerStatusOccupied,
		BookingID:      "b-1",
		AvailableCount: 1,
		At:             time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "charger_status", msg.Type)
	assert.Equal(t, watched, msg.Change.StationID)
	assert.Equal(t, "C1", msg.Change.ChargerID)
	assert.Equal(t, enums.ChargerStatusOccupied, msg.Change.Status)
	assert.Equal(t, 1, msg.Change.AvailableCount)

	require.NoError(t, otherConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = otherConn.ReadMessage()
	require.Error(t, err)
}

func TestHubForgetsClosedSubscribers(t *testing.T) {
	hub, srv := newTestHub(t)
	stationID := uuid.New()

	conn := dial(t, srv, stationID)
	require.Eventually(t, func() bool { return hub.Subscribers(stationID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers(stationID) == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.ChargerStatusChanged(context.Background(), availability.StatusChange{StationID: stationID, ChargerID: "C1"})
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	allowed := httptest.NewRequest(http.MethodGet, "/", nil)
	allowed.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(allowed))

	denied := httptest.NewRequest(http.MethodGet, "/", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(denied))

	assert.True(t, check(httptest.NewRequest(http.MethodGet, "/", nil)))
}
