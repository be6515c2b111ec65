// Package livestatus pushes committed charger status changes to websocket
// subscribers watching a station.
package livestatus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/evcharge-backend/internal/availability"
	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
)

const (
	readLimit = 4096
	pongWait  = 60 * time.Second
)

// Message is the frame written to subscribers.
type Message struct {
	Type   string                    `json:"type"`
	Change availability.StatusChange `json:"change"`
}

// Hub fans status changes out to per-station subscribers. Slow subscribers
// lose frames rather than blocking the guard.
type Hub struct {
	logg         *logger.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	sendBuffer   int

	mu   sync.RWMutex
	subs map[uuid.UUID]map[*subscriber]struct{}
}

type subscriber struct {
	stationID uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func NewHub(cfg config.LiveStatusConfig, allowedOrigins []string, logg *logger.Logger) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	return &Hub{
		logg:         logg,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		sendBuffer:   cfg.SendBuffer,
		subs:         make(map[uuid.UUID]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ChargerStatusChanged implements availability.StatusListener.
func (h *Hub) ChargerStatusChanged(ctx context.Context, change availability.StatusChange) {
	payload, err := json.Marshal(Message{Type: "charger_status", Change: change})
	if err != nil {
		h.logg.Error(ctx, "encode live status frame", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[change.StationID] {
		select {
		case sub.send <- payload:
		default:
			h.logg.Warn(h.logg.WithStationID(ctx, change.StationID.String()), "live status subscriber buffer full; frame dropped")
		}
	}
}

// Subscribers reports how many connections watch a station.
func (h *Hub) Subscribers(stationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[stationID])
}

// ServeStation upgrades the request and streams the station's status changes
// until the client disconnects.
func (h *Hub) ServeStation(w http.ResponseWriter, r *http.Request, stationID uuid.UUID) {
	ctx := h.logg.WithStationID(r.Context(), stationID.String())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logg.Warn(ctx, "live status upgrade failed: "+err.Error())
		return
	}

	sub := &subscriber{
		stationID: stationID,
		conn:      conn,
		send:      make(chan []byte, h.sendBuffer),
	}
	h.add(sub)
	h.logg.Debug(ctx, "live status subscriber connected")

	done := make(chan struct{})
	go h.writePump(sub, done)
	h.readPump(sub)
	close(done)
	h.remove(sub)
	h.logg.Debug(ctx, "live status subscriber disconnected")
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.stationID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[sub.stationID] = set
	}
	set[sub] = struct{}{}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	set := h.subs[sub.stationID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.stationID)
	}
	h.mu.Unlock()
	sub.close()
}

// readPump only services control frames; clients never send data.
func (h *Hub) readPump(sub *subscriber) {
	sub.conn.SetReadLimit(readLimit)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg := <-sub.send:
			if err := h.write(sub, websocket.TextMessage, msg); err != nil {
				sub.close()
				return
			}
		case <-ticker.C:
			if err := h.write(sub, websocket.PingMessage, nil); err != nil {
				sub.close()
				return
			}
		}
	}
}

func (h *Hub) write(sub *subscriber, messageType int, data []byte) error {
	_ = sub.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return sub.conn.WriteMessage(messageType, data)
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

var _ availability.StatusListener = (*Hub)(nil)
