package ws

import (
	"encoding/json"
	"sync"

	"mission_rewards/internal/domain"
	"mission_rewards/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Open websocket connections",
	})
	wsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_dropped_messages_total",
		Help: "Events dropped because a client send buffer was full",
	})
)

func init() {
	prometheus.MustRegister(wsConnections, wsDropped)
}

// Hub fans domain events out to every connection of a wallet.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.Wallet]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.Wallet] = set
	}
	set[c] = struct{}{}
	wsConnections.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.Wallet]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.Wallet)
	}
	close(c.Send)
	wsConnections.Dec()
}

// Connections returns the number of open connections of wallet.
func (h *Hub) Connections(wallet string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[wallet])
}

// Publish delivers ev to the wallet's connections without blocking. A
// client whose buffer is full misses the event.
func (h *Hub) Publish(wallet string, ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[wallet]
	if len(set) == 0 {
		return
	}

	msg, err := json.Marshal(Message{Type: ev.Type, Payload: ev.Payload, At: ev.At.Unix()})
	if err != nil {
		logger.Error("ws: failed to encode event", "type", ev.Type, "error", err)
		return
	}
	for c := range set {
		select {
		case c.Send <- msg:
		default:
			wsDropped.Inc()
		}
	}
}
