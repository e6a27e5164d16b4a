// Package notifier streams exchange rate events to websocket clients
package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

// Event types
const (
	EventCreated = "created"
	EventChanged = "changed"
)

// Event is the message sent to clients
type Event struct {
	Type     string           `json:"type"`
	Previous *entity.Snapshot `json:"previous,omitempty"`
	Current  entity.Snapshot  `json:"current"`
}

type connection struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// Hub fans rate events out to every connected websocket client. It is an
// entity.Observer: attach it to the rates whose changes should be streamed.
type Hub struct {
	connections map[*connection]bool
	broadcast   chan []byte
	register    chan *connection
	unregister  chan *connection
	done        chan struct{}

	clients  atomic.Int32
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewHub creates a hub; call Run to start delivering messages
func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &Hub{
		connections: make(map[*connection]bool),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		done:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Run delivers messages until ctx is done, then closes every connection.
// It must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.connections {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.connections[c] = true
			h.clients.Add(1)
			h.log.Debug("Registered websocket connection", map[string]interface{}{"connection_id": c.id})
		case c := <-h.unregister:
			if _, ok := h.connections[c]; ok {
				h.drop(c)
				h.log.Debug("Unregistered websocket connection", map[string]interface{}{"connection_id": c.id})
			}
		case m := <-h.broadcast:
			for c := range h.connections {
				select {
				case c.send <- m:
				default:
					h.log.Warn("Dropping slow websocket connection", map[string]interface{}{"connection_id": c.id})
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *connection) {
	delete(h.connections, c)
	close(c.send)
	h.clients.Add(-1)
}

// Clients returns the number of registered connections
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

// ServeHTTP upgrades the request to a websocket and registers the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	c := &connection{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- c:
	case <-r.Context().Done():
		_ = ws.Close()
		return
	case <-h.done:
		_ = ws.Close()
		return
	}

	go h.writer(c)
	h.reader(c)
}

// reader discards client messages and unregisters the connection once it fails
func (h *Hub) reader(c *connection) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.ws.Close()
	}()

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writer(c *connection) {
	defer func() { _ = c.ws.Close() }()

	for message := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) publish(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("Websocket broadcast buffer full, event dropped", map[string]interface{}{
			"type": event.Type,
			"rate": event.Current.Key().String(),
		})
	}
	return nil
}

// ExchangeRateCreated streams a created event
func (h *Hub) ExchangeRateCreated(current entity.Snapshot) error {
	return h.publish(Event{Type: EventCreated, Current: current})
}

// ExchangeRateUpdated is ignored; only changes are streamed
func (h *Hub) ExchangeRateUpdated(previous, current entity.Snapshot) error {
	return nil
}

// ExchangeRateChanged streams a changed event
func (h *Hub) ExchangeRateChanged(previous, current entity.Snapshot) error {
	return h.publish(Event{Type: EventChanged, Previous: &previous, Current: current})
}
