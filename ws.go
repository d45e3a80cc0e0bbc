package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	observerQueueSize = 64
	writeTimeout      = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// observer is one websocket client with its own outbound queue, so a slow or
// dead client only loses its own messages.
type observer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (o *observer) close() {
	o.once.Do(func() {
		close(o.done)
		_ = o.conn.Close()
	})
}

// wsHub is the observer registry. It implements Sink.
type wsHub struct {
	logger  *zap.Logger
	metrics *relayMetrics

	mu        sync.Mutex
	observers map[*observer]struct{}
}

func newWSHub(logger *zap.Logger, metrics *relayMetrics) *wsHub {
	return &wsHub{
		logger:    logger,
		metrics:   metrics,
		observers: make(map[*observer]struct{}),
	}
}

func (h *wsHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade error", zap.Error(err))
		return
	}
	o := &observer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, observerQueueSize),
		done: make(chan struct{}),
	}
	h.add(o)
	h.logger.Info("observer connected", zap.String("observer", o.id), zap.String("remote_addr", r.RemoteAddr))

	go h.writePump(o)
	go h.readPump(o)
}

func (h *wsHub) add(o *observer) {
	h.mu.Lock()
	h.observers[o] = struct{}{}
	n := len(h.observers)
	h.mu.Unlock()
	h.metrics.recordObservers(n)
}

func (h *wsHub) remove(o *observer) {
	h.mu.Lock()
	_, ok := h.observers[o]
	delete(h.observers, o)
	n := len(h.observers)
	h.mu.Unlock()
	o.close()
	if ok {
		h.metrics.recordObservers(n)
		h.logger.Info("observer disconnected", zap.String("observer", o.id))
	}
}

// Publish queues v for every observer without blocking on any of them.
func (h *wsHub) Publish(v VehicleState) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for o := range h.observers {
		select {
		case o.send <- data:
		default:
			h.metrics.recordObserverDrop()
		}
	}
	return nil
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// close disconnects every observer.
func (h *wsHub) close() {
	h.mu.Lock()
	observers := make([]*observer, 0, len(h.observers))
	for o := range h.observers {
		observers = append(observers, o)
	}
	h.mu.Unlock()
	for _, o := range observers {
		h.remove(o)
	}
}

func (h *wsHub) writePump(o *observer) {
	defer h.remove(o)
	for {
		select {
		case <-o.done:
			return
		case data := <-o.send:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := o.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("observer write failed", zap.String("observer", o.id), zap.Error(err))
				return
			}
			h.metrics.recordObserverMessage()
		}
	}
}

// readPump discards inbound messages and notices when the client goes away.
func (h *wsHub) readPump(o *observer) {
	defer h.remove(o)
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}
