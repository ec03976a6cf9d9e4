package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vestafi/bonding-backend/internal/metrics"
	"github.com/vestafi/bonding-backend/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Watcher is the ticker-side hook: the hub tells it which wallets currently
// have live subscribers.
type Watcher interface {
	Watch(ctx context.Context, addr common.Address)
	Unwatch(addr common.Address)
}

// Hub routes per-wallet vesting updates from the cache pubsub channel to
// websocket clients subscribed to that wallet.
type Hub struct {
	cache   *store.Cache
	watcher Watcher
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	allowedOrigins map[string]bool

	mu      sync.RWMutex
	clients map[*client]bool
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	address common.Address
}

// envelope is what the ticker publishes; only the address is needed for
// routing, the rest is forwarded verbatim.
type envelope struct {
	Address string `json:"address"`
}

func NewHub(cache *store.Cache, watcher Watcher, allowedOrigins []string, logger *zap.SugaredLogger, m *metrics.Metrics) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}
	return &Hub{
		cache:          cache,
		watcher:        watcher,
		logger:         logger,
		metrics:        m,
		allowedOrigins: origins,
		clients:        make(map[*client]bool),
	}
}

// Run consumes the vesting channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	sub := h.cache.Subscribe(ctx, store.ChannelVesting)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("websocket hub shutting down")
			h.closeAll()
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			h.route(msg.Payload)
		}
	}
}

func (h *Hub) route(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		h.logger.Warnw("unroutable vesting update", "error", err)
		return
	}
	if !common.IsHexAddress(env.Address) {
		return
	}
	addr := common.HexToAddress(env.Address)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.address != addr {
			continue
		}
		select {
		case c.send <- []byte(payload):
		default:
			// Slow consumer; drop the frame, the next tick replaces it.
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return h.allowedOrigins[origin]
		},
	}
}

// ServeWS upgrades the connection and streams vesting updates for the wallet
// in the `address` query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	rawAddr := r.URL.Query().Get("address")
	if !common.IsHexAddress(rawAddr) {
		http.Error(w, "valid address query parameter required", http.StatusBadRequest)
		return
	}
	addr := common.HexToAddress(rawAddr)

	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16), address: addr}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncrementConnections(r.Context())
	}
	h.watcher.Watch(r.Context(), addr)

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	h.watcher.Unwatch(c.address)
	if h.metrics != nil {
		h.metrics.DecrementConnections(context.Background())
	}
	c.conn.Close()
}

// readLoop drains control frames and detects disconnects; clients send no
// application data.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
