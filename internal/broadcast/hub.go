package broadcast

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"battle-arena/internal/metrics"
	"battle-arena/internal/model"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// battleID filters messages; zero receives every battle.
	battleID uint64
}

// Hub pushes messages to WebSocket observers. A slow client drops messages
// rather than stalling the publisher.
type Hub struct {
	lock    sync.Mutex
	clients map[*client]struct{}
	closed  bool
	now     func() time.Time
	log     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		now:     time.Now,
		log:     logger.Named("ws"),
	}
}

// ServeWS upgrades the request. The optional battleId query parameter limits
// the stream to one battle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var battleID uint64
	if raw := r.URL.Query().Get("battleId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid battleId", http.StatusBadRequest)
			return
		}
		battleID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), battleID: battleID}

	h.lock.Lock()
	if h.closed {
		h.lock.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.lock.Unlock()
	metrics.WSClients.Inc()
	h.log.Debug("client connected", zap.Int("clients", n), zap.Uint64("battle_id", battleID))

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) PublishRanking(snap model.RankingSnapshot) {
	h.broadcast(snap.BattleID, RankingMessage(snap))
}

func (h *Hub) PublishJoin(n model.JoinNotice) {
	h.broadcast(n.BattleID, JoinMessage(n, h.now()))
}

// Clients returns the number of connected observers.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) broadcast(battleID uint64, msg Message) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		h.log.Error("encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		if c.battleID != 0 && c.battleID != battleID {
			continue
		}
		select {
		case c.send <- payload:
		default:
			metrics.BroadcastDrops.Inc()
		}
	}
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.WSClients.Dec()
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump drains control frames and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
