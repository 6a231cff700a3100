package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LaveshwarPS/canvascode/internal/protocol"
	"github.com/LaveshwarPS/canvascode/internal/ratelimit"
	"github.com/LaveshwarPS/canvascode/internal/room"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 256 * 1024
	eventsPerSecond  = 100
	eventBurst       = 200
	sendBufferFrames = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket connection. It starts Unjoined; a join message
// binds it to a room, and the binding holds until disconnect.
//
// roomID and session are touched only from the connection's read goroutine,
// which is the sole caller of Router.Handle for this connection.
type Client struct {
	router *Router
	conn   *websocket.Conn
	send   chan []byte
	id     string

	roomID  string        // empty while Unjoined
	session *room.Session // nil while Unjoined

	limiter *ratelimit.Limiter

	mu     sync.Mutex
	closed bool
}

// ServeWS upgrades an HTTP request into a drawing session connection.
func ServeWS(router *Router, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	c := &Client{
		router:  router,
		conn:    conn,
		send:    make(chan []byte, sendBufferFrames),
		id:      uuid.New().String(),
		limiter: ratelimit.NewLimiter(eventsPerSecond, eventBurst),
	}

	go c.writePump()
	go c.readPump()
}

// Send queues a frame for delivery. The frame is dropped along with the
// connection when the client cannot keep up.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.closed = true
		close(c.send)
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.router.Disconnect(c)
		c.closeSend()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				log.Printf("⚠️ Rate limit exceeded for session %s (warning #%d)",
					c.id, rateLimitWarnings)
			}
			if rateLimitWarnings > 1000 {
				log.Printf("🚫 Disconnecting session %s for excessive rate limit violations", c.id)
				return
			}
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("⚠️ Invalid message from session %s: %v", c.id, err)
			continue
		}

		c.router.Handle(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON envelope per frame so clients can parse frames
			// independently.
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
