// Package signal is the WebSocket adapter: it owns the transport
// resources and feeds decoded envelopes to the lifecycle coordinator.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/studyhub/signal-server/internal/app"
	"github.com/studyhub/signal-server/internal/config"
	"github.com/studyhub/signal-server/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Coord *app.Coordinator
	Cfg   *config.Config

	chatLimiter *ChatLimiter
}

func NewController(coord *app.Coordinator, cfg *config.Config) *Controller {
	return &Controller{
		Coord:       coord,
		Cfg:         cfg,
		chatLimiter: NewChatLimiter(cfg.ChatRateLimit, cfg.ChatRateInterval),
	}
}

// wsConn implements core.SignalConnection over a gorilla websocket with
// a buffered send channel. TrySend never blocks the relay: a full
// buffer is reported as backpressure and the frame is dropped.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request, registers the connection with a
// fresh id and starts the read/write pumps.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new ws connection")

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	ctl.Coord.Connect(id, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, id, conn)
}
