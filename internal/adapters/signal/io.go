package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/studyhub/signal-server/internal/app"
	"github.com/studyhub/signal-server/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump drives the connection's whole lifecycle: when the read loop
// exits, for any reason, the coordinator tears the connection down.
func (ctl *Controller) readPump(ctx context.Context, id core.ConnID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.Coord.Disconnect(id)
		ctl.chatLimiter.Forget(id)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(ctx, id, c, data)
		}
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, id core.ConnID, c *wsConn, data []byte) {
	msg, err := app.ParseInbound(data)
	if err != nil {
		if errors.Is(err, app.ErrMalformed) {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("malformed message")
			ctl.sendJSON(c, app.NewErrorEvent("malformed-message"))
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("parse inbound")
		return
	}

	if msg.Kind == app.KindChat && !ctl.chatLimiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("chat rate limited")
		ctl.sendJSON(c, app.NewErrorEvent("rate-limited"))
		return
	}

	ctl.Coord.Handle(ctx, id, msg)
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
