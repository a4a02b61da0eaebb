package providers

import (
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/gudfood/realtime/src/transport"
	"github.com/valyala/fasthttp"
)

const sessionWriteTimeout = 10 * time.Second

// Handler routes the STOMP endpoint to the WebSocket upgrade and every
// other path to the fiber app.
func (b *Broker) Handler() fasthttp.RequestHandler {
	api := b.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == b.cfg.Endpoint {
			b.handleUpgrade(ctx)
			return
		}
		api(ctx)
	}
}

func (b *Broker) handleUpgrade(ctx *fasthttp.RequestCtx) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
		return
	}
	if b.hub.SessionCount() >= b.cfg.MaxConnections {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"capacity","message":"too many connections"}`)
		return
	}

	sessionID := uuid.NewString()
	err := b.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		b.hub.Serve(sessionID, transport.NewConn(conn, sessionWriteTimeout))
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}
