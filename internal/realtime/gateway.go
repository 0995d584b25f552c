package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/gambitlab/gamecore/internal/obslog"
)

// Gateway bridges a match channel's pub/sub stream to WebSocket
// subscribers. Clients are passive consumers: anything they send besides
// control frames is discarded.
type Gateway struct {
	rdb *redis.Client
	srv *http.Server
}

func NewGateway(rdb *redis.Client, addr string) *Gateway {
	g := &Gateway{rdb: rdb}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	g.srv = &http.Server{Addr: addr, Handler: mux}
	return g
}

// ListenAndServe blocks until the server stops.
func (g *Gateway) ListenAndServe() error {
	err := g.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.srv.Shutdown(ctx)
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel == "" {
		http.Error(w, "channel required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := g.rdb.Subscribe(ctx, channel)
	defer sub.Close()

	// Drain the client side so close frames are processed; subscribers
	// never send application data.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	obslog.L().Info("ws_subscribe", zap.String("channel", channel))
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, []byte(msg.Payload))
			writeCancel()
			if err != nil {
				obslog.L().Debug("ws_write_error", zap.String("channel", channel), zap.Error(err))
				return
			}
		}
	}
}
