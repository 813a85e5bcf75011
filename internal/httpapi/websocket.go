package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"go.uber.org/zap"
)

// handleMarketStream expects one JSON SubscribeRequest as the first frame
// and then streams the merged feed events as JSON frames
func (s *Server) handleMarketStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	var req gatewayv1.SubscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.closeWith(conn, websocket.CloseUnsupportedData, "expected a subscribe request")
		return
	}
	stream, err := s.market.Subscribe(&req)
	if err != nil {
		s.closeWith(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer stream.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.readPump(conn, cancel)

	events := make(chan *gatewayv1.SubscribeResponse)
	go func() {
		defer close(events)
		for {
			ev, err := stream.Next(ctx)
			if err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := s.writePump(ctx, conn, events); err != nil {
		s.logger.Debug("market websocket closed", zap.Error(err))
	}
}

// handleUserStream streams the user data events as JSON frames
func (s *Server) handleUserStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.users.Subscribe()
	defer s.users.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	go s.readPump(conn, cancel)

	if err := s.writePump(ctx, conn, sub.Events()); err != nil {
		s.logger.Debug("user websocket closed", zap.Error(err))
	}
}

// readPump discards client frames and cancels the stream once the peer goes
// away or stops answering pings
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump forwards events until the channel closes, then sends a normal
// close frame
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, events <-chan *gatewayv1.SubscribeResponse) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.closeWith(conn, websocket.CloseNormalClosure, "stream ended")
				return io.EOF
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

const maxCloseReason = 120

// closeWith sends a close frame; control frame payloads are capped at 125
// bytes so long reasons are cut
func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, truncateReason(reason, maxCloseReason))
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("failed to send close frame", zap.Error(err))
	}
}

// truncateReason cuts reason to at most n bytes without splitting a rune
func truncateReason(reason string, n int) string {
	if len(reason) <= n {
		return reason
	}
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}
