package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
	logx "github.com/concertbot/server/pkg/logger"
)

// Frame types sent to the browser.
const (
	FrameReply = "reply"
	FrameError = "error"
)

// Frame is one server-to-browser websocket message.
type Frame struct {
	Type  string       `json:"type"`
	Reply *model.Reply `json:"reply,omitempty"`
	Error string       `json:"error,omitempty"`
}

// handleWebSocket runs one connection: user messages in, turn replies and
// pushed delayed replies out.
func (s *Server) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		if _, err := s.agent.Session(r.Context(), sessionID); err != nil {
			writeError(w, err)
			return
		}

		log := logx.Session(sessionID)
		conn, err := websocket.Accept(w, r, s.acceptOptions())
		if err != nil {
			log.Warn().Err(err).Msg("websocket accept failed")
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		pushed, unsubscribe, err := s.agent.Subscribe(ctx, sessionID)
		if err != nil {
			_ = conn.Close(websocket.StatusPolicyViolation, errx.MessageOf(err))
			return
		}
		defer unsubscribe()

		go s.pushLoop(ctx, cancel, conn, pushed)
		log.Debug().Msg("websocket connected")

		s.readLoop(ctx, conn, sessionID, &log)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		log.Debug().Msg("websocket disconnected")
	}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if s.cfg.AllowOrigin == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return nil
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, log *zerolog.Logger) {
	for {
		var msg messageRequest
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}

		frame := Frame{Type: FrameReply}
		reply, err := s.agent.HandleMessage(ctx, sessionID, msg.Text)
		if err != nil {
			frame = Frame{Type: FrameError, Error: errx.MessageOf(err)}
		} else {
			frame.Reply = reply
		}
		if err := wsjson.Write(ctx, conn, frame); err != nil {
			return
		}
	}
}

// pushLoop forwards delayed replies until the subscription closes.
func (s *Server) pushLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, pushed <-chan *model.Reply) {
	for {
		select {
		case <-ctx.Done():
			return
		case reply, ok := <-pushed:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "session ended")
				cancel()
				return
			}
			if err := wsjson.Write(ctx, conn, Frame{Type: FrameReply, Reply: reply}); err != nil {
				cancel()
				return
			}
		}
	}
}
