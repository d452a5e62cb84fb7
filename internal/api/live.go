package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/terra-clan/mot-engine/internal/models"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
	liveQueryWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleLiveBoard streams a session leaderboard over a websocket: once on
// connect and again after every change
func (s *Server) handleLiveBoard(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.GetSession(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondGameError(w, err, "get session")
		return
	}
	code := session.Code
	limit := queryInt(r, "limit", 0)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	changes, unsubscribe := s.hub.Subscribe(code)
	defer unsubscribe()

	slog.Info("live board connected", "code", code, "viewers", s.hub.Subscribers(code))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Viewers only listen; the read loop handles pongs and notices disconnects
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(livePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	if err := s.pushBoard(ctx, conn, code, limit); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("live board disconnected", "code", code)
			return
		case <-changes:
			if err := s.pushBoard(ctx, conn, code, limit); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pushBoard sends the current leaderboard; query failures are reported to the viewer without closing
func (s *Server) pushBoard(ctx context.Context, conn *websocket.Conn, code string, limit int) error {
	queryCtx, cancel := context.WithTimeout(ctx, liveQueryWait)
	defer cancel()

	msg := models.BoardUpdate{Type: "leaderboard", SessionCode: code}
	entries, err := s.manager.SessionLeaderboard(queryCtx, code, limit)
	if err != nil {
		slog.Error("failed to load live board", "code", code, "error", err)
		msg = models.BoardUpdate{Type: "error", SessionCode: code, Error: "leaderboard unavailable"}
	} else {
		msg.Entries = entries
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal board update", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send board update", "error", err)
		return err
	}
	return nil
}
