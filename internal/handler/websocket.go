package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"sisi-realtime/internal/auth"
	"sisi-realtime/internal/hub"
	"sisi-realtime/internal/middleware"
	"sisi-realtime/internal/store"
	"sisi-realtime/internal/wire"
)

const (
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	maxContentSize = 10000
)

type WebSocketHandler struct {
	Hub         *hub.Hub
	Fanout      hub.Fanout
	Store       *store.Store
	TokenConfig auth.TokenConfig
	// MessageLimiter caps chat_message frames per user. Nil disables it.
	MessageLimiter *middleware.RateLimiter
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter serializes writes; the hub and the read loop share it.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

// Serve upgrades /ws/:user_id. The token must name the same user as the path.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	userID := c.Param("user_id")
	tokenString := middleware.BearerToken(c)
	if tokenString == "" {
		abortDetail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	claims, err := auth.VerifyToken(tokenString, h.TokenConfig)
	if err != nil {
		abortDetail(c, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	if claims.UserID() != userID {
		abortDetail(c, http.StatusForbidden, "Access denied")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	writer := &wsWriter{conn: ws}
	conn := &hub.Connection{UserID: userID, Writer: writer}
	if h.Hub.Register(conn) {
		h.Store.SetStatus(userID, "online")
	}
	defer func() {
		if h.Hub.Unregister(conn) {
			h.Store.SetStatus(userID, "offline")
		}
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			continue
		}
		h.dispatch(claims, writer, frame)
	}
}

func (h *WebSocketHandler) fanout() hub.Fanout {
	if h.Fanout != nil {
		return h.Fanout
	}
	return h.Hub
}

func (h *WebSocketHandler) dispatch(claims *auth.Claims, self *wsWriter, frame wire.Frame) {
	userID := claims.UserID()
	switch f := frame.(type) {
	case wire.ChatMessage:
		h.chatMessage(claims, f)
	case wire.Typing:
		h.typing(userID, f)
	case wire.RefreshNotifications:
		data, err := wire.Encode(wire.NotificationsUpdate{Notifications: h.Store.Notifications(userID)})
		if err != nil {
			return
		}
		_ = self.Write(data)
	}
}

// typing forwards the indicator to the other participants. Senders outside
// the chat are ignored.
func (h *WebSocketHandler) typing(userID string, f wire.Typing) {
	chat, ok := h.Store.Chat(f.ChatID)
	if !ok {
		return
	}
	member := false
	others := make([]string, 0, len(chat.Participants))
	for _, p := range chat.Participants {
		if p == userID {
			member = true
			continue
		}
		others = append(others, p)
	}
	if !member {
		return
	}
	push(h.fanout(), wire.Typing{ChatID: f.ChatID, UserID: userID, IsTyping: f.IsTyping}, others...)
}

func (h *WebSocketHandler) chatMessage(claims *auth.Claims, f wire.ChatMessage) {
	userID := claims.UserID()
	content := strings.TrimSpace(f.Content)
	if f.ChatID == "" || content == "" || len(content) > maxContentSize {
		return
	}
	if h.MessageLimiter != nil && !h.MessageLimiter.Allow(userID) {
		return
	}

	senderName := f.SenderName
	if senderName == "" {
		senderName = claims.DisplayName
	}

	msg, chat, err := h.Store.AppendMessage(userID, f.ChatID, senderName, content, f.MessageType, time.Now())
	if err != nil {
		if !errors.Is(err, store.ErrChatNotFound) && !errors.Is(err, store.ErrNotParticipant) {
			log.Printf("ws: store message from %s: %v", userID, err)
		}
		return
	}
	push(h.fanout(), wire.NewMessage{Message: msg}, chat.Participants...)
}
