package relay

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	relayService "github.com/zhouzirui/persona-relay/internal/service/relay"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
)

// WebSocketHandler serves turns over a long-lived socket bound to one chat id.
type WebSocketHandler struct {
	relaySvc *relayService.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(relaySvc *relayService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		relaySvc: relaySvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{chatID}", h.handleWebSocket)
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Type      string      `json:"type"`
	ChatID    string      `json:"chatId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if chatID == "" {
		http.Error(w, "chatID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] new connection chat=%s", chatID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	go pingLoop(ctx, conn)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error chat=%s: %v", chatID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if done := h.handleFrame(ctx, conn, chatID, frame); done {
			return
		}
	}
}

// handleFrame serves one inbound frame and reports whether the socket should close.
func (h *WebSocketHandler) handleFrame(ctx context.Context, conn *websocket.Conn, chatID string, frame inboundFrame) bool {
	switch frame.Type {
	case "turn":
		var payload turnPayload
		if len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				sendFrame(conn, "error", chatID, map[string]string{"error": "invalid turn payload"})
				return false
			}
		}

		result, err := h.relaySvc.ProcessTurn(ctx, payload.toRequest(chatID))
		if err != nil {
			sendFrame(conn, "error", chatID, map[string]any{"error": err.Error(), "status": statusFor(err)})
			return false
		}
		sendFrame(conn, "reply", chatID, newTurnResponse(result))
		return false

	case "end":
		summary, err := h.relaySvc.EndConversation(ctx, chatID)
		if err != nil {
			sendFrame(conn, "error", chatID, map[string]any{"error": err.Error(), "status": statusFor(err)})
			return true
		}
		sendFrame(conn, "ended", chatID, endResponse{
			Success:      true,
			MessagesSent: summary.MessagesSent,
			TimeElapsed:  summary.TimeElapsed,
		})
		return true

	default:
		sendFrame(conn, "error", chatID, map[string]string{"error": "unsupported frame type: " + frame.Type})
		return false
	}
}

func sendFrame(conn *websocket.Conn, frameType, chatID string, data interface{}) {
	msg := outboundFrame{
		Type:      frameType,
		ChatID:    chatID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] write %s failed: %v", frameType, err)
	}
}

// pingLoop 定期发送ping消息；WriteControl 可与 WriteJSON 并发调用
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
