package relay

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-relay/internal/model/chat"
	"github.com/zhouzirui/persona-relay/internal/model/persona"
	relayService "github.com/zhouzirui/persona-relay/internal/service/relay"
	"github.com/zhouzirui/persona-relay/pkg/utils"
)

// Handler 会话中继的HTTP处理器
type Handler struct {
	relaySvc *relayService.Service
}

// New 创建中继处理器
func New(relaySvc *relayService.Service) *Handler {
	return &Handler{relaySvc: relaySvc}
}

// RegisterRoutes 注册轮次与结束会话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/process-text", h.handleProcessText)
	r.Post("/end-conversation", h.handleEndConversation)
}

// RegisterInspectionRoutes 注册只读查询路由
func (h *Handler) RegisterInspectionRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{chatID}", h.handleGetSession)
	r.Get("/usage", h.handleUsage)
}

// turnPayload is the wire shape of a turn request. messages may arrive as an
// array or as a string holding a serialized array.
type turnPayload struct {
	ChatID             string          `json:"chat_id"`
	Persona            persona.Persona `json:"persona"`
	Messages           json.RawMessage `json:"messages"`
	Text               string          `json:"text"`
	CustomInstructions string          `json:"custom_instructions"`
	PrimeDirective     string          `json:"prime_directive"`
	TimeLimit          *float64        `json:"time_limit"`
	MessageLimit       *float64        `json:"message_limit"`
}

func (p turnPayload) toRequest(chatID string) relayService.TurnRequest {
	instructions := p.CustomInstructions
	if instructions == "" {
		instructions = p.PrimeDirective
	}

	var limits relayService.Limits
	if p.TimeLimit != nil {
		minutes := *p.TimeLimit
		limits.TimeMinutes = &minutes
	}
	if p.MessageLimit != nil {
		messages := clampMessageLimit(*p.MessageLimit)
		limits.Messages = &messages
	}

	return relayService.TurnRequest{
		ChatID:             chatID,
		Persona:            p.Persona,
		Messages:           chat.DecodeMessages(p.Messages),
		Text:               p.Text,
		CustomInstructions: instructions,
		Limits:             limits,
	}
}

// clampMessageLimit converts a JSON number to a message count without
// overflowing; limits too large for an int are never reached anyway.
func clampMessageLimit(v float64) int {
	switch {
	case v >= float64(math.MaxInt):
		return math.MaxInt
	case v <= 0:
		return 0
	default:
		return int(v)
	}
}

type turnResponse struct {
	ProcessedText string      `json:"processed_text"`
	Response      string      `json:"response"`
	PersonaID     *string     `json:"persona_id"`
	ChatID        string      `json:"chat_id"`
	Status        chat.Status `json:"status"`
	TimeElapsed   float64     `json:"time_elapsed"`
	MessagesSent  int         `json:"messages_sent"`
}

func newTurnResponse(result relayService.TurnResult) turnResponse {
	return turnResponse{
		ProcessedText: result.Reply,
		Response:      result.Reply,
		PersonaID:     result.PersonaID,
		ChatID:        result.ChatID,
		Status:        result.Status,
		TimeElapsed:   result.TimeElapsed,
		MessagesSent:  result.MessagesSent,
	}
}

type endResponse struct {
	Success      bool    `json:"success"`
	MessagesSent int     `json:"messages_sent"`
	TimeElapsed  float64 `json:"time_elapsed"`
}

// handleProcessText 处理一轮对话
func (h *Handler) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var payload turnPayload
	if ok := decodeBody(w, r, &payload); !ok {
		return
	}

	result, err := h.relaySvc.ProcessTurn(r.Context(), payload.toRequest(payload.ChatID))
	if err != nil {
		respondRelayError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, newTurnResponse(result))
}

// handleEndConversation 结束会话并返回用量
func (h *Handler) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChatID string `json:"chat_id"`
	}
	if ok := decodeBody(w, r, &payload); !ok {
		return
	}

	summary, err := h.relaySvc.EndConversation(r.Context(), payload.ChatID)
	if err != nil {
		respondRelayError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, endResponse{
		Success:      true,
		MessagesSent: summary.MessagesSent,
		TimeElapsed:  summary.TimeElapsed,
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessions": h.relaySvc.Sessions(r.Context()),
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	summary, err := h.relaySvc.Inspect(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		respondRelayError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	totals, recent, err := h.relaySvc.Usage(r.Context(), limit)
	if err != nil {
		respondRelayError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"totals": totals,
		"recent": recent,
	})
}

// decodeBody writes a 400 and returns false when the body is absent or not JSON.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		utils.RespondError(w, http.StatusBadRequest, "No data provided")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			utils.RespondError(w, http.StatusBadRequest, "No data provided")
			return false
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps relay error kinds onto HTTP status codes.
func statusFor(err error) int {
	var relayErr *relayService.Error
	if !errors.As(err, &relayErr) {
		return http.StatusInternalServerError
	}

	switch relayErr.Kind {
	case relayService.KindInput:
		return http.StatusBadRequest
	case relayService.KindNotFound:
		return http.StatusNotFound
	case relayService.KindUpstream:
		if relayErr.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respondRelayError(w http.ResponseWriter, err error) {
	utils.RespondError(w, statusFor(err), err.Error())
}
