package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/creatorships/dashboard/internal/model"
	"github.com/go-chi/chi/v5"
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	StartConversation(ctx context.Context, userID, creatorID string) (*model.Conversation, error)
	ListMessages(ctx context.Context, userID, conversationID string) ([]*model.Message, error)
	Send(ctx context.Context, userID, conversationID, content string) (*model.Message, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// MessageHandler はクリエイターとのメッセージのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

type startConversationRequest struct {
	CreatorID string `json:"creator_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type conversationResponse struct {
	ID          string    `json:"id"`
	CreatorID   string    `json:"creator_id"`
	CreatorName string    `json:"creator_name"`
	LastMessage string    `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ListConversations は会話一覧を返す。
// GET /api/conversations
func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	convs, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]conversationResponse, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, toConversationResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartConversation はクリエイターとの会話を開始する。既存の会話があればそれを返す。
// POST /api/conversations
func (h *MessageHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req startConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.service.StartConversation(r.Context(), userID, req.CreatorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

// ListMessages は会話のメッセージを古い順に返し、既読にする。
// GET /api/conversations/{id}/messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.ListMessages(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send はメッセージを送信する。
// POST /api/conversations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Send(r.Context(), userID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

// UnreadCount は未読メッセージ数を返す。
// GET /api/messages/unread
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	n, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func toConversationResponse(c *model.Conversation) conversationResponse {
	return conversationResponse{
		ID:          c.ID,
		CreatorID:   c.CreatorID,
		CreatorName: c.CreatorName,
		LastMessage: c.LastMessage,
		UnreadCount: c.UnreadCount,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}
}
