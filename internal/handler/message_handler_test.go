package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/creatorships/dashboard/internal/model"
)

// mockMessageService はMessageServiceInterfaceのモック実装。
type mockMessageService struct {
	listConversationsFn func(ctx context.Context, userID string) ([]*model.Conversation, error)
	startFn             func(ctx context.Context, userID, creatorID string) (*model.Conversation, error)
	listMessagesFn      func(ctx context.Context, userID, conversationID string) ([]*model.Message, error)
	sendFn              func(ctx context.Context, userID, conversationID, content string) (*model.Message, error)
	unreadFn            func(ctx context.Context, userID string) (int, error)
}

func (m *mockMessageService) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	if m.listConversationsFn != nil {
		return m.listConversationsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockMessageService) StartConversation(ctx context.Context, userID, creatorID string) (*model.Conversation, error) {
	if m.startFn != nil {
		return m.startFn(ctx, userID, creatorID)
	}
	return nil, model.NewCreatorNotFoundError(creatorID)
}

func (m *mockMessageService) ListMessages(ctx context.Context, userID, conversationID string) ([]*model.Message, error) {
	if m.listMessagesFn != nil {
		return m.listMessagesFn(ctx, userID, conversationID)
	}
	return nil, model.NewConversationNotFoundError(conversationID)
}

func (m *mockMessageService) Send(ctx context.Context, userID, conversationID, content string) (*model.Message, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, userID, conversationID, content)
	}
	return nil, model.NewConversationNotFoundError(conversationID)
}

func (m *mockMessageService) UnreadCount(ctx context.Context, userID string) (int, error) {
	if m.unreadFn != nil {
		return m.unreadFn(ctx, userID)
	}
	return 0, nil
}

func TestMessageHandler_ListConversations(t *testing.T) {
	updated := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	svc := &mockMessageService{
		listConversationsFn: func(context.Context, string) ([]*model.Conversation, error) {
			return []*model.Conversation{
				{ID: "conv-1", CreatorID: "c1", CreatorName: "Aiko", LastMessage: "hi", UnreadCount: 2, UpdatedAt: updated},
			}, nil
		},
	}
	h := NewMessageHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/conversations", nil), "user-1")
	w := httptest.NewRecorder()

	h.ListConversations(w, req)

	var body []conversationResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(body) != 1 || body[0].CreatorName != "Aiko" || body[0].UnreadCount != 2 {
		t.Errorf("body = %+v", body)
	}
}

func TestMessageHandler_StartConversation(t *testing.T) {
	svc := &mockMessageService{
		startFn: func(_ context.Context, userID, creatorID string) (*model.Conversation, error) {
			if creatorID != "c1" {
				return nil, model.NewCreatorNotFoundError(creatorID)
			}
			return &model.Conversation{ID: "conv-1", UserID: userID, CreatorID: creatorID}, nil
		},
	}
	h := NewMessageHandler(svc)

	tests := []struct {
		name       string
		creatorID  string
		wantStatus int
	}{
		{"known creator", "c1", http.StatusOK},
		{"unknown creator", "c9", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/conversations", jsonBody(t, map[string]string{"creator_id": tt.creatorID}))
			req = withUserID(req, "user-1")
			w := httptest.NewRecorder()

			h.StartConversation(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMessageHandler_ListMessages(t *testing.T) {
	svc := &mockMessageService{
		listMessagesFn: func(_ context.Context, _ string, conversationID string) ([]*model.Message, error) {
			return []*model.Message{
				{ID: "m1", ConversationID: conversationID, SenderID: "user-1", Content: "hello"},
			}, nil
		},
	}
	h := NewMessageHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages", nil)
	req = withChiURLParam(withUserID(req, "user-1"), "id", "conv-1")
	w := httptest.NewRecorder()

	h.ListMessages(w, req)

	var body []map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(body) != 1 || string(body[0]["conversation_id"]) != `"conv-1"` {
		t.Errorf("body = %v", body)
	}
	if _, ok := body[0]["read_at"]; ok {
		t.Error("read_at should be omitted for unread messages")
	}
}

func TestMessageHandler_Send(t *testing.T) {
	var gotContent string
	svc := &mockMessageService{
		sendFn: func(_ context.Context, userID, conversationID, content string) (*model.Message, error) {
			gotContent = content
			return &model.Message{ID: "m2", ConversationID: conversationID, SenderID: userID, Content: content}, nil
		},
	}
	h := NewMessageHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/conv-1/messages", jsonBody(t, map[string]string{"content": "Let's collaborate"}))
	req = withChiURLParam(withUserID(req, "user-1"), "id", "conv-1")
	w := httptest.NewRecorder()

	h.Send(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotContent != "Let's collaborate" {
		t.Errorf("content = %q", gotContent)
	}
}

func TestMessageHandler_Send_UnknownConversation_Returns404(t *testing.T) {
	h := NewMessageHandler(&mockMessageService{})

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/other/messages", jsonBody(t, map[string]string{"content": "x"}))
	req = withChiURLParam(withUserID(req, "user-1"), "id", "other")
	w := httptest.NewRecorder()

	h.Send(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMessageHandler_UnreadCount(t *testing.T) {
	svc := &mockMessageService{
		unreadFn: func(context.Context, string) (int, error) { return 5, nil },
	}
	h := NewMessageHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/messages/unread", nil), "user-1")
	w := httptest.NewRecorder()

	h.UnreadCount(w, req)

	var body map[string]int
	json.NewDecoder(w.Body).Decode(&body)
	if body["unread"] != 5 {
		t.Errorf("unread = %d, want 5", body["unread"])
	}
}
