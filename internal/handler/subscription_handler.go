package handler

import (
	"context"
	"net/http"

	"github.com/creatorships/dashboard/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// State は購読状態・クレジット残高・ページ閲覧数を返す。
	State(ctx context.Context, userID string) (model.SubscriptionState, error)
	// History はクレジット履歴を新しい順に返す。
	History(ctx context.Context, userID string) ([]model.CreditHistoryEntry, error)
}

// SubscriptionHandler は購読状態とクレジット履歴のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// creditHistoryResponse はクレジット履歴のAPIレスポンス。
type creditHistoryResponse struct {
	Entries []model.CreditHistoryEntry `json:"entries"`
	Total   int                        `json:"total"`
}

// GetState は購読状態を返す。
// GET /api/subscription
func (h *SubscriptionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	state, err := h.service.State(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// GetHistory はクレジット履歴を返す。
// GET /api/credits/history
func (h *SubscriptionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.CreditHistoryEntry{}
	}

	writeJSON(w, http.StatusOK, creditHistoryResponse{Entries: entries, Total: len(entries)})
}
