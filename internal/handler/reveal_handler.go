package handler

import (
	"context"
	"net/http"

	"github.com/creatorships/dashboard/internal/reveal"
	"github.com/go-chi/chi/v5"
)

// RevealServiceInterface はメールアドレス開示ハンドラーが必要とするサービスインターフェース。
type RevealServiceInterface interface {
	Reveal(ctx context.Context, userID, email string) (*reveal.Result, error)
	RevealCreator(ctx context.Context, userID, creatorID string) (*reveal.CreatorResult, error)
}

// RevealHandler はクレジットを消費してメールアドレスを開示するHTTPハンドラー。
type RevealHandler struct {
	service RevealServiceInterface
}

// NewRevealHandler はRevealHandlerを生成する。
func NewRevealHandler(service RevealServiceInterface) *RevealHandler {
	return &RevealHandler{service: service}
}

type revealEmailRequest struct {
	Email string `json:"email"`
}

// RevealCreator はクリエイターのメールアドレスを開示する。
// 開示済みの場合はクレジットを消費せずalready_revealed=trueを返す。
// POST /api/creators/{id}/reveal
func (h *RevealHandler) RevealCreator(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.RevealCreator(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// RevealEmail は指定したメールアドレスを開示済みとして記録する。
// POST /api/emails/reveal
func (h *RevealHandler) RevealEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req revealEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Reveal(r.Context(), userID, req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
