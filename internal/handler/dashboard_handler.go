package handler

import (
	"context"
	"net/http"

	"github.com/creatorships/dashboard/internal/dashboard"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	Overview(ctx context.Context, userID string) (*dashboard.Overview, error)
	Statistics(ctx context.Context, userID string) (*dashboard.Statistics, error)
	Report(ctx context.Context, userID string) (*dashboard.Report, error)
}

// DashboardHandler はダッシュボード各パネルのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Overview は概要パネルを返す。
// GET /api/dashboard/overview
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	o, err := h.service.Overview(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Statistics は統計パネルを返す。
// GET /api/dashboard/statistics
func (h *DashboardHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	s, err := h.service.Statistics(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Reports はレポートパネルを返す。
// GET /api/dashboard/reports
func (h *DashboardHandler) Reports(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	rep, err := h.service.Report(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
