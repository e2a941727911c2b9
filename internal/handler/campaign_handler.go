package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/creatorships/dashboard/internal/campaign"
	"github.com/creatorships/dashboard/internal/model"
	"github.com/go-chi/chi/v5"
)

// dateLayout はキャンペーン期間の日付形式。
const dateLayout = "2006-01-02"

// CampaignServiceInterface はキャンペーンハンドラーが必要とするサービスインターフェース。
type CampaignServiceInterface interface {
	Create(ctx context.Context, userID string, in campaign.CreateInput) (*model.Campaign, error)
	List(ctx context.Context, userID string) ([]*model.Campaign, error)
	Get(ctx context.Context, userID, id string) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, userID, id string, status model.CampaignStatus) error
	Delete(ctx context.Context, userID, id string) error
}

// CampaignHandler はキャンペーン管理のHTTPハンドラー。
type CampaignHandler struct {
	service CampaignServiceInterface
}

// NewCampaignHandler はCampaignHandlerを生成する。
func NewCampaignHandler(service CampaignServiceInterface) *CampaignHandler {
	return &CampaignHandler{service: service}
}

// createCampaignRequest はキャンペーン作成リクエストのボディ。
type createCampaignRequest struct {
	Name              string               `json:"name"`
	Objective         string               `json:"objective"`
	CampaignType      string               `json:"campaign_type"`
	Budget            float64              `json:"budget"`
	StartDate         string               `json:"start_date"`
	EndDate           string               `json:"end_date"`
	CreatorIDs        []string             `json:"creator_ids"`
	Deliverables      model.Deliverables   `json:"deliverables"`
	ContentGuidelines string               `json:"content_guidelines"`
	AdditionalNotes   string               `json:"additional_notes"`
	TargetAudience    model.TargetAudience `json:"target_audience"`
	PaymentTerms      string               `json:"payment_terms"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// campaignResponse はキャンペーンのAPIレスポンス。
type campaignResponse struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Objective         string               `json:"objective"`
	CampaignType      string               `json:"campaign_type"`
	Budget            float64              `json:"budget"`
	StartDate         string               `json:"start_date"`
	EndDate           string               `json:"end_date"`
	Status            string               `json:"status"`
	CreatorIDs        []string             `json:"creator_ids"`
	Deliverables      model.Deliverables   `json:"deliverables"`
	ContentGuidelines string               `json:"content_guidelines"`
	AdditionalNotes   string               `json:"additional_notes"`
	TargetAudience    model.TargetAudience `json:"target_audience"`
	PaymentTerms      string               `json:"payment_terms"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// Create はキャンペーンを作成する。
// POST /api/campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		handleServiceError(w, model.NewValidationError("開始日の形式が正しくありません"))
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		handleServiceError(w, model.NewValidationError("終了日の形式が正しくありません"))
		return
	}

	c, err := h.service.Create(r.Context(), userID, campaign.CreateInput{
		Name:              req.Name,
		Objective:         req.Objective,
		CampaignType:      req.CampaignType,
		Budget:            req.Budget,
		StartDate:         start,
		EndDate:           end,
		CreatorIDs:        req.CreatorIDs,
		Deliverables:      req.Deliverables,
		ContentGuidelines: req.ContentGuidelines,
		AdditionalNotes:   req.AdditionalNotes,
		TargetAudience:    req.TargetAudience,
		PaymentTerms:      req.PaymentTerms,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCampaignResponse(c))
}

// List は利用者のキャンペーン一覧を返す。
// GET /api/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	campaigns, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, toCampaignResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はキャンペーン詳細を返す。
// GET /api/campaigns/{id}
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCampaignResponse(c))
}

// UpdateStatus はキャンペーンのステータスを更新する。
// PATCH /api/campaigns/{id}/status
func (h *CampaignHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdateStatus(r.Context(), userID, chi.URLParam(r, "id"), model.CampaignStatus(req.Status)); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete はキャンペーンを削除する。
// DELETE /api/campaigns/{id}
func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// parseDate は日付文字列を解析する。空文字列はゼロ値として返し、必須チェックはサービス層で行う。
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// toCampaignResponse はmodel.CampaignからAPIレスポンスに変換する。
func toCampaignResponse(c *model.Campaign) campaignResponse {
	creatorIDs := c.CreatorIDs
	if creatorIDs == nil {
		creatorIDs = []string{}
	}
	return campaignResponse{
		ID:                c.ID,
		Name:              c.Name,
		Objective:         c.Objective,
		CampaignType:      c.CampaignType,
		Budget:            c.Budget,
		StartDate:         c.StartDate.Format(dateLayout),
		EndDate:           c.EndDate.Format(dateLayout),
		Status:            string(c.Status),
		CreatorIDs:        creatorIDs,
		Deliverables:      c.Deliverables,
		ContentGuidelines: c.ContentGuidelines,
		AdditionalNotes:   c.AdditionalNotes,
		TargetAudience:    c.TargetAudience,
		PaymentTerms:      c.PaymentTerms,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}
