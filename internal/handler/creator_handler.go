package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/creatorships/dashboard/internal/creator"
	"github.com/creatorships/dashboard/internal/model"
	"github.com/go-chi/chi/v5"
)

// CreatorServiceInterface はクリエイター検索ハンドラーが必要とするサービスインターフェース。
type CreatorServiceInterface interface {
	Search(ctx context.Context, owner string, p creator.Params) (creator.Result, error)
	PageSize(viewMode string) int
	ClearCache(owner string)
}

// MediaKitServiceInterface はメディアキット取得のインターフェース。
type MediaKitServiceInterface interface {
	Get(ctx context.Context, username string) (*creator.MediaKit, error)
}

// AvatarFetcher はクリエイター画像の取得を行う。
type AvatarFetcher interface {
	Fetch(ctx context.Context, creatorID string) (*creator.Avatar, error)
}

// CreatorHandler はクリエイター検索のHTTPハンドラー。
type CreatorHandler struct {
	service  CreatorServiceInterface
	mediaKit MediaKitServiceInterface
	avatars  AvatarFetcher
}

// NewCreatorHandler はCreatorHandlerを生成する。
func NewCreatorHandler(service CreatorServiceInterface, mediaKit MediaKitServiceInterface, avatars AvatarFetcher) *CreatorHandler {
	return &CreatorHandler{
		service:  service,
		mediaKit: mediaKit,
		avatars:  avatars,
	}
}

// creatorSearchResponse はクリエイター検索のAPIレスポンス。
type creatorSearchResponse struct {
	Creators   []model.Creator `json:"creators"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// Search はクリエイターを検索する。
// GET /api/creators?page=1&view=grid&search=xxx&range=10K+-+50K&min_followers=&max_followers=&sort=desc
func (h *CreatorHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := parseSearchParams(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Search(r.Context(), userID, p)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	page := p.Page
	if page == 0 {
		page = 1
	}
	size := h.service.PageSize(p.ViewMode)
	totalPages := 0
	if size > 0 {
		totalPages = (result.TotalCount + size - 1) / size
	}

	writeJSON(w, http.StatusOK, creatorSearchResponse{
		Creators:   result.Creators,
		TotalCount: result.TotalCount,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
	})
}

// ClearCache は利用者の検索キャッシュを破棄する。検索画面を離れた時に呼ばれる。
// DELETE /api/creators/cache
func (h *CreatorHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	h.service.ClearCache(userID)
	w.WriteHeader(http.StatusNoContent)
}

// Avatar はクリエイター画像をプロキシする。
// GET /api/creators/{id}/avatar
func (h *CreatorHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	a, err := h.avatars.Fetch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
}

// MediaKit はクリエイターのメディアキットを返す。
// GET /api/mediakit/{username}
func (h *CreatorHandler) MediaKit(w http.ResponseWriter, r *http.Request) {
	kit, err := h.mediaKit.Get(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, kit)
}

// parseSearchParams はクエリパラメータから検索条件を組み立てる。
func parseSearchParams(r *http.Request) (creator.Params, error) {
	q := r.URL.Query()

	page, err := queryInt(r, "page", 1)
	if err != nil {
		return creator.Params{}, model.NewValidationError("ページ番号が不正です")
	}
	min, err := queryInt64Ptr(r, "min_followers")
	if err != nil {
		return creator.Params{}, model.NewValidationError("最小フォロワー数が不正です")
	}
	max, err := queryInt64Ptr(r, "max_followers")
	if err != nil {
		return creator.Params{}, model.NewValidationError("最大フォロワー数が不正です")
	}

	return creator.Params{
		Page:          page,
		ViewMode:      q.Get("view"),
		SearchText:    q.Get("search"),
		FollowerRange: q.Get("range"),
		MinFollowers:  min,
		MaxFollowers:  max,
		SortDirection: model.SortDirection(q.Get("sort")),
	}, nil
}
