package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/creatorships/dashboard/internal/model"
)

// ErrCodeRateLimited はレート制限超過のエラーコード。
const ErrCodeRateLimited = "RATE_LIMITED"

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	Category         string `json:"category"`
	Action           string `json:"action"`
	Retryable        bool   `json:"retryable"`
	CreditsRemaining *int   `json:"credits_remaining,omitempty"`
}

// HTTPStatus はエラーコードに対応するHTTPステータスを返す。
func HTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeNoSession, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeEmailNotConfirmed, ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeInsufficientCredits:
		return http.StatusPaymentRequired
	case model.ErrCodeCreatorNotFound, model.ErrCodeCampaignNotFound,
		model.ErrCodeConversationNotFound, model.ErrCodeEmailNotAvailable:
		return http.StatusNotFound
	case model.ErrCodeSearchSuperseded:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeMalformedResponse, model.ErrCodeAvatarUnavailable:
		return http.StatusBadGateway
	case model.ErrCodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:             apiErr.Code,
		Message:          apiErr.Message,
		Category:         apiErr.Category,
		Action:           apiErr.Action,
		Retryable:        apiErr.Retryable,
		CreditsRemaining: apiErr.CreditsRemaining,
	})
}

// WriteAPIError はエラーを統一フォーマットで書き込む。
// APIError以外のエラーは詳細をログのみに記録し、500を返す。
func WriteAPIError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, HTTPStatus(apiErr), apiErr)
		return
	}
	slog.Error("internal error", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
