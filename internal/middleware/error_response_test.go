package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/creatorships/dashboard/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	apiErr := model.NewValidationError("budget must not be negative")
	WriteErrorResponse(w, HTTPStatus(apiErr), apiErr)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
	}
	if body.Message != apiErr.Message || body.Category != apiErr.Category || body.Action != apiErr.Action {
		t.Errorf("body = %+v, want fields copied from %+v", body, apiErr)
	}
	if body.Retryable || body.CreditsRemaining != nil {
		t.Errorf("validation error should be non-retryable without balance: %+v", body)
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}

// TestErrorResponseBody_AllFieldsPresent は全フィールドがJSONレスポンスに含まれることを検証する。
func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "CODE",
		Message:  "MSG",
		Category: "CAT",
		Action:   "ACT",
	})

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	requiredFields := []string{"code", "message", "category", "action", "retryable"}
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}

	// クレジット残高はクレジット関連エラーのときのみ含める
	if _, ok := raw["credits_remaining"]; ok {
		t.Error("credits_remaining should be omitted when nil")
	}
}

func TestHTTPStatus_MapsErrorCodes(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewValidationError("x"), http.StatusBadRequest},
		{model.NewNoSessionError(), http.StatusUnauthorized},
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{model.NewEmailNotConfirmedError(), http.StatusForbidden},
		{model.NewInsufficientCreditsError(0), http.StatusPaymentRequired},
		{model.NewCreatorNotFoundError("c1"), http.StatusNotFound},
		{model.NewCampaignNotFoundError("c1"), http.StatusNotFound},
		{model.NewConversationNotFoundError("c1"), http.StatusNotFound},
		{model.NewEmailNotAvailableError(), http.StatusNotFound},
		{model.NewSearchSupersededError(), http.StatusConflict},
		{&model.APIError{Code: ErrCodeRateLimited}, http.StatusTooManyRequests},
		{&model.APIError{Code: ErrCodeCSRFInvalid}, http.StatusForbidden},
		{model.NewMalformedResponseError("reveal", "x"), http.StatusBadGateway},
		{model.NewAvatarUnavailableError(), http.StatusBadGateway},
		{model.NewTransientError("x"), http.StatusServiceUnavailable},
		{&model.APIError{Code: "UNKNOWN"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}

func TestWriteAPIError_InsufficientCreditsIncludesBalance(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, fmt.Errorf("reveal: %w", model.NewInsufficientCreditsError(0)))

	resp := w.Result()
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusPaymentRequired)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.CreditsRemaining == nil || *body.CreditsRemaining != 0 {
		t.Errorf("credits_remaining = %v, want 0", body.CreditsRemaining)
	}
}

func TestWriteAPIError_TransientIsRetryable(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewTransientError("timeout"))

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !body.Retryable {
		t.Error("transient error should be retryable")
	}
}

func TestWriteAPIError_PlainErrorReturns500(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, errors.New("connection reset by peer"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
}
