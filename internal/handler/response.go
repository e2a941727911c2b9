// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/creatorships/dashboard/internal/middleware"
	"github.com/creatorships/dashboard/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 1 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを統一エラーフォーマットで書き込む。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteAPIError(w, err)
}

// requireUserID はコンテキストからユーザーIDを取り出す。
// 取得できない場合は401を書き込んでfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewNoSessionError())
		return "", false
	}
	return userID, true
}

// decodeJSON はリクエストボディをdstにデコードする。
// 失敗した場合は400を書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return false
	}
	return true
}

// queryInt はクエリパラメータを整数として読み取る。未指定の場合はdefを返す。
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// queryInt64Ptr はクエリパラメータを*int64として読み取る。未指定の場合はnilを返す。
func queryInt64Ptr(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
