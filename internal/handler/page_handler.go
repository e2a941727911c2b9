package handler

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// placeholderPage はSTATIC_DIR未設定時に返すSPAのシェル。
const placeholderPage = `<!doctype html>
<html lang="ja">
<head><meta charset="utf-8"><title>Creatorships</title></head>
<body><div id="root"></div></body>
</html>
`

// PageHandler はSPAのページを配信する。
// 画面遷移のたびにセッションゲートとペイウォールを通過させるため、
// すべてのページルートで同じindex.htmlを返す。
type PageHandler struct {
	staticDir string
}

// NewPageHandler はPageHandlerを生成する。staticDirが空の場合はプレースホルダーを返す。
func NewPageHandler(staticDir string) *PageHandler {
	return &PageHandler{staticDir: staticDir}
}

// ServeHTTP はindex.htmlを返す。
func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if h.staticDir == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(placeholderPage))
		return
	}
	http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
}

// Assets はビルド済みの静的ファイルを配信するハンドラーを返す。
// staticDirが空またはassetsディレクトリが存在しない場合はnilを返す。
func (h *PageHandler) Assets() http.Handler {
	if h.staticDir == "" {
		return nil
	}
	dir := filepath.Join(h.staticDir, "assets")
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		slog.Warn("static assets directory not found", slog.String("dir", dir))
		return nil
	}
	return http.StripPrefix("/assets/", http.FileServer(http.Dir(dir)))
}

// HealthChecker はバックエンドストアの疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler はヘルスチェックエンドポイントのハンドラーを返す。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
