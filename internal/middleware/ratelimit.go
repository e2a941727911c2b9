package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/creatorships/dashboard/internal/model"
	"golang.org/x/time/rate"
)

// defaultCleanupInterval はCleanupInterval未指定時の掃除間隔。
const defaultCleanupInterval = 5 * time.Minute

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	RevealRate      rate.Limit    // メールアドレス開示のレート（req/sec）
	RevealBurst     int           // メールアドレス開示のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、メールアドレス開示 20 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinuteConfig(120, 20)
}

// PerMinuteConfig は1分あたりのリクエスト数からレート制限設定を生成する。
// バーストサイズは1分あたりのリクエスト数と同じとする。
func PerMinuteConfig(general, reveal int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(general) / 60.0),
		GeneralBurst:    general,
		RevealRate:      rate.Limit(float64(reveal) / 60.0),
		RevealBurst:     reveal,
		CleanupInterval: defaultCleanupInterval,
	}
}

// limiterPool はユーザーごとのトークンバケットを保持する。
type limiterPool struct {
	kind  string
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*poolEntry
}

type poolEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newLimiterPool(kind string, limit rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		kind:    kind,
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*poolEntry),
	}
}

// take はトークンを1つ消費する。消費できない場合は補充までの待ち時間を返す。
func (p *limiterPool) take(userID string, now time.Time) (bool, time.Duration) {
	p.mu.Lock()
	e, ok := p.entries[userID]
	if !ok {
		e = &poolEntry{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.entries[userID] = e
	}
	e.lastAccess = now
	p.mu.Unlock()

	res := e.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		// 予約は取り消してトークンを戻す
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep は最終アクセスからttlを過ぎたエントリを削除する。
func (p *limiterPool) sweep(now time.Time, ttl time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for userID, e := range p.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(p.entries, userID)
			removed++
		}
	}
	return removed
}

func (p *limiterPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般とメールアドレス開示の2系統を独立に制限する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterPool
	reveal  *limiterPool
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaultCleanupInterval
	}
	rl := &RateLimiter{
		config:  config,
		general: newLimiterPool("general", config.GeneralRate, config.GeneralBurst),
		reveal:  newLimiterPool("reveal", config.RevealRate, config.RevealBurst),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// セッションゲートの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// RevealMiddleware はメールアドレス開示専用のレート制限ミドルウェアを返す。
// クレジットを消費する操作のため、API全般のレート制限とは独立に制限する。
func (rl *RateLimiter) RevealMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.reveal)
}

func (rl *RateLimiter) middleware(pool *limiterPool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewNoSessionError())
				return
			}

			if ok, wait := pool.take(userID, rl.now()); !ok {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", pool.kind),
					slog.Duration("retry_after", wait),
				)
				writeRateLimitResponse(w, wait)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// RevealLimiterCount は現在管理されているメールアドレス開示リミッターのエントリ数を返す。
func (rl *RateLimiter) RevealLimiterCount() int {
	return rl.reveal.len()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := rl.now()
	rl.general.sweep(now, ttl)
	rl.reveal.sweep(now, ttl)
}

// writeRateLimitResponse は429 RATE_LIMITEDを書き込む。
// Retry-Afterはトークンが補充されるまでの秒数（切り上げ、最低1秒）。
func writeRateLimitResponse(w http.ResponseWriter, wait time.Duration) {
	retryAfterSec := int(math.Ceil(wait.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:      ErrCodeRateLimited,
		Message:   "リクエストが多すぎます。",
		Category:  "system",
		Action:    "しばらく待ってから再度お試しください。",
		Retryable: true,
	})
}
