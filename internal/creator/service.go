// Package creator はクリエイター検索と検索結果キャッシュ、メディアキット、
// クリエイター画像のプロキシを提供する。
package creator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/creatorships/dashboard/internal/auth"
	"github.com/creatorships/dashboard/internal/metrics"
	"github.com/creatorships/dashboard/internal/model"
	"github.com/creatorships/dashboard/internal/repository"
)

// 表示モード
const (
	ViewGrid = "grid"
	ViewList = "list"
)

// Config は検索サービスの設定。
type Config struct {
	GridPageSize int
	ListPageSize int
	Debounce     time.Duration
	Timeout      time.Duration
}

// DefaultConfig は既定の検索設定を返す。
func DefaultConfig() Config {
	return Config{
		GridPageSize: 30,
		ListPageSize: 60,
		Debounce:     500 * time.Millisecond,
		Timeout:      10 * time.Second,
	}
}

// Params は検索画面から受け取る検索条件。
// MinFollowers/MaxFollowersを指定した場合はFollowerRangeより優先する。
type Params struct {
	Page          int
	ViewMode      string
	SearchText    string
	FollowerRange string
	MinFollowers  *int64
	MaxFollowers  *int64
	SortDirection model.SortDirection
}

// Service はクリエイター検索のサービス層。
type Service struct {
	repo     repository.CreatorRepository
	registry *Registry
	seq      *sequencer
	metrics  metrics.MetricsCollector
	config   Config
	after    func(time.Duration) <-chan time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CreatorRepository, registry *Registry, mc metrics.MetricsCollector, config Config) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	def := DefaultConfig()
	if config.GridPageSize <= 0 {
		config.GridPageSize = def.GridPageSize
	}
	if config.ListPageSize <= 0 {
		config.ListPageSize = def.ListPageSize
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Service{
		repo:     repo,
		registry: registry,
		seq:      newSequencer(registry.now),
		metrics:  mc,
		config:   config,
		after:    time.After,
	}
}

// PageSize は表示モードに応じた1ページの件数を返す。
func (s *Service) PageSize(viewMode string) int {
	if viewMode == ViewList {
		return s.config.ListPageSize
	}
	return s.config.GridPageSize
}

// BuildQuery は検索条件をバックエンドの検索パラメータに変換する。
func (s *Service) BuildQuery(p Params) (model.CreatorQuery, error) {
	switch p.ViewMode {
	case "", ViewGrid, ViewList:
	default:
		return model.CreatorQuery{}, model.NewValidationError(fmt.Sprintf("表示モードが不正です: %s", p.ViewMode))
	}

	page := p.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return model.CreatorQuery{}, model.NewValidationError("ページ番号は1以上で指定してください")
	}

	sort := p.SortDirection
	if sort == "" {
		sort = model.SortDesc
	}
	if !sort.Valid() {
		return model.CreatorQuery{}, model.NewValidationError(fmt.Sprintf("並び順が不正です: %s", sort))
	}

	fr, err := ParseFollowerRange(p.FollowerRange)
	if err != nil {
		return model.CreatorQuery{}, model.NewValidationError(err.Error())
	}
	min, max := fr.Min, fr.Max
	if p.MinFollowers != nil {
		min = *p.MinFollowers
	}
	if p.MaxFollowers != nil {
		max = p.MaxFollowers
	}
	if min < 0 || (max != nil && *max < min) {
		return model.CreatorQuery{}, model.NewValidationError("フォロワー数の範囲が不正です")
	}

	size := s.PageSize(p.ViewMode)
	// 範囲の終端がバックエンドのINTEGERに収まるページまで
	if page-1 > (math.MaxInt32-size+1)/size {
		return model.CreatorQuery{}, model.NewValidationError("ページ番号が大きすぎます")
	}
	start := (page - 1) * size
	return model.CreatorQuery{
		SortDirection: sort,
		Start:         start,
		End:           start + size - 1,
		Search:        strings.TrimSpace(p.SearchText),
		MinFollowers:  min,
		MaxFollowers:  max,
	}, nil
}

// cacheKey はキャッシュキーのJSON表現。フィールド順はキーの一部。
type cacheKey struct {
	Start         int                 `json:"start"`
	End           int                 `json:"end"`
	Search        string              `json:"search"`
	MinFollowers  int64               `json:"minFollowers"`
	MaxFollowers  *int64              `json:"maxFollowers"`
	SortDirection model.SortDirection `json:"sortDirection"`
}

// Key は検索パラメータの正規化されたキャッシュキーを返す。
func Key(q model.CreatorQuery) string {
	b, _ := json.Marshal(cacheKey{
		Start:         q.Start,
		End:           q.End,
		Search:        q.Search,
		MinFollowers:  q.MinFollowers,
		MaxFollowers:  q.MaxFollowers,
		SortDirection: q.SortDirection,
	})
	return string(b)
}

// Search はクリエイターを検索する。
//
// 前回の検索から検索語が変わった場合はDebounceの間待機し、その間に同じ利用者の
// 新しい検索が始まるとSEARCH_SUPERSEDEDを返す。TTL内のキャッシュがあれば
// バックエンドを呼ばない。バックエンドの失敗は空の結果として返し、キャッシュしない。
func (s *Service) Search(ctx context.Context, owner string, p Params) (Result, error) {
	if owner == "" {
		return Result{}, model.NewNoSessionError()
	}
	q, err := s.BuildQuery(p)
	if err != nil {
		return Result{}, err
	}

	t := s.seq.begin(ctx, owner, q.Search)
	defer s.seq.end(owner, t)

	if t.debounce && s.config.Debounce > 0 {
		select {
		case <-s.after(s.config.Debounce):
		case <-t.ctx.Done():
			return Result{}, s.cancelled(ctx, t)
		}
	}

	key := Key(q)
	if r, ok := s.registry.For(owner).Get(key); ok {
		s.metrics.RecordCacheHit()
		return r, nil
	}
	s.metrics.RecordCacheMiss()

	r, err := s.fetch(t.ctx, q)
	if t.superseded.Load() {
		s.metrics.RecordSearchFailure("superseded")
		return Result{}, model.NewSearchSupersededError()
	}
	if err != nil {
		s.metrics.RecordSearchFailure("backend")
		slog.Error("creator search failed",
			slog.String("user_id", owner),
			slog.String("cache_key", key),
			slog.String("error", err.Error()),
		)
		return Result{Creators: []model.Creator{}}, nil
	}

	// 取得中にスイーパーが空のCacheを破棄している場合があるため、書き込み時に引き直す
	s.registry.For(owner).Set(key, r)
	return r, nil
}

// fetch はページと総件数を並列に取得する。どちらかが失敗した場合はエラーを返す。
func (s *Service) fetch(ctx context.Context, q model.CreatorQuery) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	var (
		creators []model.Creator
		total    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		creators, err = s.repo.FetchPage(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, q.Search, q.MinFollowers, q.MaxFollowers)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	s.metrics.RecordSearchLatency(time.Since(start))

	if creators == nil {
		creators = []model.Creator{}
	}
	for i := range creators {
		creators[i].Email = nil
	}
	return Result{Creators: creators, TotalCount: total}, nil
}

func (s *Service) cancelled(ctx context.Context, t *ticket) error {
	if t.superseded.Load() {
		s.metrics.RecordSearchFailure("superseded")
		return model.NewSearchSupersededError()
	}
	return ctx.Err()
}

// ClearCache は利用者の検索結果キャッシュを破棄する。
func (s *Service) ClearCache(owner string) {
	s.registry.Drop(owner)
}

// Forget は利用者のキャッシュと実行中の検索を破棄する。
func (s *Service) Forget(owner string) {
	s.registry.Drop(owner)
	s.seq.forget(owner)
}

// Sweep は期限切れの検索結果と、TTLを過ぎても検索していない利用者の順序付け状態を破棄する。
func (s *Service) Sweep() int {
	removed := s.registry.Sweep()
	s.seq.prune(s.registry.now().Add(-s.registry.ttl))
	return removed
}

// Start はinterval間隔でSweepを実行する。コンテキストがキャンセルされるまで継続する。
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("検索キャッシュのスイーパーを停止しました")
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("expired search cache entries removed",
					slog.Int("removed", n),
					slog.Int("owners", s.registry.Owners()),
				)
			}
		}
	}
}

// HandleAuthEvent はサインアウトした利用者の状態を破棄する。
func (s *Service) HandleAuthEvent(ev auth.Event) {
	if ev.Type == model.AuthEventSignedOut && ev.UserID != "" {
		s.Forget(ev.UserID)
	}
}
