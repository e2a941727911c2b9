// Package subscription は購読・クレジット状態とクレジット履歴を提供する。
package subscription

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/creatorships/dashboard/internal/model"
	"github.com/creatorships/dashboard/internal/repository"
)

// enrichConcurrency は履歴のクリエイター情報取得の同時実行数。
const enrichConcurrency = 8

// PageViewReader はペイウォールの閲覧数を返す。
type PageViewReader interface {
	Get(ctx context.Context, userID string) (int, error)
}

// Service は購読・クレジット状態のサービス層。
type Service struct {
	subRepo     repository.SubscriptionRepository
	viewRepo    repository.EmailViewRepository
	creatorRepo repository.CreatorRepository
	pageViews   PageViewReader
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	subRepo repository.SubscriptionRepository,
	viewRepo repository.EmailViewRepository,
	creatorRepo repository.CreatorRepository,
	pageViews PageViewReader,
) *Service {
	return &Service{
		subRepo:     subRepo,
		viewRepo:    viewRepo,
		creatorRepo: creatorRepo,
		pageViews:   pageViews,
	}
}

// State は利用者の購読・クレジット状態を返す。
// 購読行が存在しない利用者は未購読・残高0として扱う。
func (s *Service) State(ctx context.Context, userID string) (model.SubscriptionState, error) {
	if userID == "" {
		return model.SubscriptionState{}, model.NewNoSessionError()
	}

	row, err := s.subRepo.FindByUserID(ctx, userID)
	if err != nil {
		return model.SubscriptionState{}, backendError("user_subscriptions", err)
	}

	var state model.SubscriptionState
	if row != nil {
		state.IsSubscribed = row.IsSubscribed
		state.CreditsRemaining = row.CreditsRemaining
	}

	if s.pageViews != nil {
		n, err := s.pageViews.Get(ctx, userID)
		if err != nil {
			slog.Warn("page view read failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		state.PagesViewed = n
	}
	return state, nil
}

// IsSubscribed は利用者が購読中かを返す。
func (s *Service) IsSubscribed(ctx context.Context, userID string) (bool, error) {
	row, err := s.subRepo.FindByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	return row != nil && row.IsSubscribed, nil
}

// History は利用者のクレジット履歴を返す。
// メールアドレスごとに最新の1件のみを残し、対応するクリエイター情報を付与してviewed_at降順で返す。
// クリエイター情報の取得失敗は履歴の欠落とせず、情報なしの行として返す。
func (s *Service) History(ctx context.Context, userID string) ([]model.CreditHistoryEntry, error) {
	if userID == "" {
		return nil, model.NewNoSessionError()
	}

	views, err := s.viewRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, backendError("email_views", err)
	}

	entries := Dedupe(views)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range entries {
		g.Go(func() error {
			c, err := s.creatorRepo.FindByEmail(gctx, entries[i].EmailViewed)
			if err != nil {
				slog.Warn("credit history enrichment failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if c != nil {
				entries[i].CreatorUsername = c.Username
				entries[i].CreatorImage = c.Image
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].ViewedAt.After(entries[b].ViewedAt)
	})
	return entries, nil
}

// Dedupe はメールアドレスの重複を除く。同一アドレスは先に現れたものを残す。
// 入力がviewed_at降順であれば、最新の開示が残る。
func Dedupe(views []model.EmailView) []model.CreditHistoryEntry {
	seen := make(map[string]bool, len(views))
	entries := make([]model.CreditHistoryEntry, 0, len(views))
	for _, v := range views {
		key := strings.ToLower(strings.TrimSpace(v.EmailViewed))
		if seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, model.CreditHistoryEntry{EmailView: v})
	}
	return entries
}

// backendError はリポジトリのエラーをAPIErrorに変換する。
func backendError(op string, err error) error {
	if repository.IsMalformed(err) {
		return model.NewMalformedResponseError(op, err.Error())
	}
	return model.NewTransientError("購読情報を取得できませんでした")
}
