// Package paywall はページ閲覧数による無料枠の判定を提供する。
// 購読していない利用者は一定数のページを閲覧した後、購読ページへ誘導される。
package paywall

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultFreePages は購読なしで閲覧できるページ数。
const DefaultFreePages = 5

// SubscriptionRedirect は無料枠を超えた場合の誘導先。
const SubscriptionRedirect = "/subscription"

// PageViewStore は利用者ごとのページ閲覧数を保持する。
type PageViewStore interface {
	Get(ctx context.Context, userID string) (int, error)
	Increment(ctx context.Context, userID string) (int, error)
	// IncrementBelow は閲覧数がlimit未満の場合に限り1増やす。
	// 判定と加算は1回の操作で行い、okがfalseの場合は現在の閲覧数を返す。
	IncrementBelow(ctx context.Context, userID string, limit int) (n int, ok bool, err error)
}

// SubscriptionChecker は購読状態を返す。
type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, userID string) (bool, error)
}

// Decision はページ遷移の判定結果。
type Decision struct {
	Allowed     bool
	Redirect    string
	PagesViewed int
}

// Counter はページ遷移ごとに無料枠を判定するペイウォールカウンター。
type Counter struct {
	subs  SubscriptionChecker
	views PageViewStore
	quota int
}

// NewCounter はCounterを生成する。quotaが0以下の場合はDefaultFreePagesを使用する。
func NewCounter(subs SubscriptionChecker, views PageViewStore, quota int) *Counter {
	if quota <= 0 {
		quota = DefaultFreePages
	}
	return &Counter{subs: subs, views: views, quota: quota}
}

// Quota は無料枠のページ数を返す。
func (c *Counter) Quota() int {
	return c.quota
}

// Enter はページ遷移を判定する。
// 購読していない利用者の閲覧数が無料枠に達している場合は購読ページへの誘導を返し、閲覧数は増やさない。
// それ以外の場合は閲覧数をちょうど1増やして許可する。
// 購読状態の取得に失敗した場合は購読していないものとして扱う。
func (c *Counter) Enter(ctx context.Context, userID string) (Decision, error) {
	subscribed, err := c.subs.IsSubscribed(ctx, userID)
	if err != nil {
		slog.Warn("subscription check failed, treating as not subscribed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		subscribed = false
	}

	if subscribed {
		viewed, err := c.views.Increment(ctx, userID)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to increment page views: %w", err)
		}
		return Decision{Allowed: true, PagesViewed: viewed}, nil
	}

	// 同時に届いたページ遷移が枠を超えて通過しないよう、判定と加算を1回で行う
	viewed, ok, err := c.views.IncrementBelow(ctx, userID, c.quota)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment page views: %w", err)
	}
	if !ok {
		return Decision{Allowed: false, Redirect: SubscriptionRedirect, PagesViewed: viewed}, nil
	}
	return Decision{Allowed: true, PagesViewed: viewed}, nil
}

// PagesViewed は利用者の現在の閲覧数を返す。
func (c *Counter) PagesViewed(ctx context.Context, userID string) (int, error) {
	return c.views.Get(ctx, userID)
}
