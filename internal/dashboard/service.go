// Package dashboard はダッシュボードの概要・統計・レポートの集計を提供する。
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/creatorships/dashboard/internal/model"
	"github.com/creatorships/dashboard/internal/repository"
	"github.com/creatorships/dashboard/internal/subscription"
)

// StatisticsDays は統計の集計日数。
const StatisticsDays = 30

// StateReader は購読・クレジット状態を返す。
type StateReader interface {
	State(ctx context.Context, userID string) (model.SubscriptionState, error)
}

// UnreadCounter は未読メッセージ数を返す。
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// Overview はダッシュボードの概要パネル。
type Overview struct {
	ActiveCampaigns  int     `json:"active_campaigns"`
	TotalCampaigns   int     `json:"total_campaigns"`
	TotalBudget      float64 `json:"total_budget"`
	CreditsRemaining int     `json:"credits_remaining"`
	IsSubscribed     bool    `json:"is_subscribed"`
	EmailsRevealed   int     `json:"emails_revealed"`
	UnreadMessages   int     `json:"unread_messages"`
}

// DayCount は1日あたりの件数。
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Statistics は統計パネル。
type Statistics struct {
	RevealsPerDay []DayCount `json:"reveals_per_day"`
	TotalReveals  int        `json:"total_reveals"`
}

// StatusReport はステータス別のキャンペーン集計。
type StatusReport struct {
	Status       model.CampaignStatus `json:"status"`
	Campaigns    int                  `json:"campaigns"`
	Budget       float64              `json:"budget"`
	Deliverables int                  `json:"deliverables"`
	Creators     int                  `json:"creators"`
}

// Report はレポートパネル。
type Report struct {
	ByStatus          []StatusReport `json:"by_status"`
	TotalBudget       float64        `json:"total_budget"`
	TotalDeliverables int            `json:"total_deliverables"`
}

// Service はダッシュボード集計のサービス層。
type Service struct {
	campaigns repository.CampaignRepository
	views     repository.EmailViewRepository
	state     StateReader
	unread    UnreadCounter
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	campaigns repository.CampaignRepository,
	views repository.EmailViewRepository,
	state StateReader,
	unread UnreadCounter,
) *Service {
	return &Service{
		campaigns: campaigns,
		views:     views,
		state:     state,
		unread:    unread,
		now:       time.Now,
	}
}

// Overview は概要パネルの値を並列に集計する。
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	if userID == "" {
		return nil, model.NewNoSessionError()
	}

	var (
		o         Overview
		campaigns []*model.Campaign
		views     []model.EmailView
		state     model.SubscriptionState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		campaigns, err = s.campaigns.ListByUserID(gctx, userID)
		if err != nil {
			return fmt.Errorf("キャンペーン一覧の取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		views, err = s.views.ListByUserID(gctx, userID)
		if err != nil {
			return fmt.Errorf("開示履歴の取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		state, err = s.state.State(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		o.UnreadMessages, err = s.unread.UnreadCount(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	o.TotalCampaigns = len(campaigns)
	for _, c := range campaigns {
		if c.Status == model.CampaignStatusActive {
			o.ActiveCampaigns++
		}
		o.TotalBudget += c.Budget
	}
	o.CreditsRemaining = state.CreditsRemaining
	o.IsSubscribed = state.IsSubscribed
	o.EmailsRevealed = len(subscription.Dedupe(views))
	return &o, nil
}

// Statistics は直近StatisticsDays日間の日別開示数を返す。日付はUTCで区切る。
func (s *Service) Statistics(ctx context.Context, userID string) (*Statistics, error) {
	if userID == "" {
		return nil, model.NewNoSessionError()
	}

	views, err := s.views.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("開示履歴の取得に失敗しました: %w", err)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	first := today.AddDate(0, 0, -(StatisticsDays - 1))

	counts := make(map[string]int, StatisticsDays)
	for _, v := range views {
		day := v.ViewedAt.UTC().Truncate(24 * time.Hour)
		if day.Before(first) || day.After(today) {
			continue
		}
		counts[day.Format(time.DateOnly)]++
	}

	st := &Statistics{RevealsPerDay: make([]DayCount, 0, StatisticsDays)}
	for d := first; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		st.RevealsPerDay = append(st.RevealsPerDay, DayCount{Date: key, Count: counts[key]})
		st.TotalReveals += counts[key]
	}
	return st, nil
}

// Report はステータス別のキャンペーン集計を返す。全ステータスを常に含む。
func (s *Service) Report(ctx context.Context, userID string) (*Report, error) {
	if userID == "" {
		return nil, model.NewNoSessionError()
	}

	campaigns, err := s.campaigns.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の取得に失敗しました: %w", err)
	}

	byStatus := map[model.CampaignStatus]*StatusReport{
		model.CampaignStatusDraft:     {Status: model.CampaignStatusDraft},
		model.CampaignStatusActive:    {Status: model.CampaignStatusActive},
		model.CampaignStatusCompleted: {Status: model.CampaignStatusCompleted},
	}
	r := &Report{}
	for _, c := range campaigns {
		sr, ok := byStatus[c.Status]
		if !ok {
			continue
		}
		sr.Campaigns++
		sr.Budget += c.Budget
		sr.Deliverables += c.Deliverables.Total()
		sr.Creators += len(c.CreatorIDs)
		r.TotalBudget += c.Budget
		r.TotalDeliverables += c.Deliverables.Total()
	}

	for _, sr := range byStatus {
		r.ByStatus = append(r.ByStatus, *sr)
	}
	order := map[model.CampaignStatus]int{
		model.CampaignStatusDraft:     0,
		model.CampaignStatusActive:    1,
		model.CampaignStatusCompleted: 2,
	}
	sort.Slice(r.ByStatus, func(i, j int) bool {
		return order[r.ByStatus[i].Status] < order[r.ByStatus[j].Status]
	})
	return r, nil
}
