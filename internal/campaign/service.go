// Package campaign はインフルエンサーキャンペーンの作成と管理を提供する。
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/creatorships/dashboard/internal/model"
	"github.com/creatorships/dashboard/internal/repository"
	"github.com/creatorships/dashboard/internal/security"
)

// maxNameLength はキャンペーン名の最大文字数。
const maxNameLength = 200

// maxCreatorsPerCampaign は1キャンペーンに含められるクリエイター数の上限。
const maxCreatorsPerCampaign = 100

// CreateInput はキャンペーン作成の入力。
type CreateInput struct {
	Name              string
	Objective         string
	CampaignType      string
	Budget            float64
	StartDate         time.Time
	EndDate           time.Time
	CreatorIDs        []string
	Deliverables      model.Deliverables
	ContentGuidelines string
	AdditionalNotes   string
	TargetAudience    model.TargetAudience
	PaymentTerms      string
}

// Service はキャンペーンのサービス層。
type Service struct {
	repo      repository.CampaignRepository
	sanitizer security.Sanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CampaignRepository, sanitizer security.Sanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create は入力を検証・無害化してキャンペーンを下書き状態で作成する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Campaign, error) {
	if userID == "" {
		return nil, model.NewNoSessionError()
	}

	name := s.sanitizer.Text(in.Name)
	if name == "" {
		return nil, model.NewValidationError("キャンペーン名は必須です")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, model.NewValidationError(fmt.Sprintf("キャンペーン名は%d文字以内で入力してください", maxNameLength))
	}
	if in.Budget < 0 {
		return nil, model.NewValidationError("予算は0以上で入力してください")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, model.NewValidationError("開始日と終了日は必須です")
	}
	if in.StartDate.After(in.EndDate) {
		return nil, model.NewValidationError("開始日は終了日以前の日付を指定してください")
	}
	d := in.Deliverables
	if d.Posts < 0 || d.Stories < 0 || d.Reels < 0 || d.Videos < 0 {
		return nil, model.NewValidationError("投稿数は0以上で入力してください")
	}
	creatorIDs := uniqueIDs(in.CreatorIDs)
	if len(creatorIDs) > maxCreatorsPerCampaign {
		return nil, model.NewValidationError(fmt.Sprintf("クリエイターは%d人まで指定できます", maxCreatorsPerCampaign))
	}

	now := s.now()
	c := &model.Campaign{
		ID:                uuid.New().String(),
		UserID:            userID,
		Name:              name,
		Objective:         s.sanitizer.Text(in.Objective),
		CampaignType:      s.sanitizer.Text(in.CampaignType),
		Budget:            in.Budget,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
		Status:            model.CampaignStatusDraft,
		CreatorIDs:        creatorIDs,
		Deliverables:      d,
		ContentGuidelines: s.sanitizer.Rich(in.ContentGuidelines),
		AdditionalNotes:   s.sanitizer.Text(in.AdditionalNotes),
		TargetAudience: model.TargetAudience{
			AgeRange:  s.sanitizer.Text(in.TargetAudience.AgeRange),
			Locations: s.texts(in.TargetAudience.Locations),
			Interests: s.texts(in.TargetAudience.Interests),
		},
		PaymentTerms: s.sanitizer.Text(in.PaymentTerms),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("キャンペーンの保存に失敗しました: %w", err)
	}

	slog.Info("campaign created",
		slog.String("user_id", userID),
		slog.String("campaign_id", c.ID),
		slog.Int("creators", len(c.CreatorIDs)),
	)
	return c, nil
}

// List は利用者のキャンペーンを作成日時の新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Campaign, error) {
	if userID == "" {
		return nil, model.NewNoSessionError()
	}
	campaigns, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の取得に失敗しました: %w", err)
	}
	if campaigns == nil {
		campaigns = []*model.Campaign{}
	}
	return campaigns, nil
}

// Get は利用者が所有するキャンペーンを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Campaign, error) {
	c, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("キャンペーンの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCampaignNotFoundError(id)
	}
	return c, nil
}

// UpdateStatus はキャンペーンのステータスを更新する。
func (s *Service) UpdateStatus(ctx context.Context, userID, id string, status model.CampaignStatus) error {
	if !status.Valid() {
		return model.NewValidationError(fmt.Sprintf("ステータスが不正です: %s", status))
	}
	ok, err := s.repo.UpdateStatus(ctx, userID, id, status)
	if err != nil {
		return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	if !ok {
		return model.NewCampaignNotFoundError(id)
	}
	return nil
}

// Delete はキャンペーンを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	ok, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("キャンペーンの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewCampaignNotFoundError(id)
	}
	return nil
}

func (s *Service) texts(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if t := s.sanitizer.Text(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// uniqueIDs は空白を除いたIDを出現順に重複なく返す。
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
