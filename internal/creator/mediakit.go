package creator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/creatorships/dashboard/internal/model"
	"github.com/creatorships/dashboard/internal/repository"
)

// 規模別のティア
const (
	TierNano  = "nano"
	TierMicro = "micro"
	TierMid   = "mid"
	TierMacro = "macro"
	TierMega  = "mega"
)

// MediaKit はクリエイターのメディアキット。
type MediaKit struct {
	Creator            model.Creator `json:"creator"`
	FollowersFormatted string        `json:"followers_formatted"`
	Tier               string        `json:"tier"`
	AnalyticsURL       string        `json:"analytics_url"`
}

// FormatFollowers はフォロワー数を"1.2M"、"12.5K"の形式で返す。1000未満はそのまま返す。
func FormatFollowers(n int64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}

// Tier はフォロワー数からティアを返す。
func Tier(n int64) string {
	switch {
	case n >= 1_000_000:
		return TierMega
	case n >= 500_000:
		return TierMacro
	case n >= 100_000:
		return TierMid
	case n >= 10_000:
		return TierMicro
	default:
		return TierNano
	}
}

// MediaKitService はメディアキットを組み立てる。
type MediaKitService struct {
	repo repository.CreatorRepository
}

// NewMediaKitService はMediaKitServiceの新しいインスタンスを生成する。
func NewMediaKitService(repo repository.CreatorRepository) *MediaKitService {
	return &MediaKitService{repo: repo}
}

// Get はユーザー名でクリエイターを取得し、メディアキットを返す。
// メールアドレスは開示前のため含めない。
func (s *MediaKitService) Get(ctx context.Context, username string) (*MediaKit, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, model.NewValidationError("ユーザー名は必須です")
	}

	c, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if repository.IsMalformed(err) {
			return nil, model.NewMalformedResponseError("tiktok", err.Error())
		}
		return nil, model.NewTransientError("クリエイター情報を取得できませんでした")
	}
	if c == nil {
		return nil, model.NewCreatorNotFoundError(username)
	}

	kit := &MediaKit{
		Creator:            *c,
		FollowersFormatted: FormatFollowers(c.Followers),
		Tier:               Tier(c.Followers),
		AnalyticsURL:       fmt.Sprintf("https://countik.com/tiktok-analytics/user/%s", c.Username),
	}
	kit.Creator.Email = nil
	return kit, nil
}
