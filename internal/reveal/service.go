// Package reveal はクレジットを消費してクリエイターのメールアドレスを開示する。
// 課金と記録はバックエンドのreveal_emailが原子的に行い、このパッケージは
// 結果の解釈と同一プロセス内の重複リクエストの集約を担う。
package reveal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/creatorships/dashboard/internal/logger"
	"github.com/creatorships/dashboard/internal/metrics"
	"github.com/creatorships/dashboard/internal/model"
	"github.com/creatorships/dashboard/internal/repository"
)

// DefaultTimeout はバックエンド呼び出しの既定タイムアウト。
const DefaultTimeout = 10 * time.Second

// StateReader は開示後の購読状態を再取得する。
type StateReader interface {
	State(ctx context.Context, userID string) (model.SubscriptionState, error)
}

// Result は開示の結果を表す。
type Result struct {
	CreditsRemaining int  `json:"credits_remaining"`
	AlreadyRevealed  bool `json:"already_revealed"`
	IsSubscribed     bool `json:"is_subscribed"`
}

// CreatorResult はクリエイター指定の開示結果を表す。
type CreatorResult struct {
	Result
	CreatorID string `json:"creator_id"`
	Email     string `json:"email"`
}

// Service はメールアドレス開示のサービス層。
type Service struct {
	views    repository.EmailViewRepository
	creators repository.CreatorRepository
	state    StateReader
	metrics  metrics.MetricsCollector
	timeout  time.Duration
	group    singleflight.Group
}

// NewService はServiceの新しいインスタンスを生成する。
// timeoutが0以下の場合はDefaultTimeoutを使用する。
func NewService(
	views repository.EmailViewRepository,
	creators repository.CreatorRepository,
	state StateReader,
	mc metrics.MetricsCollector,
	timeout time.Duration,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		views:    views,
		creators: creators,
		state:    state,
		metrics:  mc,
		timeout:  timeout,
	}
}

// Reveal は利用者のクレジットを1消費してメールアドレスを開示する。
// 開示済みのアドレスは課金せずAlreadyRevealed=trueで成功とする。
// 同一プロセス内で同じ(利用者, アドレス)の同時リクエストは1回のバックエンド呼び出しに集約する。
func (s *Service) Reveal(ctx context.Context, userID, email string) (*Result, error) {
	if userID == "" {
		return nil, model.NewNoSessionError()
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, model.NewValidationError("メールアドレスは必須です")
	}

	key := userID + "\x00" + strings.ToLower(email)
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.reveal(context.WithoutCancel(ctx), userID, email)
	})
	if shared {
		slog.Debug("reveal coalesced", slog.String("user_id", userID))
	}
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

func (s *Service) reveal(ctx context.Context, userID, email string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outcome, err := s.views.Reveal(ctx, userID, email)
	if err != nil {
		if repository.IsMalformed(err) {
			s.metrics.RecordReveal(metrics.RevealMalformed)
			slog.Error("reveal response malformed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewMalformedResponseError("reveal_email", err.Error())
		}
		s.metrics.RecordReveal(metrics.RevealTransient)
		slog.Error("reveal failed",
			slog.String("user_id", userID),
			slog.String("email", logger.MaskEmail(email)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewTransientError("メールアドレスを開示できませんでした")
	}

	if !outcome.Success {
		switch failureReason(outcome.Error) {
		case model.RevealErrInsufficientCredits, model.RevealErrSubscriptionNotFound:
			s.metrics.RecordReveal(metrics.RevealInsufficientCredits)
			return nil, model.NewInsufficientCreditsError(outcome.CreditsRemaining)
		default:
			s.metrics.RecordReveal(metrics.RevealMalformed)
			return nil, model.NewMalformedResponseError("reveal_email", "unknown error: "+outcome.Error)
		}
	}

	res := &Result{
		CreditsRemaining: outcome.CreditsRemaining,
		AlreadyRevealed:  outcome.AlreadyRevealed,
	}
	if outcome.AlreadyRevealed {
		s.metrics.RecordReveal(metrics.RevealAlreadyRevealed)
	} else {
		s.metrics.RecordReveal(metrics.RevealRevealed)
		slog.Info("email revealed",
			slog.String("user_id", userID),
			slog.String("email", logger.MaskEmail(email)),
			slog.Int("credits_remaining", outcome.CreditsRemaining),
		)
	}

	// 開示後は購読状態を再取得する。失敗しても開示自体は成功している
	if s.state != nil {
		state, err := s.state.State(ctx, userID)
		if err != nil {
			slog.Warn("subscription state refresh failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else {
			res.CreditsRemaining = state.CreditsRemaining
			res.IsSubscribed = state.IsSubscribed
		}
	}
	return res, nil
}

// failureReason は失敗理由を正規化する。
// "insufficient credits" と "insufficient_credits" は同じ理由として扱う。
func failureReason(raw string) string {
	r := strings.ToLower(strings.TrimSpace(raw))
	return strings.Join(strings.FieldsFunc(r, func(c rune) bool {
		return c == ' ' || c == '_' || c == '-'
	}), "_")
}

// RevealCreator はクリエイターのメールアドレスを解決して開示する。
func (s *Service) RevealCreator(ctx context.Context, userID, creatorID string) (*CreatorResult, error) {
	if userID == "" {
		return nil, model.NewNoSessionError()
	}
	if creatorID == "" {
		return nil, model.NewValidationError("クリエイターIDは必須です")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	c, err := s.creators.FindByID(lookupCtx, creatorID)
	cancel()
	if err != nil {
		if repository.IsMalformed(err) {
			return nil, model.NewMalformedResponseError("tiktok", err.Error())
		}
		return nil, model.NewTransientError("クリエイター情報を取得できませんでした")
	}
	if c == nil {
		return nil, model.NewCreatorNotFoundError(creatorID)
	}
	if c.Email == nil || strings.TrimSpace(*c.Email) == "" {
		return nil, model.NewEmailNotAvailableError()
	}

	res, err := s.Reveal(ctx, userID, *c.Email)
	if err != nil {
		return nil, err
	}
	return &CreatorResult{Result: *res, CreatorID: c.ID, Email: *c.Email}, nil
}
