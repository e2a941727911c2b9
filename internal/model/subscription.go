package model

import "time"

// SubscriptionState は利用者ごとの購読・クレジット状態を表す。
// PagesViewedはペイウォールのページ閲覧数で、バックエンドの行とは別に管理される。
type SubscriptionState struct {
	IsSubscribed     bool `json:"is_subscribed"`
	CreditsRemaining int  `json:"credits_remaining"`
	PagesViewed      int  `json:"pages_viewed"`
}

// SubscriptionRow は user_subscriptions テーブルの行を表す。
type SubscriptionRow struct {
	UserID           string
	CreditsRemaining int
	IsSubscribed     bool
	UpdatedAt        time.Time
}

// EmailView はメールアドレス開示の記録を表す。
// (user_id, email_viewed) ごとに一度だけ作成される追記専用データ。
type EmailView struct {
	ID          string    `json:"id"`
	EmailViewed string    `json:"email_viewed"`
	ViewedAt    time.Time `json:"viewed_at"`
	UserID      string    `json:"user_id"`
}

// CreditHistoryEntry はクレジット履歴画面の1行を表す。
// 開示したメールアドレスに対応するクリエイター情報を付与する。
type CreditHistoryEntry struct {
	EmailView
	CreatorUsername string `json:"creator_username,omitempty"`
	CreatorImage    string `json:"creator_image,omitempty"`
}

// RevealOutcome はバックエンドの reveal_email 関数の応答を表す。
type RevealOutcome struct {
	Success          bool
	CreditsRemaining int
	AlreadyRevealed  bool
	Error            string
}

// reveal_email が返す失敗理由
const (
	RevealErrInsufficientCredits  = "insufficient_credits"
	RevealErrSubscriptionNotFound = "subscription_not_found"
)
