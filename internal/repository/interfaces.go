// Package repository はバックエンドストアへのアクセスを定義する。
// バックエンドの応答はここでパースし、スキーマに一致しない場合はMalformedErrorを返す。
package repository

import (
	"context"
	"time"

	"github.com/creatorships/dashboard/internal/model"
)

// CreatorRepository はクリエイター情報の読み取りインターフェース。
type CreatorRepository interface {
	// FetchPage はfetch_tiktok_creatorsを呼び出し、指定範囲のクリエイターを返す。
	// 結果のEmailは常にnil。
	FetchPage(ctx context.Context, q model.CreatorQuery) ([]model.Creator, error)

	// Count はget_total_creators_countを呼び出し、条件に一致する総件数を返す。
	Count(ctx context.Context, search string, minFollowers int64, maxFollowers *int64) (int, error)

	// FindByID は指定IDのクリエイターを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Creator, error)

	// FindByUsername はユーザー名でクリエイターを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Creator, error)

	// FindByEmail はメールアドレスでクリエイターを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Creator, error)
}

// SubscriptionRepository は購読・クレジット状態の読み取りインターフェース。
type SubscriptionRepository interface {
	// FindByUserID は利用者の購読行を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.SubscriptionRow, error)
}

// EmailViewRepository はメールアドレス開示のインターフェース。
type EmailViewRepository interface {
	// Reveal はreveal_emailを呼び出す。課金と記録はバックエンドが原子的に行う。
	Reveal(ctx context.Context, userID, email string) (*model.RevealOutcome, error)

	// ListByUserID は利用者の開示履歴をviewed_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]model.EmailView, error)
}

// PageViewRepository はペイウォールのページ閲覧数の永続化インターフェース。
type PageViewRepository interface {
	// Get は利用者の閲覧数を返す。記録がない場合は0を返す。
	Get(ctx context.Context, userID string) (int, error)

	// Increment は閲覧数を1増やし、増加後の値を返す。
	Increment(ctx context.Context, userID string) (int, error)

	// IncrementBelow は閲覧数がlimit未満の場合に限り1増やす。
	// 増やせなかった場合はokがfalseで、現在の閲覧数を返す。
	IncrementBelow(ctx context.Context, userID string, limit int) (n int, ok bool, err error)

	// ResetOlderThan はwindow_startがcutoffより古い記録を削除し、削除件数を返す。
	ResetOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CampaignRepository はキャンペーンの永続化インターフェース。
type CampaignRepository interface {
	Create(ctx context.Context, c *model.Campaign) error

	// ListByUserID は利用者のキャンペーンをcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Campaign, error)

	// FindByID は利用者が所有するキャンペーンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Campaign, error)

	// UpdateStatus はステータスを更新する。対象がない場合はfalseを返す。
	UpdateStatus(ctx context.Context, userID, id string, status model.CampaignStatus) (bool, error)

	// Delete はキャンペーンを削除する。対象がない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// ConversationRepository は会話スレッドの永続化インターフェース。
type ConversationRepository interface {
	// ListByUserID は最新メッセージと未読数付きの会話一覧をupdated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Conversation, error)

	// FindByID は利用者が所有する会話を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Conversation, error)

	// FindOrCreate は(user_id, creator_id)の会話を返し、存在しなければ作成する。
	FindOrCreate(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
}

// MessageRepository はメッセージの永続化インターフェース。
type MessageRepository interface {
	// ListByConversation は会話のメッセージをcreated_at昇順で返す。
	ListByConversation(ctx context.Context, conversationID string) ([]*model.Message, error)

	// Create はメッセージを作成し、会話のupdated_atを更新する。
	Create(ctx context.Context, msg *model.Message) error

	// MarkRead はreaderID以外が送信した未読メッセージを既読にする。
	MarkRead(ctx context.Context, conversationID, readerID string, at time.Time) error

	// CountUnreadByUserID は利用者の全会話の未読数を返す。
	CountUnreadByUserID(ctx context.Context, userID string) (int, error)
}
