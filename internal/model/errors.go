// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, credit, creator, system
	Action   string // ユーザー向け対処方法
	// Retryable は同じ操作を再実行すれば成功しうるかを示す。
	Retryable bool
	// CreditsRemaining はクレジット関連エラーで返す残高。該当しない場合はnil。
	CreditsRemaining *int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNoSession            = "NO_SESSION"
	ErrCodeInsufficientCredits  = "INSUFFICIENT_CREDITS"
	ErrCodeTransient            = "TRANSIENT_ERROR"
	ErrCodeMalformedResponse    = "MALFORMED_RESPONSE"
	ErrCodeSearchSuperseded     = "SEARCH_SUPERSEDED"
	ErrCodeCreatorNotFound      = "CREATOR_NOT_FOUND"
	ErrCodeEmailNotAvailable    = "EMAIL_NOT_AVAILABLE"
	ErrCodeCampaignNotFound     = "CAMPAIGN_NOT_FOUND"
	ErrCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeEmailNotConfirmed    = "EMAIL_NOT_CONFIRMED"
	ErrCodeAvatarUnavailable    = "AVATAR_UNAVAILABLE"
)

// HasCode はerrがAPIErrorであり、指定コードを持つかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}

// NewValidationError は入力不備エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewNoSessionError は未ログインエラーを生成する。
func NewNoSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSession,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewInsufficientCreditsError はクレジット残高不足エラーを生成する。
func NewInsufficientCreditsError(creditsRemaining int) *APIError {
	credits := creditsRemaining
	return &APIError{
		Code:             ErrCodeInsufficientCredits,
		Message:          "クレジットが不足しています。",
		Category:         "credit",
		Action:           "プランをアップグレードしてクレジットを追加してください。",
		CreditsRemaining: &credits,
	}
}

// NewTransientError は通信・バックエンド障害エラーを生成する。
// 同じ操作を再実行すれば成功しうる。
func NewTransientError(reason string) *APIError {
	return &APIError{
		Code:      ErrCodeTransient,
		Message:   fmt.Sprintf("一時的なエラーが発生しました: %s", reason),
		Category:  "system",
		Action:    "しばらく待ってから再度お試しください。",
		Retryable: true,
	}
}

// NewMalformedResponseError はバックエンド応答がスキーマに一致しない場合のエラーを生成する。
func NewMalformedResponseError(operation, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedResponse,
		Message:  fmt.Sprintf("バックエンドの応答が不正です (%s): %s", operation, reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。問題が続く場合はサポートに連絡してください。",
	}
}

// NewSearchSupersededError は同一利用者の新しい検索に置き換えられた場合のエラーを生成する。
func NewSearchSupersededError() *APIError {
	return &APIError{
		Code:     ErrCodeSearchSuperseded,
		Message:  "より新しい検索リクエストに置き換えられました。",
		Category: "creator",
		Action:   "最新の検索結果を使用してください。",
	}
}

// NewCreatorNotFoundError はクリエイター未検出エラーを生成する。
func NewCreatorNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeCreatorNotFound,
		Message:  fmt.Sprintf("指定されたクリエイターが見つかりません: %s", ref),
		Category: "creator",
		Action:   "検索結果から再度選択してください。",
	}
}

// NewEmailNotAvailableError はクリエイターにメールアドレスが登録されていない場合のエラーを生成する。
func NewEmailNotAvailableError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotAvailable,
		Message:  "このクリエイターのメールアドレスは登録されていません。",
		Category: "creator",
		Action:   "別のクリエイターを選択してください。",
	}
}

// NewCampaignNotFoundError はキャンペーン未検出エラーを生成する。
func NewCampaignNotFoundError(campaignID string) *APIError {
	return &APIError{
		Code:     ErrCodeCampaignNotFound,
		Message:  fmt.Sprintf("指定されたキャンペーンが見つかりません: %s", campaignID),
		Category: "campaign",
		Action:   "キャンペーンIDを確認してください。",
	}
}

// NewConversationNotFoundError は会話未検出エラーを生成する。
func NewConversationNotFoundError(conversationID string) *APIError {
	return &APIError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("指定された会話が見つかりません: %s", conversationID),
		Category: "message",
		Action:   "会話一覧から再度選択してください。",
	}
}

// NewInvalidCredentialsError はログイン情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。",
	}
}

// NewEmailNotConfirmedError はメールアドレス未確認エラーを生成する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfirmed,
		Message:  "メールアドレスの確認が完了していません。",
		Category: "auth",
		Action:   "受信した確認メールのリンクを開いてください。",
	}
}

// NewAvatarUnavailableError はアバター画像を取得できない場合のエラーを生成する。
func NewAvatarUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeAvatarUnavailable,
		Message:  "アバター画像を取得できませんでした。",
		Category: "creator",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
