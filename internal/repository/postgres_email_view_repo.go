package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/creatorships/dashboard/internal/model"
)

// PostgresEmailViewRepo はreveal_email関数とemail_viewsテーブルを使用するリポジトリ。
type PostgresEmailViewRepo struct {
	db *sql.DB
}

// NewPostgresEmailViewRepo はPostgresEmailViewRepoを生成する。
func NewPostgresEmailViewRepo(db *sql.DB) *PostgresEmailViewRepo {
	return &PostgresEmailViewRepo{db: db}
}

// Reveal はreveal_emailを呼び出し、応答を厳密にパースして返す。
func (r *PostgresEmailViewRepo) Reveal(ctx context.Context, userID, email string) (*model.RevealOutcome, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT reveal_email($1, $2)`,
		userID, email,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, malformed("reveal_email", "no result row")
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレス開示の呼び出しに失敗しました: %w", err)
	}

	return ParseRevealOutcome(raw)
}

// revealPayload はreveal_emailの応答JSON。必須フィールドの欠落を検出するためポインタで受ける。
type revealPayload struct {
	Success          *bool   `json:"success"`
	CreditsRemaining *int    `json:"credits_remaining"`
	AlreadyRevealed  *bool   `json:"already_revealed"`
	Error            *string `json:"error"`
}

// ParseRevealOutcome はreveal_emailの応答をパースする。
// 単一オブジェクトと1要素の配列の両方を受け付け、それ以外はMalformedErrorを返す。
func ParseRevealOutcome(raw []byte) (*model.RevealOutcome, error) {
	const op = "reveal_email"

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, malformed(op, "empty payload")
	}

	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, malformed(op, "invalid array: %v", err)
		}
		if len(list) != 1 {
			return nil, malformed(op, "expected 1 element, got %d", len(list))
		}
		raw = bytes.TrimSpace(list[0])
	}

	var p revealPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, malformed(op, "invalid object: %v", err)
	}
	if p.Success == nil {
		return nil, malformed(op, "missing success")
	}
	if p.CreditsRemaining == nil {
		return nil, malformed(op, "missing credits_remaining")
	}
	if *p.CreditsRemaining < 0 {
		return nil, malformed(op, "negative credits_remaining %d", *p.CreditsRemaining)
	}

	out := &model.RevealOutcome{
		Success:          *p.Success,
		CreditsRemaining: *p.CreditsRemaining,
	}
	if p.AlreadyRevealed != nil {
		out.AlreadyRevealed = *p.AlreadyRevealed
	}
	if p.Error != nil {
		out.Error = *p.Error
	}
	if !out.Success && out.Error == "" {
		return nil, malformed(op, "failure without error reason")
	}
	return out, nil
}

// ListByUserID は利用者の開示履歴をviewed_at降順で返す。
func (r *PostgresEmailViewRepo) ListByUserID(ctx context.Context, userID string) ([]model.EmailView, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email_viewed, viewed_at, user_id
		 FROM email_views WHERE user_id = $1 ORDER BY viewed_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("開示履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var views []model.EmailView
	for rows.Next() {
		var v model.EmailView
		if err := rows.Scan(&v.ID, &v.EmailViewed, &v.ViewedAt, &v.UserID); err != nil {
			return nil, fmt.Errorf("開示履歴行の読み取りに失敗しました: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("開示履歴の走査に失敗しました: %w", err)
	}
	return views, nil
}
