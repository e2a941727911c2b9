package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresPageViewRepo はペイウォールの閲覧数をpage_viewsテーブルに保存するリポジトリ。
type PostgresPageViewRepo struct {
	db *sql.DB
}

// NewPostgresPageViewRepo はPostgresPageViewRepoを生成する。
func NewPostgresPageViewRepo(db *sql.DB) *PostgresPageViewRepo {
	return &PostgresPageViewRepo{db: db}
}

// Get は利用者の閲覧数を返す。記録がない場合は0を返す。
func (r *PostgresPageViewRepo) Get(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT pages_viewed FROM page_views WHERE user_id = $1`,
		userID,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("閲覧数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// Increment は閲覧数を1増やし、増加後の値を返す。
func (r *PostgresPageViewRepo) Increment(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO page_views (user_id, pages_viewed, window_start, updated_at)
		 VALUES ($1, 1, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET pages_viewed = page_views.pages_viewed + 1, updated_at = NOW()
		 RETURNING pages_viewed`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("閲覧数の更新に失敗しました: %w", err)
	}
	return n, nil
}

// IncrementBelow は閲覧数がlimit未満の場合に限り1増やす。
// 条件付きのUPSERTで判定と加算を1文で行うため、同時リクエストでもlimitを超えない。
func (r *PostgresPageViewRepo) IncrementBelow(ctx context.Context, userID string, limit int) (int, bool, error) {
	if limit <= 0 {
		n, err := r.Get(ctx, userID)
		return n, false, err
	}

	var n int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO page_views (user_id, pages_viewed, window_start, updated_at)
		 VALUES ($1, 1, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET pages_viewed = page_views.pages_viewed + 1, updated_at = NOW()
		 WHERE page_views.pages_viewed < $2
		 RETURNING pages_viewed`,
		userID, limit,
	).Scan(&n)
	if err == sql.ErrNoRows {
		// 上限に達しているため更新されなかった
		n, err := r.Get(ctx, userID)
		return n, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("閲覧数の更新に失敗しました: %w", err)
	}
	return n, true, nil
}

// ResetOlderThan はwindow_startがcutoffより古い記録を削除し、削除件数を返す。
func (r *PostgresPageViewRepo) ResetOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM page_views WHERE window_start < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("閲覧数のリセットに失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}
