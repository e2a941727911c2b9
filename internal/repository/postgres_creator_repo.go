package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creatorships/dashboard/internal/model"
)

// PostgresCreatorRepo はPostgreSQLのtiktokテーブルと検索関数を使用するクリエイターリポジトリ。
type PostgresCreatorRepo struct {
	db *sql.DB
}

// NewPostgresCreatorRepo はPostgresCreatorRepoを生成する。
func NewPostgresCreatorRepo(db *sql.DB) *PostgresCreatorRepo {
	return &PostgresCreatorRepo{db: db}
}

// FetchPage はfetch_tiktok_creatorsを呼び出し、指定範囲のクリエイターを返す。
func (r *PostgresCreatorRepo) FetchPage(ctx context.Context, q model.CreatorQuery) ([]model.Creator, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, username, followers, image, has_email
		 FROM fetch_tiktok_creators($1, $2, $3, $4, $5, $6)`,
		string(q.SortDirection), q.Start, q.End, q.Search, q.MinFollowers, nullInt64(q.MaxFollowers),
	)
	if err != nil {
		return nil, fmt.Errorf("クリエイター一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	creators := make([]model.Creator, 0, q.End-q.Start+1)
	for rows.Next() {
		var (
			c        model.Creator
			name     sql.NullString
			image    sql.NullString
			hasEmail sql.NullBool
		)
		if err := rows.Scan(&c.ID, &name, &c.Username, &c.Followers, &image, &hasEmail); err != nil {
			return nil, malformed("fetch_tiktok_creators", "row scan: %v", err)
		}
		if c.ID == "" {
			return nil, malformed("fetch_tiktok_creators", "creator without id")
		}
		if c.Followers < 0 {
			return nil, malformed("fetch_tiktok_creators", "negative followers for %s", c.ID)
		}
		c.Name = name.String
		c.Image = image.String
		c.HasEmail = hasEmail.Bool
		creators = append(creators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クリエイター一覧の走査に失敗しました: %w", err)
	}
	return creators, nil
}

// Count はget_total_creators_countを呼び出し、条件に一致する総件数を返す。
// 関数が行を返さない場合は0件として扱う。
func (r *PostgresCreatorRepo) Count(ctx context.Context, search string, minFollowers int64, maxFollowers *int64) (int, error) {
	var count sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT count FROM get_total_creators_count($1, $2, $3)`,
		search, minFollowers, nullInt64(maxFollowers),
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("クリエイター総数の取得に失敗しました: %w", err)
	}
	if count.Int64 < 0 {
		return 0, malformed("get_total_creators_count", "negative count %d", count.Int64)
	}
	return int(count.Int64), nil
}

const creatorColumns = `id, name, username, followers, image, profile, email, has_email`

// FindByID は指定IDのクリエイターを取得する。見つからない場合はnilを返す。
func (r *PostgresCreatorRepo) FindByID(ctx context.Context, id string) (*model.Creator, error) {
	return r.findOne(ctx, `SELECT `+creatorColumns+` FROM tiktok WHERE id = $1`, id)
}

// FindByUsername はユーザー名でクリエイターを取得する。見つからない場合はnilを返す。
func (r *PostgresCreatorRepo) FindByUsername(ctx context.Context, username string) (*model.Creator, error) {
	return r.findOne(ctx, `SELECT `+creatorColumns+` FROM tiktok WHERE username = $1`, username)
}

// FindByEmail はメールアドレスでクリエイターを取得する。見つからない場合はnilを返す。
func (r *PostgresCreatorRepo) FindByEmail(ctx context.Context, email string) (*model.Creator, error) {
	return r.findOne(ctx, `SELECT `+creatorColumns+` FROM tiktok WHERE email = $1 LIMIT 1`, email)
}

func (r *PostgresCreatorRepo) findOne(ctx context.Context, query string, arg string) (*model.Creator, error) {
	var (
		c        model.Creator
		name     sql.NullString
		image    sql.NullString
		profile  sql.NullString
		email    sql.NullString
		hasEmail sql.NullBool
	)
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&c.ID, &name, &c.Username, &c.Followers, &image, &profile, &email, &hasEmail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("クリエイターの取得に失敗しました: %w", err)
	}

	c.Name = name.String
	c.Image = image.String
	c.Profile = profile.String
	c.HasEmail = hasEmail.Bool
	if email.Valid && email.String != "" {
		e := email.String
		c.Email = &e
	}
	return &c, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
