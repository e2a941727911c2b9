// Package database はバックエンドストアへの接続とスキーマ管理を提供する。
// スキーマにはテーブルに加え、クリエイター検索とメールアドレス開示のRPC関数を含む。
package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema は前回のマイグレーションが途中で失敗していることを示す。
var ErrDirtySchema = errors.New("schema is dirty")

// MigrationStatus はマイグレーション適用前後のスキーマバージョン。
// Fromが0の場合は未適用の状態から開始したことを示す。
type MigrationStatus struct {
	From uint
	To   uint
}

// Changed は今回の実行でスキーマが変わったかを返す。
func (s MigrationStatus) Changed() bool {
	return s.From != s.To
}

// migrateLogger はgolang-migrateのログをslogに流す。
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return false
}

// NewMigrator は埋め込みSQLを元にしたmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{logger: slog.Default().With(slog.String("component", "migrate"))}

	return m, nil
}

// currentVersion は適用済みのバージョンを返す。未適用の場合は0。
func currentVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("%w at version %d: fix the failed migration and force the version", ErrDirtySchema, v)
	}
	return v, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用する。
// すでに最新の場合はエラーなしで返る。dirtyなスキーマには適用しない。
func RunMigrations(databaseURL string) (MigrationStatus, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()

	from, err := currentVersion(m)
	if err != nil {
		return MigrationStatus{From: from, To: from}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationStatus{From: from, To: from}, fmt.Errorf("failed to run migrations: %w", err)
	}

	to, err := currentVersion(m)
	if err != nil {
		return MigrationStatus{From: from, To: to}, err
	}
	return MigrationStatus{From: from, To: to}, nil
}
