package paywall

import (
	"context"
	"sync"

	"github.com/creatorships/dashboard/internal/repository"
)

// MemoryStore はプロセス内に閲覧数を保持するPageViewStore。
// プロセスの再起動で閲覧数はリセットされる。
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

// Get は利用者の閲覧数を返す。
func (s *MemoryStore) Get(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID], nil
}

// Increment は閲覧数を1増やし、増加後の値を返す。
func (s *MemoryStore) Increment(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[userID]++
	return s.counts[userID], nil
}

// IncrementBelow は閲覧数がlimit未満の場合に限り1増やす。
func (s *MemoryStore) IncrementBelow(_ context.Context, userID string, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[userID] >= limit {
		return s.counts[userID], false, nil
	}
	s.counts[userID]++
	return s.counts[userID], true, nil
}

// PostgresStore はpage_viewsテーブルに閲覧数を保持するPageViewStore。
// 複数プロセス・再起動をまたいで閲覧数を共有する。
type PostgresStore struct {
	repo repository.PageViewRepository
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(repo repository.PageViewRepository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

// Get は利用者の閲覧数を返す。
func (s *PostgresStore) Get(ctx context.Context, userID string) (int, error) {
	return s.repo.Get(ctx, userID)
}

// Increment は閲覧数を1増やし、増加後の値を返す。
func (s *PostgresStore) Increment(ctx context.Context, userID string) (int, error) {
	return s.repo.Increment(ctx, userID)
}

// IncrementBelow は閲覧数がlimit未満の場合に限り1増やす。
func (s *PostgresStore) IncrementBelow(ctx context.Context, userID string, limit int) (int, bool, error) {
	return s.repo.IncrementBelow(ctx, userID, limit)
}
