package creator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// sequencer は利用者ごとの検索リクエストを順序付ける。
// 新しい検索が始まると、同じ利用者の実行中の検索はキャンセルされる。
type sequencer struct {
	mu     sync.Mutex
	owners map[string]*ownerState
	now    func() time.Time
}

type ownerState struct {
	current    *ticket
	lastSearch string
	seen       bool
	lastUsed   time.Time
}

// ticket は1回の検索の実行権を表す。
type ticket struct {
	ctx        context.Context
	cancel     context.CancelFunc
	superseded atomic.Bool
	// debounce は前回の検索から検索語が変わったことを示す。
	debounce bool
}

func newSequencer(now func() time.Time) *sequencer {
	if now == nil {
		now = time.Now
	}
	return &sequencer{owners: make(map[string]*ownerState), now: now}
}

// begin は新しい検索を登録し、同じ利用者の実行中の検索を置き換える。
func (s *sequencer) begin(ctx context.Context, owner, search string) *ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.owners[owner]
	if !ok {
		st = &ownerState{}
		s.owners[owner] = st
	}
	if st.current != nil {
		st.current.superseded.Store(true)
		st.current.cancel()
	}

	tctx, cancel := context.WithCancel(ctx)
	t := &ticket{
		ctx:      tctx,
		cancel:   cancel,
		debounce: st.seen && st.lastSearch != search,
	}
	st.current = t
	st.lastSearch = search
	st.seen = true
	st.lastUsed = s.now()
	return t
}

// end は検索の終了を記録する。
func (s *sequencer) end(owner string, t *ticket) {
	t.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.owners[owner]; ok && st.current == t {
		st.current = nil
		st.lastUsed = s.now()
	}
}

// forget は利用者の順序付け状態を破棄する。
func (s *sequencer) forget(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.owners[owner]; ok {
		if st.current != nil {
			st.current.superseded.Store(true)
			st.current.cancel()
		}
		delete(s.owners, owner)
	}
}

// prune はcutoffより前から検索していない利用者の状態を破棄し、破棄した数を返す。
// 実行中の検索がある利用者は残す。
func (s *sequencer) prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for owner, st := range s.owners {
		if st.current == nil && st.lastUsed.Before(cutoff) {
			delete(s.owners, owner)
			removed++
		}
	}
	return removed
}

func (s *sequencer) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owners)
}
