package creator

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creatorships/dashboard/internal/auth"
	"github.com/creatorships/dashboard/internal/model"
)

// --- モック ---

type mockCreatorRepo struct {
	fetchPageFn      func(ctx context.Context, q model.CreatorQuery) ([]model.Creator, error)
	countFn          func(ctx context.Context, search string, min int64, max *int64) (int, error)
	findByIDFn       func(ctx context.Context, id string) (*model.Creator, error)
	findByUsernameFn func(ctx context.Context, username string) (*model.Creator, error)

	fetchCalls atomic.Int32
	countCalls atomic.Int32
	lastQuery  atomic.Value
}

func (m *mockCreatorRepo) FetchPage(ctx context.Context, q model.CreatorQuery) ([]model.Creator, error) {
	m.fetchCalls.Add(1)
	m.lastQuery.Store(q)
	if m.fetchPageFn == nil {
		return []model.Creator{{ID: "c-1", Username: "alice", Followers: 12_000}}, nil
	}
	return m.fetchPageFn(ctx, q)
}

func (m *mockCreatorRepo) Count(ctx context.Context, search string, min int64, max *int64) (int, error) {
	m.countCalls.Add(1)
	if m.countFn == nil {
		return 1, nil
	}
	return m.countFn(ctx, search, min, max)
}

func (m *mockCreatorRepo) FindByID(ctx context.Context, id string) (*model.Creator, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockCreatorRepo) FindByUsername(ctx context.Context, username string) (*model.Creator, error) {
	return m.findByUsernameFn(ctx, username)
}

func (m *mockCreatorRepo) FindByEmail(context.Context, string) (*model.Creator, error) {
	return nil, nil
}

func newTestService(repo *mockCreatorRepo, clock *fakeClock) *Service {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	svc := NewService(repo, NewRegistry(5*time.Minute, now), nil, DefaultConfig())
	// 既定ではデバウンスを即時に解除する
	svc.after = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	return svc
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !model.HasCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

// --- Key ---

func TestKey_CanonicalFieldOrder(t *testing.T) {
	got := Key(model.CreatorQuery{SortDirection: model.SortDesc, Start: 0, End: 29})
	want := `{"start":0,"end":29,"search":"","minFollowers":0,"maxFollowers":null,"sortDirection":"desc"}`
	if got != want {
		t.Errorf("Key = %s\nwant  %s", got, want)
	}

	max := int64(50_000)
	got = Key(model.CreatorQuery{SortDirection: model.SortAsc, Start: 30, End: 59, Search: "dance", MinFollowers: 10_000, MaxFollowers: &max})
	want = `{"start":30,"end":59,"search":"dance","minFollowers":10000,"maxFollowers":50000,"sortDirection":"asc"}`
	if got != want {
		t.Errorf("Key = %s\nwant  %s", got, want)
	}
}

// --- BuildQuery ---

func TestBuildQuery_PageRange(t *testing.T) {
	svc := newTestService(&mockCreatorRepo{}, nil)

	tests := []struct {
		name      string
		params    Params
		wantStart int
		wantEnd   int
	}{
		{"grid page 1", Params{Page: 1, ViewMode: ViewGrid}, 0, 29},
		{"grid page 2", Params{Page: 2, ViewMode: ViewGrid}, 30, 59},
		{"list page 1", Params{Page: 1, ViewMode: ViewList}, 0, 59},
		{"list page 3", Params{Page: 3, ViewMode: ViewList}, 120, 179},
		{"page 0 defaults to 1", Params{}, 0, 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := svc.BuildQuery(tt.params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Start != tt.wantStart || q.End != tt.wantEnd {
				t.Errorf("range = %d..%d, want %d..%d", q.Start, q.End, tt.wantStart, tt.wantEnd)
			}
			if q.SortDirection != model.SortDesc {
				t.Errorf("SortDirection = %s, want desc", q.SortDirection)
			}
		})
	}
}

func TestBuildQuery_PageUpperBound(t *testing.T) {
	svc := newTestService(&mockCreatorRepo{}, nil)

	// グリッドは30件/ページ
	lastPage := (math.MaxInt32-29)/30 + 1
	q, err := svc.BuildQuery(Params{Page: lastPage, ViewMode: ViewGrid})
	if err != nil {
		t.Fatalf("last page rejected: %v", err)
	}
	if q.End > math.MaxInt32 || q.Start < 0 {
		t.Errorf("range = %d..%d, want within int32", q.Start, q.End)
	}

	for _, page := range []int{lastPage + 1, 71_582_790, math.MaxInt} {
		_, err := svc.BuildQuery(Params{Page: page, ViewMode: ViewGrid})
		assertCode(t, err, model.ErrCodeValidation)
	}
}

func TestBuildQuery_FollowerBounds(t *testing.T) {
	svc := newTestService(&mockCreatorRepo{}, nil)

	q, err := svc.BuildQuery(Params{FollowerRange: "100K - 500K", SearchText: "  cook  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.MinFollowers != 100_000 || q.MaxFollowers == nil || *q.MaxFollowers != 500_000 {
		t.Errorf("bounds = %d..%v", q.MinFollowers, q.MaxFollowers)
	}
	if q.Search != "cook" {
		t.Errorf("Search = %q, want cook", q.Search)
	}

	min := int64(2_000)
	q, err = svc.BuildQuery(Params{FollowerRange: "1M+", MinFollowers: &min})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.MinFollowers != 2_000 || q.MaxFollowers != nil {
		t.Errorf("explicit min should override range: %d..%v", q.MinFollowers, q.MaxFollowers)
	}
}

func TestBuildQuery_Invalid(t *testing.T) {
	svc := newTestService(&mockCreatorRepo{}, nil)
	lo, hi := int64(100), int64(10)

	cases := map[string]Params{
		"negative page":   {Page: -1},
		"bad sort":        {SortDirection: "sideways"},
		"bad view mode":   {ViewMode: "table"},
		"bad range":       {FollowerRange: "lots"},
		"inverted bounds": {MinFollowers: &lo, MaxFollowers: &hi},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.BuildQuery(p)
			assertCode(t, err, model.ErrCodeValidation)
		})
	}
}

// --- Search ---

func TestSearch_CachesWithinTTL(t *testing.T) {
	clock := newFakeClock()
	repo := &mockCreatorRepo{}
	svc := newTestService(repo, clock)
	ctx := context.Background()

	for range 2 {
		r, err := svc.Search(ctx, "u-1", Params{Page: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(r.Creators) != 1 || r.TotalCount != 1 {
			t.Errorf("result = %+v", r)
		}
	}
	if repo.fetchCalls.Load() != 1 || repo.countCalls.Load() != 1 {
		t.Errorf("backend calls = %d/%d, want 1/1", repo.fetchCalls.Load(), repo.countCalls.Load())
	}

	clock.Advance(5 * time.Minute)
	if _, err := svc.Search(ctx, "u-1", Params{Page: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.fetchCalls.Load() != 2 {
		t.Errorf("expired entry should trigger a backend call, got %d", repo.fetchCalls.Load())
	}
}

func TestSearch_DifferentPagesAreSeparateEntries(t *testing.T) {
	repo := &mockCreatorRepo{}
	svc := newTestService(repo, nil)

	_, _ = svc.Search(context.Background(), "u-1", Params{Page: 1})
	_, _ = svc.Search(context.Background(), "u-1", Params{Page: 2})

	if repo.fetchCalls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", repo.fetchCalls.Load())
	}
	q := repo.lastQuery.Load().(model.CreatorQuery)
	if q.Start != 30 || q.End != 59 {
		t.Errorf("last range = %d..%d, want 30..59", q.Start, q.End)
	}
}

func TestSearch_StripsEmail(t *testing.T) {
	email := "leak@example.com"
	repo := &mockCreatorRepo{fetchPageFn: func(context.Context, model.CreatorQuery) ([]model.Creator, error) {
		return []model.Creator{{ID: "c-1", Email: &email, HasEmail: true}}, nil
	}}
	svc := newTestService(repo, nil)

	r, err := svc.Search(context.Background(), "u-1", Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Creators[0].Email != nil {
		t.Error("search results must not carry email")
	}
	if !r.Creators[0].HasEmail {
		t.Error("HasEmail should be preserved")
	}
}

func TestSearch_BackendErrorYieldsEmptyUncachedResult(t *testing.T) {
	for _, failing := range []string{"page", "count"} {
		t.Run(failing, func(t *testing.T) {
			repo := &mockCreatorRepo{}
			if failing == "page" {
				repo.fetchPageFn = func(context.Context, model.CreatorQuery) ([]model.Creator, error) {
					return nil, errors.New("rpc failed")
				}
			} else {
				repo.countFn = func(context.Context, string, int64, *int64) (int, error) {
					return 0, errors.New("rpc failed")
				}
			}
			svc := newTestService(repo, nil)

			r, err := svc.Search(context.Background(), "u-1", Params{})
			if err != nil {
				t.Fatalf("backend failure should not surface as error: %v", err)
			}
			if len(r.Creators) != 0 || r.TotalCount != 0 {
				t.Errorf("result = %+v, want empty", r)
			}
			if r.Creators == nil {
				t.Error("Creators should be an empty slice, not nil")
			}
			if svc.registry.For("u-1").Len() != 0 {
				t.Error("failed result must not be cached")
			}
		})
	}
}

func TestSearch_QueriesRunInParallel(t *testing.T) {
	countStarted := make(chan struct{})
	repo := &mockCreatorRepo{
		countFn: func(context.Context, string, int64, *int64) (int, error) {
			close(countStarted)
			return 10, nil
		},
		fetchPageFn: func(ctx context.Context, _ model.CreatorQuery) ([]model.Creator, error) {
			select {
			case <-countStarted:
				return []model.Creator{}, nil
			case <-time.After(time.Second):
				return nil, errors.New("count query did not run concurrently")
			}
		},
	}
	svc := newTestService(repo, nil)

	r, err := svc.Search(context.Background(), "u-1", Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TotalCount != 10 {
		t.Errorf("TotalCount = %d, want 10 (queries were not parallel)", r.TotalCount)
	}
}

func TestSearch_DebounceOnlyWhenSearchTextChanges(t *testing.T) {
	repo := &mockCreatorRepo{}
	svc := newTestService(repo, nil)
	var debounced atomic.Int32
	svc.after = func(d time.Duration) <-chan time.Time {
		if d != 500*time.Millisecond {
			t.Errorf("debounce = %v, want 500ms", d)
		}
		debounced.Add(1)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	ctx := context.Background()

	_, _ = svc.Search(ctx, "u-1", Params{SearchText: "dance"})
	_, _ = svc.Search(ctx, "u-1", Params{SearchText: "dance", Page: 2})
	if debounced.Load() != 0 {
		t.Errorf("unchanged search text should not debounce, got %d", debounced.Load())
	}

	_, _ = svc.Search(ctx, "u-1", Params{SearchText: "dancer"})
	if debounced.Load() != 1 {
		t.Errorf("changed search text should debounce once, got %d", debounced.Load())
	}
}

func TestSearch_NewerQuerySupersedesOlder(t *testing.T) {
	repo := &mockCreatorRepo{}
	svc := newTestService(repo, nil)
	ctx := context.Background()

	// 初回は検索語の変化がないためデバウンスされない
	if _, err := svc.Search(ctx, "u-1", Params{SearchText: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entered := make(chan struct{}, 2)
	release := make(chan time.Time)
	svc.after = func(time.Duration) <-chan time.Time {
		entered <- struct{}{}
		return release
	}

	olderErr := make(chan error, 1)
	go func() {
		_, err := svc.Search(ctx, "u-1", Params{SearchText: "ab"})
		olderErr <- err
	}()
	<-entered

	newerErr := make(chan error, 1)
	go func() {
		_, err := svc.Search(ctx, "u-1", Params{SearchText: "abc"})
		newerErr <- err
	}()

	select {
	case err := <-olderErr:
		assertCode(t, err, model.ErrCodeSearchSuperseded)
	case <-time.After(time.Second):
		t.Fatal("older query was not superseded")
	}

	<-entered
	close(release)
	if err := <-newerErr; err != nil {
		t.Fatalf("newer query failed: %v", err)
	}
	q := repo.lastQuery.Load().(model.CreatorQuery)
	if q.Search != "abc" {
		t.Errorf("last backend search = %q, want abc", q.Search)
	}
}

func TestSearch_OwnersDoNotSupersedeEachOther(t *testing.T) {
	repo := &mockCreatorRepo{}
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, _ = svc.Search(ctx, "u-1", Params{SearchText: "a"})
	_, _ = svc.Search(ctx, "u-2", Params{SearchText: "a"})

	release := make(chan time.Time)
	entered := make(chan struct{}, 1)
	svc.after = func(time.Duration) <-chan time.Time {
		entered <- struct{}{}
		return release
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Search(ctx, "u-1", Params{SearchText: "b"})
		errCh <- err
	}()
	<-entered

	// 別の利用者の検索は置き換えを起こさない
	if _, err := svc.Search(ctx, "u-2", Params{SearchText: "a", Page: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("u-1 query should complete, got %v", err)
	}
}

func TestSearch_RequiresOwner(t *testing.T) {
	svc := newTestService(&mockCreatorRepo{}, nil)
	_, err := svc.Search(context.Background(), "", Params{})
	assertCode(t, err, model.ErrCodeNoSession)
}

func TestClearCache_ForcesBackendCall(t *testing.T) {
	repo := &mockCreatorRepo{}
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, _ = svc.Search(ctx, "u-1", Params{})
	svc.ClearCache("u-1")
	_, _ = svc.Search(ctx, "u-1", Params{})

	if repo.fetchCalls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2", repo.fetchCalls.Load())
	}
}

func TestHandleAuthEvent_SignedOutDropsCache(t *testing.T) {
	repo := &mockCreatorRepo{}
	svc := newTestService(repo, nil)
	events := auth.NewEvents()
	unsubscribe := events.Subscribe(svc.HandleAuthEvent)
	defer unsubscribe()
	ctx := context.Background()

	_, _ = svc.Search(ctx, "u-1", Params{})
	_, _ = svc.Search(ctx, "u-2", Params{})

	events.Publish(auth.Event{Type: model.AuthEventTokenRefreshed, UserID: "u-1"})
	if svc.registry.For("u-1").Len() != 1 {
		t.Error("token refresh must not drop the cache")
	}

	events.Publish(auth.Event{Type: model.AuthEventSignedOut, UserID: "u-1"})
	if svc.registry.For("u-1").Len() != 0 {
		t.Error("sign out should drop the owner's cache")
	}
	if svc.registry.For("u-2").Len() != 1 {
		t.Error("other owners' caches must survive")
	}
}

func TestSearch_SweepDuringFetchKeepsResult(t *testing.T) {
	repo := &mockCreatorRepo{}
	svc := newTestService(repo, nil)
	repo.fetchPageFn = func(context.Context, model.CreatorQuery) ([]model.Creator, error) {
		// 取得中は利用者のCacheが空のため、スイーパーに破棄される
		svc.Sweep()
		return []model.Creator{{ID: "c-1", Username: "alice"}}, nil
	}
	ctx := context.Background()

	if _, err := svc.Search(ctx, "u-1", Params{}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, err := svc.Search(ctx, "u-1", Params{}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := repo.fetchCalls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (second search should hit the cache)", got)
	}
}

func TestSweep_PrunesIdleOwners(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(&mockCreatorRepo{}, clock)
	ctx := context.Background()

	_, _ = svc.Search(ctx, "u-1", Params{})
	clock.Advance(4 * time.Minute)
	_, _ = svc.Search(ctx, "u-2", Params{})
	if svc.seq.len() != 2 {
		t.Fatalf("sequencer owners = %d, want 2", svc.seq.len())
	}

	clock.Advance(2 * time.Minute)
	svc.Sweep()

	if svc.seq.len() != 1 {
		t.Errorf("sequencer owners = %d, want 1 after sweep", svc.seq.len())
	}
	if svc.registry.Owners() != 1 {
		t.Errorf("cache owners = %d, want 1 after sweep", svc.registry.Owners())
	}
}

func TestSweep_KeepsOwnersWithSearchInFlight(t *testing.T) {
	clock := newFakeClock()
	svc := newTestService(&mockCreatorRepo{}, clock)

	tk := svc.seq.begin(context.Background(), "u-1", "")
	clock.Advance(time.Hour)
	svc.Sweep()
	if svc.seq.len() != 1 {
		t.Errorf("owner with a search in flight was pruned")
	}

	svc.seq.end("u-1", tk)
	clock.Advance(time.Hour)
	svc.Sweep()
	if svc.seq.len() != 0 {
		t.Errorf("idle owner was not pruned")
	}
}

func TestService_StartStopsOnCancel(t *testing.T) {
	svc := newTestService(&mockCreatorRepo{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.Start(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
