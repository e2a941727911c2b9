package auth

import (
	"log/slog"
	"sync"
	"time"

	"github.com/creatorships/dashboard/internal/model"
)

// Event は認証状態の変化通知。
type Event struct {
	Type   model.AuthEvent
	UserID string
	At     time.Time
}

// Events は認証状態の変化を購読者に配信する。
// 購読者は同期的に呼び出されるため、重い処理を行ってはならない。
type Events struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewEvents はEventsを生成する。
func NewEvents() *Events {
	return &Events{subs: make(map[int]func(Event))}
}

// Subscribe は購読者を登録し、登録解除関数を返す。
// 登録解除関数は何度呼び出してもよい。
func (e *Events) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// Publish はイベントを全購読者に配信する。購読者のpanicは他の購読者に影響しない。
func (e *Events) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	e.mu.RLock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		deliver(fn, ev)
	}
}

func deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("auth event subscriber panicked",
				slog.String("event", string(ev.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	fn(ev)
}
