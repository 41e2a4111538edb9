package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/hitoshi/mixmatch/internal/model"
)

// MemoryStore はプロセス内メモリに保持するStore。テストとローカル実行用。
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]*model.JudgmentEvent // identity -> 追記順
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]*model.JudgmentEvent)}
}

// Append はイベントのコピーを追記する。
func (s *MemoryStore) Append(_ context.Context, event *model.JudgmentEvent) error {
	e := *event
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.UserID] = append(s.events[e.UserID], &e)
	return nil
}

// QueryFiltered は条件に合うイベントを新しい順に返す。同時刻の場合は後に追記したものを先にする。
func (s *MemoryStore) QueryFiltered(_ context.Context, identity string, filter Filter) ([]*model.JudgmentEvent, error) {
	s.mu.RLock()
	all := s.events[identity]
	out := make([]*model.JudgmentEvent, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if filter.Matches(all[i]) {
			e := *all[i]
			out = append(out, &e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
