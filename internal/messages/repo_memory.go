package messages

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory repository useful for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	messages []Message
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Create(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return nil
}

func (r *MemoryRepo) ListForUser(ctx context.Context, userID string, skip, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var own []Message
	for _, m := range r.messages {
		if m.SenderID == userID || m.RecipientID == userID {
			own = append(own, m)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].CreatedAt.Before(own[j].CreatedAt) })
	if skip >= len(own) {
		return nil, nil
	}
	own = own[skip:]
	if limit > 0 && limit < len(own) {
		own = own[:limit]
	}
	return own, nil
}
