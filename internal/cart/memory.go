package cart

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It backs the service when no
// Redis endpoint is reachable (carts then simply do not survive a
// restart) and carries the same semantics as RedisStore, which also
// makes it the implementation tests run against.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]*memCart
}

type memCart struct {
	items map[uint64]Item
	hash  string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]*memCart)}
}

func (s *MemoryStore) cart(owner string) *memCart {
	c, ok := s.carts[owner]
	if !ok {
		c = &memCart{items: make(map[uint64]Item)}
		s.carts[owner] = c
	}
	return c
}

// UpsertItem implements Store.
func (s *MemoryStore) UpsertItem(_ context.Context, owner string, ticketID uint64, quantity int, extra map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cart(owner)
	if quantity <= 0 {
		delete(c.items, ticketID)
		return nil
	}
	c.items[ticketID] = Item{TicketID: ticketID, Quantity: quantity, Extra: extra}
	return nil
}

// Items implements Store. The returned map is a copy; callers may
// mutate it freely.
func (s *MemoryStore) Items(_ context.Context, owner string) (map[uint64]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cart(owner)
	out := make(map[uint64]Item, len(c.items))
	for k, v := range c.items {
		out[k] = v
	}
	return out, nil
}

// Hash implements Store.
func (s *MemoryStore) Hash(_ context.Context, owner string, generate bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cart(owner)
	if c.hash != "" || !generate {
		return c.hash, nil
	}
	h, err := newHash()
	if err != nil {
		return "", err
	}
	c.hash = h
	return h, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, owner)
	return nil
}
