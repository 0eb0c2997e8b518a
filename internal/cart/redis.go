package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps carts in Redis so they survive process restarts
// and expire on their own. Items are stored as a JSON blob under
// <prefix>:items:<owner> and the hash token under
// <prefix>:hash:<owner>; both keys share the cart TTL, which is
// refreshed on every write.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a RedisStore using the given client. The
// prefix namespaces all cart keys; pass "" for the default "cart".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "cart"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) itemsKey(owner string) string { return fmt.Sprintf("%s:items:%s", s.prefix, owner) }
func (s *RedisStore) hashKey(owner string) string  { return fmt.Sprintf("%s:hash:%s", s.prefix, owner) }

func (s *RedisStore) load(ctx context.Context, owner string) (map[uint64]Item, error) {
	raw, err := s.client.Get(ctx, s.itemsKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[uint64]Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: load items: %w", err)
	}
	items := map[uint64]Item{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("cart: decode items: %w", err)
	}
	return items, nil
}

func (s *RedisStore) save(ctx context.Context, owner string, items map[uint64]Item) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("cart: encode items: %w", err)
	}
	if err := s.client.Set(ctx, s.itemsKey(owner), raw, TTL).Err(); err != nil {
		return fmt.Errorf("cart: save items: %w", err)
	}
	// Keep the hash alive as long as the items it identifies.
	s.client.Expire(ctx, s.hashKey(owner), TTL)
	return nil
}

// UpsertItem implements Store.
func (s *RedisStore) UpsertItem(ctx context.Context, owner string, ticketID uint64, quantity int, extra map[string]string) error {
	items, err := s.load(ctx, owner)
	if err != nil {
		return err
	}
	if quantity <= 0 {
		delete(items, ticketID)
	} else {
		items[ticketID] = Item{TicketID: ticketID, Quantity: quantity, Extra: extra}
	}
	return s.save(ctx, owner, items)
}

// Items implements Store.
func (s *RedisStore) Items(ctx context.Context, owner string) (map[uint64]Item, error) {
	return s.load(ctx, owner)
}

// Hash implements Store. Generation uses SETNX so two concurrent
// requests for the same owner agree on a single token.
func (s *RedisStore) Hash(ctx context.Context, owner string, generate bool) (string, error) {
	key := s.hashKey(owner)
	existing, err := s.client.Get(ctx, key).Result()
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("cart: read hash: %w", err)
	}
	if !generate {
		return "", nil
	}
	h, err := newHash()
	if err != nil {
		return "", fmt.Errorf("cart: generate hash: %w", err)
	}
	set, err := s.client.SetNX(ctx, key, h, TTL).Result()
	if err != nil {
		return "", fmt.Errorf("cart: store hash: %w", err)
	}
	if !set {
		// Lost the race; take the winner's token.
		return s.client.Get(ctx, key).Result()
	}
	return h, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, owner string) error {
	if err := s.client.Del(ctx, s.itemsKey(owner), s.hashKey(owner)).Err(); err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}
