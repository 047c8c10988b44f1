package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/mediashop/internal/domain"
)

const (
	opTimeout = 2 * time.Second

	cartKeyPrefix = "cart:"
	cartScanGlob  = cartKeyPrefix + "*"

	// baseTTL страхует от корзин, которые никто не чистит явно.
	// Воркер очистки проходит раньше, TTL остаётся запасным механизмом.
	baseTTL   = 24 * time.Hour
	ttlJitter = 30 * time.Minute
)

// NewClient создаёт подключение к Redis и проверяет его доступность.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

type cartRepository struct {
	client *redis.Client
}

// NewCartRepository создаёт Redis-реализацию CartRepository.
// Корзины хранятся как JSON-значения с TTL.
func NewCartRepository(client *redis.Client) domain.CartRepository {
	return &cartRepository{client: client}
}

func (r *cartRepository) Get(id string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, cartKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart: %w", err)
	}

	return cart, nil
}

func (r *cartRepository) Save(cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	cart.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	jitter := time.Duration(rand.Int63n(int64(ttlJitter)))
	if err := r.client.Set(ctx, cartKey(cart.ID), data, baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}

	return nil
}

func (r *cartRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.client.Del(ctx, cartKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}

	return nil
}

// DeleteStale удаляет корзины, не менявшиеся с указанного момента.
// Sweep нужен потому, что TTL продлевается каждым Save и давно брошенная,
// но периодически читаемая корзина может пережить свой срок.
func (r *cartRepository) DeleteStale(before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	deleted := 0
	iter := r.client.Scan(ctx, 0, cartScanGlob, int64(limit)).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("redis get cart %s: %w", key, err)
		}

		var cart domain.Cart
		if err := json.Unmarshal(data, &cart); err != nil {
			// Нечитаемая запись считается мусором.
			if delErr := r.client.Del(ctx, key).Err(); delErr != nil {
				return deleted, fmt.Errorf("redis delete corrupt cart %s: %w", key, delErr)
			}
			deleted++
			continue
		}

		if !cart.UpdatedAt.Before(before) {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return deleted, fmt.Errorf("redis delete cart %s: %w", key, err)
		}
		deleted++
		if deleted >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan carts: %w", err)
	}

	return deleted, nil
}

func cartKey(id string) string {
	return cartKeyPrefix + id
}

var _ domain.CartRepository = (*cartRepository)(nil)
