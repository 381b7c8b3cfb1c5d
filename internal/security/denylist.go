package security

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const denylistPrefix = "denylist:"

// Denylist records revoked token IDs until the tokens would have expired anyway.
type Denylist interface {
	// Revoke reports true only for the call that added jti. A jti that was
	// already revoked, or whose expiry has passed, reports false.
	Revoke(ctx context.Context, jti string, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type redisDenylist struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisDenylist(client *redis.Client) Denylist {
	return &redisDenylist{client: client, now: time.Now}
}

func (d *redisDenylist) Revoke(ctx context.Context, jti string, until time.Time) (bool, error) {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return false, nil
	}
	return d.client.SetNX(ctx, denylistPrefix+jti, "1", ttl).Result()
}

func (d *redisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, denylistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// memoryDenylist is used when no Redis address is configured. Entries do not
// survive a restart and are not shared between instances.
type memoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDenylist() Denylist {
	return &memoryDenylist{entries: make(map[string]time.Time), now: time.Now}
}

func (d *memoryDenylist) Revoke(_ context.Context, jti string, until time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !until.After(now) {
		return false, nil
	}
	for k, exp := range d.entries {
		if !exp.After(now) {
			delete(d.entries, k)
		}
	}
	if _, ok := d.entries[jti]; ok {
		return false, nil
	}
	d.entries[jti] = until
	return true, nil
}

func (d *memoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.entries[jti]
	return ok && exp.After(d.now()), nil
}
