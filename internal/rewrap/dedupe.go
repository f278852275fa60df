package rewrap

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper tracks grant IDs through two phases. Claim takes a short
// processing lease; Complete replaces it with a long-lived done marker. A
// lease that is never completed expires, so a crash mid-processing does not
// swallow the event.
type Deduper interface {
	// Claim reports true when id is neither done nor leased by someone else.
	Claim(ctx context.Context, id string) (bool, error)
	// Complete marks id as done.
	Complete(ctx context.Context, id string) error
	// Release drops an unfinished lease so a later delivery can retry.
	Release(ctx context.Context, id string) error
}

const (
	claimKeyPrefix = "rewrap:grant:"

	DefaultClaimTTL = 7 * 24 * time.Hour
	DefaultLease    = 2 * time.Minute

	markerProcessing = "processing"
	markerDone       = "done"
)

// releaseScript deletes the key only while it still holds a lease, so a late
// release never erases a done marker.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDeduper shares claims across dispatcher instances.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	lease  time.Duration
}

// NewRedisDeduper keeps done markers for ttl and processing leases for
// lease. Zero values take the defaults.
func NewRedisDeduper(client *redis.Client, ttl, lease time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisDeduper{client: client, ttl: ttl, lease: lease}
}

func (d *RedisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	return d.client.SetNX(ctx, claimKeyPrefix+id, markerProcessing, d.lease).Result()
}

func (d *RedisDeduper) Complete(ctx context.Context, id string) error {
	return d.client.Set(ctx, claimKeyPrefix+id, markerDone, d.ttl).Err()
}

func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	return releaseScript.Run(ctx, d.client, []string{claimKeyPrefix + id}, markerProcessing).Err()
}

type claim struct {
	done    bool
	expires time.Time
}

// InMemoryDeduper keeps done markers for the life of the process.
type InMemoryDeduper struct {
	mu     sync.Mutex
	lease  time.Duration
	now    func() time.Time
	claims map[string]claim
}

func NewInMemoryDeduper() *InMemoryDeduper {
	return &InMemoryDeduper{
		lease:  DefaultLease,
		now:    time.Now,
		claims: make(map[string]claim),
	}
}

func (d *InMemoryDeduper) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if c, ok := d.claims[id]; ok && (c.done || now.Before(c.expires)) {
		return false, nil
	}
	d.claims[id] = claim{expires: now.Add(d.lease)}
	return true, nil
}

func (d *InMemoryDeduper) Complete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claims[id] = claim{done: true}
	return nil
}

func (d *InMemoryDeduper) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.claims[id]; ok && !c.done {
		delete(d.claims, id)
	}
	return nil
}
