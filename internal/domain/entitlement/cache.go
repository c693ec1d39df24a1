package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/worksuite/worksuite-api/internal/pkg/clock"
)

// Decision is a cached IsFeatureEnabled result.
type Decision struct {
	Enabled   bool
	ExpiresAt *time.Time
}

// Cache holds entitlement decisions per workspace. Every mutation of a workspace's
// entitlements must be followed by InvalidateWorkspace, which also bumps the workspace
// generation. A decision read from the store under generation g is stored only while
// the generation is still g, so a fill that raced with an invalidation is dropped.
type Cache interface {
	Get(ctx context.Context, workspaceID uuid.UUID, code string) (Decision, bool, error)
	Generation(ctx context.Context, workspaceID uuid.UUID) (uint64, error)
	// Set reports whether the decision was stored.
	Set(ctx context.Context, workspaceID uuid.UUID, code string, d Decision, ttl time.Duration, gen uint64) (bool, error)
	InvalidateWorkspace(ctx context.Context, workspaceID uuid.UUID) error
}

type memoryEntry struct {
	decision   Decision
	validUntil time.Time
}

// MemoryCache is a process-local Cache with per-entry deadlines.
type MemoryCache struct {
	clock clock.Clock
	mu    sync.Mutex
	byWS  map[uuid.UUID]map[string]memoryEntry
	gens  map[uuid.UUID]uint64
}

func NewMemoryCache(clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryCache{
		clock: clk,
		byWS:  make(map[uuid.UUID]map[string]memoryEntry),
		gens:  make(map[uuid.UUID]uint64),
	}
}

func (c *MemoryCache) Get(_ context.Context, workspaceID uuid.UUID, code string) (Decision, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byWS[workspaceID][code]
	if !ok {
		return Decision{}, false, nil
	}
	if !c.clock.Now().Before(entry.validUntil) {
		delete(c.byWS[workspaceID], code)
		return Decision{}, false, nil
	}
	return entry.decision, true, nil
}

func (c *MemoryCache) Generation(_ context.Context, workspaceID uuid.UUID) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[workspaceID], nil
}

func (c *MemoryCache) Set(_ context.Context, workspaceID uuid.UUID, code string, d Decision, ttl time.Duration, gen uint64) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[workspaceID] != gen {
		return false, nil
	}
	entries, ok := c.byWS[workspaceID]
	if !ok {
		entries = make(map[string]memoryEntry)
		c.byWS[workspaceID] = entries
	}
	entries[code] = memoryEntry{decision: d, validUntil: c.clock.Now().Add(ttl)}
	return true, nil
}

func (c *MemoryCache) InvalidateWorkspace(_ context.Context, workspaceID uuid.UUID) error {
	c.mu.Lock()
	delete(c.byWS, workspaceID)
	c.gens[workspaceID]++
	c.mu.Unlock()
	return nil
}

// RedisCache shares decisions between API instances. A workspace maps to one hash
// (field = feature code) so invalidation is a single DEL. Each field carries its own
// deadline because EXPIRE applies to the whole hash. The generation lives in a
// separate counter key that survives the DEL; both keys share a hash tag.
type RedisCache struct {
	client *redis.Client
	clock  clock.Clock
	prefix string
}

// setIfGeneration writes the field only while the generation counter still matches.
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

func NewRedisCache(client *redis.Client, clk clock.Clock) *RedisCache {
	if clk == nil {
		clk = clock.Real()
	}
	return &RedisCache{client: client, clock: clk, prefix: "entitlements:"}
}

func (c *RedisCache) key(workspaceID uuid.UUID) string {
	return c.prefix + "{" + workspaceID.String() + "}"
}

func (c *RedisCache) genKey(workspaceID uuid.UUID) string {
	return c.key(workspaceID) + ":gen"
}

func (c *RedisCache) Get(ctx context.Context, workspaceID uuid.UUID, code string) (Decision, bool, error) {
	raw, err := c.client.HGet(ctx, c.key(workspaceID), code).Result()
	if errors.Is(err, redis.Nil) {
		return Decision{}, false, nil
	}
	if err != nil {
		return Decision{}, false, fmt.Errorf("redis get entitlement: %w", err)
	}

	d, validUntil, err := decodeDecision(raw)
	if err != nil {
		return Decision{}, false, err
	}
	if !c.clock.Now().Before(validUntil) {
		return Decision{}, false, nil
	}
	return d, true, nil
}

func (c *RedisCache) Generation(ctx context.Context, workspaceID uuid.UUID) (uint64, error) {
	gen, err := c.client.Get(ctx, c.genKey(workspaceID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get entitlement generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Set(ctx context.Context, workspaceID uuid.UUID, code string, d Decision, ttl time.Duration, gen uint64) (bool, error) {
	if ttl < time.Millisecond {
		return false, nil
	}
	validUntil := c.clock.Now().Add(ttl)

	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.key(workspaceID), c.genKey(workspaceID)},
		strconv.FormatUint(gen, 10), code, encodeDecision(d, validUntil), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set entitlement: %w", err)
	}
	return stored == 1, nil
}

func (c *RedisCache) InvalidateWorkspace(ctx context.Context, workspaceID uuid.UUID) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.key(workspaceID))
	pipe.Incr(ctx, c.genKey(workspaceID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate entitlements: %w", err)
	}
	return nil
}

// encodeDecision renders "enabled|expiresUnixMilli|validUntilUnixMilli"; an empty
// middle field means no expiry.
func encodeDecision(d Decision, validUntil time.Time) string {
	enabled := "0"
	if d.Enabled {
		enabled = "1"
	}
	expires := ""
	if d.ExpiresAt != nil {
		expires = strconv.FormatInt(d.ExpiresAt.UnixMilli(), 10)
	}
	return enabled + "|" + expires + "|" + strconv.FormatInt(validUntil.UnixMilli(), 10)
}

func decodeDecision(raw string) (Decision, time.Time, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 3 {
		return Decision{}, time.Time{}, fmt.Errorf("malformed entitlement cache value %q", raw)
	}

	d := Decision{Enabled: parts[0] == "1"}
	if parts[1] != "" {
		ms, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Decision{}, time.Time{}, fmt.Errorf("malformed entitlement expiry %q: %w", raw, err)
		}
		expires := time.UnixMilli(ms).UTC()
		d.ExpiresAt = &expires
	}

	ms, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Decision{}, time.Time{}, fmt.Errorf("malformed entitlement deadline %q: %w", raw, err)
	}
	return d, time.UnixMilli(ms).UTC(), nil
}
