package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	applog "kantin/internal/log"
)

const ReasonReplayed = "Bukti pembayaran sudah pernah digunakan"

// ProofMarks remembers digests of proofs that were already accepted.
type ProofMarks interface {
	Seen(ctx context.Context, key string) (bool, error)
	// Mark returns false when key was already present.
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, key string) error
}

// ReplayGuard rejects a proof image that already paid for an earlier order.
// Store errors never block a checkout; they are logged and the inner verdict
// stands.
type ReplayGuard struct {
	Inner Gateway
	Marks ProofMarks
	TTL   time.Duration
}

func NewReplayGuard(inner Gateway, marks ProofMarks, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{Inner: inner, Marks: marks, TTL: ttl}
}

func proofKey(img []byte) string {
	sum := sha256.Sum256(img)
	return "kantin:proof:" + hex.EncodeToString(sum[:])
}

func (g *ReplayGuard) Verify(ctx context.Context, req Request) Verdict {
	key := proofKey(req.Image)
	seen, err := g.Marks.Seen(ctx, key)
	if err != nil {
		applog.Error(nil, "verify.replay.seen", err, nil)
	} else if seen {
		applog.Security(nil, "verify.replay", map[string]any{"amount": req.ExpectedAmount})
		return reject(ReasonReplayed)
	}

	v := g.Inner.Verify(ctx, req)
	if !v.Accepted {
		return v
	}
	fresh, err := g.Marks.Mark(ctx, key, g.TTL)
	if err != nil {
		applog.Error(nil, "verify.replay.mark", err, nil)
		return v
	}
	if !fresh {
		// Another kiosk won the race with the same image.
		applog.Security(nil, "verify.replay", map[string]any{"amount": req.ExpectedAmount, "race": true})
		return reject(ReasonReplayed)
	}
	return v
}

// Release drops the mark left by an accepted verdict whose sale was never
// recorded, so the customer can present the same proof again.
func (g *ReplayGuard) Release(ctx context.Context, image []byte) {
	if err := g.Marks.Unmark(ctx, proofKey(image)); err != nil {
		applog.Error(nil, "verify.replay.release", err, nil)
	}
}

// RedisMarks keeps proof digests in Redis with an expiry.
type RedisMarks struct{ rdb *redis.Client }

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func NewRedisMarks(rdb *redis.Client) *RedisMarks { return &RedisMarks{rdb: rdb} }

func (m *RedisMarks) Seen(ctx context.Context, key string) (bool, error) {
	n, err := m.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (m *RedisMarks) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.rdb.SetNX(ctx, key, "1", ttl).Result()
}

func (m *RedisMarks) Unmark(ctx context.Context, key string) error {
	return m.rdb.Del(ctx, key).Err()
}

// MemoryMarks is the single-process fallback when Redis is not configured.
type MemoryMarks struct {
	mu  sync.Mutex
	m   map[string]time.Time
	Now func() time.Time
}

func NewMemoryMarks() *MemoryMarks {
	return &MemoryMarks{m: map[string]time.Time{}, Now: time.Now}
}

func (m *MemoryMarks) live(key string) bool {
	exp, ok := m.m[key]
	if !ok {
		return false
	}
	if !exp.IsZero() && !m.Now().Before(exp) {
		delete(m.m, key)
		return false
	}
	return true
}

func (m *MemoryMarks) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(key), nil
}

func (m *MemoryMarks) Mark(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live(key) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = m.Now().Add(ttl)
	}
	m.m[key] = exp
	return true, nil
}

func (m *MemoryMarks) Unmark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
	return nil
}
