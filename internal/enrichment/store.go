package enrichment

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store holds the indicator lists a Matcher is built from.
type Store interface {
	Add(ctx context.Context, indicators ...Indicator) error
	All(ctx context.Context) ([]Indicator, error)
	Close() error
}

// Load copies every provider's indicators into store.
func Load(ctx context.Context, store Store, providers ...Provider) (int, error) {
	total := 0
	for _, p := range providers {
		inds, err := p.Indicators(ctx)
		if err != nil {
			return total, fmt.Errorf("provider %s: %w", p.Name(), err)
		}
		if err := store.Add(ctx, inds...); err != nil {
			return total, fmt.Errorf("store %s indicators: %w", p.Name(), err)
		}
		total += len(inds)
	}
	return total, nil
}

// MemoryStore is a Store scoped to one process.
type MemoryStore struct {
	mu  sync.RWMutex
	set map[Indicator]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{set: make(map[Indicator]struct{})}
}

func (m *MemoryStore) Add(_ context.Context, indicators ...Indicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ind := range indicators {
		if ind.Value == "" {
			continue
		}
		m.set[ind] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]Indicator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Indicator, 0, len(m.set))
	for ind := range m.set {
		out = append(out, ind)
	}
	sortIndicators(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// RedisConfig configures the shared indicator store.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	TLSEnabled  bool          `yaml:"tls_enabled"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	KeyPrefix   string        `yaml:"key_prefix"`
}

// setClient is the subset of Redis used by RedisStore.
type setClient interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Close() error
}

type goRedisClient struct {
	client *redis.Client
}

func (g *goRedisClient) SAdd(ctx context.Context, key string, members ...string) error {
	vals := make([]interface{}, len(members))
	for i, m := range members {
		vals[i] = m
	}
	return g.client.SAdd(ctx, key, vals...).Err()
}

func (g *goRedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return g.client.SMembers(ctx, key).Result()
}

func (g *goRedisClient) Close() error {
	return g.client.Close()
}

// RedisStore keeps indicators in Redis sets so several pipeline runs can
// share curated lists. Each set is keyed <prefix>:<type> and holds
// "<list>|<value>" members.
type RedisStore struct {
	client setClient
	prefix string
}

// NewRedisClient opens a verified connection described by cfg.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newRedisStore(&goRedisClient{client: client}, cfg.KeyPrefix), nil
}

func newRedisStore(client setClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "soc:ioc"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(t IOCType) string {
	return r.prefix + ":" + string(t)
}

func (r *RedisStore) Add(ctx context.Context, indicators ...Indicator) error {
	byType := make(map[IOCType][]string)
	for _, ind := range indicators {
		if ind.Value == "" {
			continue
		}
		byType[ind.Type] = append(byType[ind.Type], ind.List+"|"+ind.Value)
	}
	for t, members := range byType {
		if err := r.client.SAdd(ctx, r.key(t), members...); err != nil {
			return fmt.Errorf("sadd %s: %w", r.key(t), err)
		}
	}
	return nil
}

func (r *RedisStore) All(ctx context.Context) ([]Indicator, error) {
	var out []Indicator
	for _, t := range []IOCType{IOCTypeDomain, IOCTypeIP} {
		members, err := r.client.SMembers(ctx, r.key(t))
		if err != nil {
			return nil, fmt.Errorf("smembers %s: %w", r.key(t), err)
		}
		for _, m := range members {
			list, value, ok := strings.Cut(m, "|")
			if !ok || value == "" {
				continue
			}
			out = append(out, Indicator{Type: t, Value: value, List: list})
		}
	}
	sortIndicators(out)
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func sortIndicators(inds []Indicator) {
	sort.Slice(inds, func(i, j int) bool {
		a, b := inds[i], inds[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.List != b.List {
			return a.List < b.List
		}
		return a.Value < b.Value
	})
}
