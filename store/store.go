// Package store 处理结果的临时存储，过期或被淘汰后自动消失，不落盘
package store

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	libstore "github.com/eko/gocache/lib/v4/store"
	ristrettostore "github.com/eko/gocache/store/ristretto/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/chaos-io/prophoto/config"
	"github.com/chaos-io/prophoto/photo"
)

var ErrNotFound = errors.New("result not found or expired")

// Record 一次处理的原图、结果和参数
type Record struct {
	ID                string
	Original          *image.NRGBA
	Processed         *image.NRGBA
	Options           photo.Options
	BackgroundRemoved bool
	Elapsed           time.Duration
	CreatedAt         time.Time
}

// Cost 按像素字节计算占用
func (r *Record) Cost() int64 {
	var n int
	if r.Original != nil {
		n += len(r.Original.Pix)
	}
	if r.Processed != nil {
		n += len(r.Processed.Pix)
	}
	return int64(max(n, 1))
}

type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Added       uint64 `json:"added"`
	Evicted     uint64 `json:"evicted"`
	Rejected    uint64 `json:"rejected"`
	CostBytes   uint64 `json:"cost_bytes"`
	MaxCostByte int64  `json:"max_cost_bytes"`
}

type Store struct {
	rc    *ristretto.Cache
	cache *cache.Cache[*Record]
	ttl   time.Duration
	max   int64
}

func New(cfg config.Store) (*Store, error) {
	maxCost := cfg.MaxMB << 20
	rc, err := ristretto.NewCache(&ristretto.Config{
		// 计数器数量按最多存 1 万条估算
		NumCounters:        1e5,
		MaxCost:            maxCost,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	return &Store{
		rc:    rc,
		cache: cache.New[*Record](ristrettostore.NewRistretto(rc)),
		ttl:   cfg.TTL,
		max:   maxCost,
	}, nil
}

// Put 保存记录，ID 为空时生成新的 ksuid，返回最终 ID
func (s *Store) Put(ctx context.Context, rec *Record) (string, error) {
	if rec.ID == "" {
		rec.ID = ksuid.New().String()
	} else if _, err := ksuid.Parse(rec.ID); err != nil {
		return "", fmt.Errorf("invalid result id %q: %w", rec.ID, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	cost := rec.Cost()
	if cost > s.max {
		return "", fmt.Errorf("result of %d bytes exceeds store capacity", cost)
	}

	err := s.cache.Set(ctx, rec.ID, rec,
		libstore.WithCost(cost),
		libstore.WithExpiration(s.ttl),
	)
	if err != nil {
		return "", fmt.Errorf("store result %s: %w", rec.ID, err)
	}
	// ristretto 异步写入，等待写完后 Get 才能读到
	s.rc.Wait()

	zerolog.Ctx(ctx).Debug().Str("id", rec.ID).Int64("cost", cost).Msg("result stored")
	return rec.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if _, err := ksuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	rec, err := s.cache.Get(ctx, id)
	// 未命中和过期都只返回 NotFound
	if err != nil || rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete result %s: %w", id, err)
	}
	s.rc.Wait()
	return nil
}

func (s *Store) Stats() Stats {
	m := s.rc.Metrics
	return Stats{
		Hits:        m.Hits(),
		Misses:      m.Misses(),
		Added:       m.KeysAdded(),
		Evicted:     m.KeysEvicted(),
		Rejected:    m.SetsRejected(),
		CostBytes:   m.CostAdded() - m.CostEvicted(),
		MaxCostByte: s.max,
	}
}

// LogStats 定时任务调用
func (s *Store) LogStats(logger zerolog.Logger) {
	st := s.Stats()
	logger.Info().
		Uint64("hits", st.Hits).
		Uint64("misses", st.Misses).
		Uint64("added", st.Added).
		Uint64("evicted", st.Evicted).
		Uint64("rejected", st.Rejected).
		Uint64("cost_bytes", st.CostBytes).
		Msg("result store stats")
}

func (s *Store) Close() {
	s.rc.Close()
}
