package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaos-io/prophoto/photo/rembg"
)

const probeTimeout = 10 * time.Second

type HealthStatus struct {
	Backend   string    `json:"backend"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at,omitzero"`
}

// Health 记录最近一次抠图后端探测结果
type Health struct {
	pinger rembg.Pinger

	mu     sync.RWMutex
	status HealthStatus
}

// NewHealth remover 没有实现 Pinger 时始终视为正常
func NewHealth(backend string, remover rembg.Remover) *Health {
	h := &Health{status: HealthStatus{Backend: backend, OK: true}}
	if p, ok := remover.(rembg.Pinger); ok {
		h.pinger = p
	}
	return h
}

func (h *Health) Probe(ctx context.Context) error {
	if h.pinger == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	err := h.pinger.Ping(ctx)

	h.mu.Lock()
	h.status.OK = err == nil
	h.status.Error = ""
	if err != nil {
		h.status.Error = err.Error()
	}
	h.status.CheckedAt = time.Now()
	backend := h.status.Backend
	h.mu.Unlock()

	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("backend", backend).Msg("segmentation backend unhealthy")
	}
	return err
}

func (h *Health) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}
