package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// EventBus publishes refresh notifications to other processes.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	PublishRefresh(ctx context.Context, ev RefreshEvent) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RefreshEvent is published after a batch refresh finishes.
type RefreshEvent struct {
	RunID      string      `json:"run_id"`
	Venue      Venue       `json:"venue"`
	Env        Environment `json:"environment"`
	Updated    []string    `json:"updated"`
	Failed     int         `json:"failed"`
	Error      string      `json:"error,omitempty"`
	FinishedAt time.Time   `json:"finished_at"`
}

// RunSummary describes the most recent refresh run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Requested  int       `json:"requested"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed_partitions"`
	Error      string    `json:"error,omitempty"`
}
