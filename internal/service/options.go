package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/offline-queue/internal/model"
)

const (
	DefaultMaxRetries   = 5
	DefaultBaseBackoff  = time.Second
	DefaultMaxBackoff   = 30 * time.Second
	DefaultSyncInterval = 30 * time.Second
)

// Option 定制 SyncEngine
type Option func(*SyncEngine)

func WithMaxRetries(n int) Option {
	return func(e *SyncEngine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithBackoff 等待时长为 min(max, base * 2^retries)
func WithBackoff(base, max time.Duration) Option {
	return func(e *SyncEngine) {
		if base > 0 {
			e.baseBackoff = base
		}
		if max > 0 {
			e.maxBackoff = max
		}
	}
}

func WithSyncInterval(d time.Duration) Option {
	return func(e *SyncEngine) {
		if d > 0 {
			e.syncInterval = d
		}
	}
}

// WithReplayRate 限制回放频率（次/秒），<=0 表示不限
func WithReplayRate(perSecond float64) Option {
	return func(e *SyncEngine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithSleep 替换退避等待（测试中注入）
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(e *SyncEngine) { e.sleep = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(e *SyncEngine) { e.now = fn }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *SyncEngine) { e.newID = fn }
}

func WithFailureReporter(r FailureReporter) Option {
	return func(e *SyncEngine) {
		if r != nil {
			e.reporter = r
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// newItemID UUIDv7：按时间单调递增，字典序即写入顺序
func newItemID() string {
	return uuid.Must(uuid.NewV7()).String()
}

type nopReporter struct{}

func (nopReporter) ReportFailure(model.QueueItem, error) {}
