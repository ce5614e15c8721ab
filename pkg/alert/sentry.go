// Package alert forwards unrecoverable queue failures to Sentry.
package alert

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/offline-queue/internal/model"
	"github.com/d60-Lab/offline-queue/pkg/logger"
)

// Init 初始化 sentry；dsn 为空时不启用，返回 false
func Init(dsn, environment string) (bool, error) {
	if dsn == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Flush 进程退出前调用
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// SentryReporter 把重试耗尽或持久化失败的队列项上报到 sentry
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter hub 为 nil 时使用全局 hub
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{hub: hub}
}

func (r *SentryReporter) ReportFailure(item model.QueueItem, err error) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("queue.item_id", item.ID)
		scope.SetTag("queue.status", string(item.Status))
		scope.SetTag("http.method", string(item.Method))
		scope.SetContext("queue_item", map[string]interface{}{
			"url":          item.URL,
			"retries":      item.Retries,
			"created_at":   item.CreatedAt,
			"request_hash": item.RequestHash,
		})
		if id := r.hub.CaptureException(err); id != nil {
			logger.Debug("failure reported", zap.String("id", item.ID), zap.String("event_id", string(*id)))
		}
	})
}
