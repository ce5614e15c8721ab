// Package connectivity tracks whether the upstream API is reachable and fans out
// online/offline/visible signals to subscribers.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/offline-queue/pkg/logger"
)

// Event 连接状态事件，仅作为触发信号
type Event int

const (
	EventOnline Event = iota + 1
	EventOffline
	// EventVisible 客户端回到前台（由调用方显式通知）
	EventVisible
)

func (e Event) String() string {
	switch e {
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventVisible:
		return "visible"
	default:
		return "unknown"
	}
}

const subscriberBuffer = 8

// Monitor 保存当前在线标志并向订阅者广播变化
type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan Event
	nextID int
}

func NewMonitor(initialOnline bool) *Monitor {
	return &Monitor{online: initialOnline, subs: make(map[int]chan Event)}
}

// Online 同步读取当前状态
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline 只在状态翻转时广播
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.mu.Unlock()

	if online {
		logger.Info("connectivity restored")
		m.broadcast(EventOnline)
	} else {
		logger.Warn("connectivity lost")
		m.broadcast(EventOffline)
	}
}

func (m *Monitor) NotifyVisible() { m.broadcast(EventVisible) }

// Subscribe 返回事件通道和取消函数。通道满时事件被丢弃（触发信号可合并）。
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Monitor) broadcast(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			logger.Debug("connectivity subscriber full, drop event", zap.Stringer("event", ev))
		}
	}
}

// Probe 按 interval 轮询 healthURL，任何 HTTP 响应（<500）视为在线，直到 ctx 结束
func (m *Monitor) Probe(ctx context.Context, client *http.Client, healthURL string, interval time.Duration) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m.SetOnline(check(ctx, client, healthURL))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(check(ctx, client, healthURL))
		}
	}
}

func check(ctx context.Context, client *http.Client, healthURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
