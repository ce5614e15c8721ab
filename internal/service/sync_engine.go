package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"

	"github.com/d60-Lab/offline-queue/internal/connectivity"
	"github.com/d60-Lab/offline-queue/internal/model"
	"github.com/d60-Lab/offline-queue/internal/repository"
	"github.com/d60-Lab/offline-queue/pkg/logger"
)

var (
	ErrItemNotFound   = errors.New("queue item not found")
	ErrInvalidRequest = errors.New("invalid mutation request")
	ErrItemInFlight   = errors.New("queue item is being replayed")
	ErrItemCompleted  = errors.New("queue item already completed")
	// ErrSnapshotRefresh 队列项已持久化，但随后的快照重算失败
	ErrSnapshotRefresh = errors.New("queue item persisted but snapshot refresh failed")
)

// Replayer 把队列项重新发往服务端；非 2xx 与网络错误同样返回 error
type Replayer interface {
	Replay(ctx context.Context, item *model.QueueItem) (datatypes.JSON, error)
}

// Connectivity 在线标志与触发事件
type Connectivity interface {
	Online() bool
	Subscribe() (<-chan connectivity.Event, func())
}

// FailureReporter 接收持久化失败或重试耗尽的队列项
type FailureReporter interface {
	ReportFailure(item model.QueueItem, err error)
}

// QueueListener 订阅者回调，每次队列变化都会收到完整快照
type QueueListener func(model.QueueEvent)

// SyncEngine 离线写请求队列：入队、顺序回放、指数退避重试、快照广播
type SyncEngine struct {
	store    repository.QueueRepository
	replayer Replayer
	net      Connectivity
	reporter FailureReporter
	validate *validator.Validate

	maxRetries   int
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	syncInterval time.Duration
	limiter      *rate.Limiter
	sleep        func(context.Context, time.Duration) error
	now          func() time.Time
	newID        func() string

	// 全队列同时最多一个 drain
	draining *semaphore.Weighted

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	refreshMu sync.Mutex

	mu           sync.RWMutex
	snapshot     model.QueueSnapshot
	listeners    map[uint64]QueueListener
	nextListener uint64
	baseCtx      context.Context
	stopped      bool

	startOnce sync.Once
	stop      func(context.Context) error
	wg        sync.WaitGroup
}

func NewSyncEngine(store repository.QueueRepository, replayer Replayer, net Connectivity, opts ...Option) *SyncEngine {
	e := &SyncEngine{
		store:        store,
		replayer:     replayer,
		net:          net,
		reporter:     nopReporter{},
		validate:     validator.New(),
		maxRetries:   DefaultMaxRetries,
		baseBackoff:  DefaultBaseBackoff,
		maxBackoff:   DefaultMaxBackoff,
		syncInterval: DefaultSyncInterval,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		sleep:        sleepCtx,
		now:          time.Now,
		newID:        newItemID,
		draining:     semaphore.NewWeighted(1),
		inflight:     make(map[string]struct{}),
		snapshot:     model.NewSnapshot(nil),
		listeners:    make(map[uint64]QueueListener),
		baseCtx:      context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Backoff 第 retries 次失败后的等待时长
func (e *SyncEngine) Backoff(retries int) time.Duration {
	d := e.baseBackoff
	for i := 0; i < retries; i++ {
		d *= 2
		if d >= e.maxBackoff {
			return e.maxBackoff
		}
	}
	if d > e.maxBackoff {
		return e.maxBackoff
	}
	return d
}

// QueueMutation 捕获一次写请求并持久化。在线时顺带触发一次后台 drain，不等待其结果。
// 快照重算失败时仍返回结果，同时返回包装了 ErrSnapshotRefresh 的错误。
func (e *SyncEngine) QueueMutation(ctx context.Context, req model.MutationRequest) (*model.QueueResult, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	method, ok := model.ParseMethod(req.Method)
	if !ok {
		return nil, fmt.Errorf("%w: method %q is not a mutation", ErrInvalidRequest, req.Method)
	}

	id := e.newID()
	headers := make(map[string]string, len(req.Headers)+2)
	for k, v := range req.Headers {
		headers[strings.ToLower(k)] = v
	}
	headers[model.HeaderIdempotencyKey] = id
	headers[model.HeaderTransactionID] = id

	data, encoding := model.EncodeBody(req.Data)
	item := &model.QueueItem{
		ID:           id,
		Method:       method,
		URL:          req.URL,
		Data:         data,
		BodyEncoding: encoding,
		Headers:      headers,
		Status:       model.StatusPending,
		Retries:      0,
		CreatedAt:    e.now().UnixMilli(),
		RequestHash:  fingerprint(method, req.URL, req.Data),
	}
	if err := e.store.Put(ctx, item); err != nil {
		logger.Error("capture mutation failed", zap.String("id", id), zap.String("url", req.URL), zap.Error(err))
		e.reporter.ReportFailure(*item, err)
		return nil, fmt.Errorf("persist queue item: %w", err)
	}
	logger.Info("mutation queued", zap.String("id", id), zap.String("method", string(method)), zap.String("url", req.URL))

	refreshErr := e.refreshAndPublish(ctx, model.EventQueued, map[string]any{"id": id})

	online := e.net.Online()
	if online {
		e.goDrain()
	}
	res := &model.QueueResult{ID: id, Queued: true, Offline: !online}
	if refreshErr != nil {
		return res, fmt.Errorf("%w: item %s: %w", ErrSnapshotRefresh, id, refreshErr)
	}
	return res, nil
}

// ProcessQueue 顺序回放启动时读到的全部 pending 项；已有 drain 在跑时直接返回
func (e *SyncEngine) ProcessQueue(ctx context.Context) error {
	if !e.draining.TryAcquire(1) {
		logger.Debug("drain already running, skip")
		return nil
	}
	defer e.draining.Release(1)

	ctx, span := otel.Tracer("offlineq/service").Start(ctx, "queue.drain")
	defer span.End()

	items, err := e.store.GetByStatus(ctx, model.StatusPending)
	if err != nil {
		return fmt.Errorf("load pending items: %w", err)
	}
	span.SetAttributes(attribute.Int("queue.pending", len(items)))

	completed := 0
	for i := range items {
		ok, err := e.replay(ctx, items[i].ID)
		if err != nil {
			return err
		}
		if ok {
			completed++
		}
	}
	return e.refreshAndPublish(ctx, model.EventSynced, map[string]any{"processed": len(items), "completed": completed})
}

// SyncNow 手动同步入口
func (e *SyncEngine) SyncNow(ctx context.Context) error { return e.ProcessQueue(ctx) }

// RetryItem 重置为 pending / retries=0 后立即回放该项（不经过 drain 互斥）。
// completed 是终态，不允许重试。
func (e *SyncEngine) RetryItem(ctx context.Context, id string) (bool, error) {
	if !e.claim(id) {
		return false, ErrItemInFlight
	}
	defer e.release(id)

	item, err := e.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrItemNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load queue item %s: %w", id, err)
	}
	if item.Status == model.StatusCompleted {
		return false, ErrItemCompleted
	}

	item.Status = model.StatusPending
	item.Retries = 0
	item.LastError = ""
	if err := e.persist(ctx, item); err != nil {
		return false, err
	}
	if err := e.refreshAndPublish(ctx, model.EventRetry, map[string]any{"id": id}); err != nil {
		return false, err
	}
	return e.attempt(ctx, item)
}

// RetryAllFailed 逐个手动重试所有 failed 项
func (e *SyncEngine) RetryAllFailed(ctx context.Context) error {
	failed, err := e.store.GetByStatus(ctx, model.StatusFailed)
	if err != nil {
		return fmt.Errorf("load failed items: %w", err)
	}
	completed := 0
	for _, it := range failed {
		ok, err := e.RetryItem(ctx, it.ID)
		if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrItemInFlight) || errors.Is(err, ErrItemCompleted) {
			continue
		}
		if err != nil {
			return err
		}
		if ok {
			completed++
		}
	}
	return e.refreshAndPublish(ctx, model.EventRetryAll, map[string]any{"count": len(failed), "completed": completed})
}

// DeleteItem 管理端清理，核心流程不会调用
func (e *SyncEngine) DeleteItem(ctx context.Context, id string) error {
	if err := e.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete queue item %s: %w", id, err)
	}
	return e.refreshAndPublish(ctx, model.EventUpdate, map[string]any{"id": id, "deleted": true})
}

// OnQueueUpdate 注册订阅者，并立即用当前快照回调一次 init
func (e *SyncEngine) OnQueueUpdate(l QueueListener) func() {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = l
	snap := e.snapshot
	e.mu.Unlock()

	e.notify(l, model.QueueEvent{Event: model.EventInit, Payload: map[string]any{}, Snapshot: snap})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// GetQueueSnapshot 返回最近一次计算的快照（不重新读取存储）
func (e *SyncEngine) GetQueueSnapshot() model.QueueSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.snapshot
	snap.Items = append([]model.QueueItem(nil), e.snapshot.Items...)
	if snap.Items == nil {
		snap.Items = []model.QueueItem{}
	}
	return snap
}

// Refresh 从存储全量重算快照（不广播）
func (e *SyncEngine) Refresh(ctx context.Context) (model.QueueSnapshot, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	items, err := e.store.GetAll(ctx)
	if err != nil {
		return model.QueueSnapshot{}, fmt.Errorf("refresh snapshot: %w", err)
	}
	snap := model.NewSnapshot(items)

	e.mu.Lock()
	e.snapshot = snap
	e.mu.Unlock()
	return snap, nil
}

// Start 安装触发器：启动时在线则 drain 一次；online 事件先 RetryAllFailed 再 drain；
// 前台可见且在线时 drain；每 syncInterval 在线时 drain。重复调用返回同一个停止函数。
func (e *SyncEngine) Start(ctx context.Context) func(context.Context) error {
	e.startOnce.Do(func() { e.stop = e.start(ctx) })
	return e.stop
}

func (e *SyncEngine) start(parent context.Context) func(context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	if _, err := e.Refresh(ctx); err != nil {
		logger.Warn("initial snapshot refresh failed", zap.Error(err))
	}

	events, unsubscribe := e.net.Subscribe()

	c := cron.New()
	if _, err := c.AddFunc("@every "+e.syncInterval.String(), func() {
		if e.net.Online() {
			e.runDrain(ctx, "timer")
		}
	}); err != nil {
		logger.Error("install sync timer failed", zap.Error(err))
	}
	c.Start()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				switch ev {
				case connectivity.EventOnline:
					if err := e.RetryAllFailed(ctx); err != nil {
						logger.Warn("retry failed items on reconnect", zap.Error(err))
					}
					e.runDrain(ctx, "online")
				case connectivity.EventVisible:
					if e.net.Online() {
						e.runDrain(ctx, "visible")
					}
				}
			}
		}
	}()

	if e.net.Online() {
		e.goDrain()
	}
	logger.Info("sync engine started", zap.Duration("interval", e.syncInterval), zap.Int("max_retries", e.maxRetries))

	return func(stopCtx context.Context) error {
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()
		cancel()
		unsubscribe()
		cronDone := c.Stop()

		done := make(chan struct{})
		go func() {
			<-cronDone.Done()
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			logger.Info("sync engine stopped")
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

func (e *SyncEngine) runDrain(ctx context.Context, trigger string) {
	if err := e.ProcessQueue(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("drain failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

// goDrain 停止后不再派生新的 drain，保证 wg.Add 先于 wg.Wait
func (e *SyncEngine) goDrain() {
	e.mu.Lock()
	ctx := e.baseCtx
	if e.stopped || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.runDrain(ctx, "enqueue")
	}()
}

// replay drain 开始时读到的只是副本，认领后按 id 重读，只回放仍为 pending 的项
func (e *SyncEngine) replay(ctx context.Context, id string) (bool, error) {
	if !e.claim(id) {
		logger.Debug("queue item in flight, skip", zap.String("id", id))
		return false, nil
	}
	defer e.release(id)

	item, err := e.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load queue item %s: %w", id, err)
	}
	if item.Status != model.StatusPending {
		logger.Debug("queue item no longer pending, skip", zap.String("id", id), zap.String("status", string(item.Status)))
		return false, nil
	}
	return e.attempt(ctx, item)
}

// attempt 回放直到成功或 retries 达到上限；返回的 error 只来自存储或 ctx
func (e *SyncEngine) attempt(ctx context.Context, item *model.QueueItem) (bool, error) {
	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return false, err
		}

		resp, replayErr := e.replayer.Replay(ctx, item)
		if replayErr == nil {
			item.Status = model.StatusCompleted
			item.Response = resp
			item.LastError = ""
			if err := e.persist(ctx, item); err != nil {
				return false, err
			}
			logger.Info("queue item replayed", zap.String("id", item.ID), zap.Int("retries", item.Retries))
			if err := e.refreshAndPublish(ctx, model.EventUpdate, map[string]any{"id": item.ID, "status": item.Status}); err != nil {
				return false, err
			}
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		item.Retries++
		item.LastError = replayErr.Error()
		if item.Retries >= e.maxRetries {
			item.Status = model.StatusFailed
			if err := e.persist(ctx, item); err != nil {
				return false, err
			}
			logger.Error("queue item exhausted retries", zap.String("id", item.ID), zap.Int("retries", item.Retries), zap.Error(replayErr))
			e.reporter.ReportFailure(*item, replayErr)
			if err := e.refreshAndPublish(ctx, model.EventUpdate, map[string]any{"id": item.ID, "status": item.Status}); err != nil {
				return false, err
			}
			return false, nil
		}

		if err := e.persist(ctx, item); err != nil {
			return false, err
		}
		wait := e.Backoff(item.Retries)
		logger.Warn("queue item replay failed, retrying",
			zap.String("id", item.ID), zap.Int("retries", item.Retries), zap.Duration("backoff", wait), zap.Error(replayErr))
		if err := e.sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

func (e *SyncEngine) persist(ctx context.Context, item *model.QueueItem) error {
	if err := e.store.Put(ctx, item); err != nil {
		return fmt.Errorf("persist queue item %s: %w", item.ID, err)
	}
	return nil
}

func (e *SyncEngine) refreshAndPublish(ctx context.Context, ev model.EventType, payload map[string]any) error {
	snap, err := e.Refresh(ctx)
	if err != nil {
		return err
	}

	e.mu.RLock()
	ls := make([]QueueListener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.RUnlock()

	event := model.QueueEvent{Event: ev, Payload: payload, Snapshot: snap}
	for _, l := range ls {
		e.notify(l, event)
	}
	return nil
}

func (e *SyncEngine) notify(l QueueListener, ev model.QueueEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("queue listener panicked", zap.String("event", string(ev.Event)), zap.Any("panic", r))
		}
	}()
	l(ev)
}

func (e *SyncEngine) claim(id string) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *SyncEngine) release(id string) {
	e.inflightMu.Lock()
	delete(e.inflight, id)
	e.inflightMu.Unlock()
}

func fingerprint(method model.Method, url string, body []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
