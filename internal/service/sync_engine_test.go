package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/offline-queue/internal/connectivity"
	"github.com/d60-Lab/offline-queue/internal/model"
	"github.com/d60-Lab/offline-queue/internal/repository"
)

type fakeReplayer struct {
	mu    sync.Mutex
	calls []string
	fn    func(item *model.QueueItem, n int) (datatypes.JSON, error)
}

func (r *fakeReplayer) Replay(_ context.Context, item *model.QueueItem) (datatypes.JSON, error) {
	r.mu.Lock()
	r.calls = append(r.calls, item.ID)
	n := 0
	for _, id := range r.calls {
		if id == item.ID {
			n++
		}
	}
	fn := r.fn
	r.mu.Unlock()
	if fn == nil {
		return datatypes.JSON(`{"ok":true}`), nil
	}
	return fn(item, n)
}

func (r *fakeReplayer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type recordingReporter struct {
	mu    sync.Mutex
	items []model.QueueItem
}

func (r *recordingReporter) ReportFailure(item model.QueueItem, _ error) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
}

func (r *recordingReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

type brokenStore struct {
	repository.QueueRepository
}

func (brokenStore) Put(context.Context, *model.QueueItem) error { return errors.New("disk full") }

// flakyStore GetAll 可按需失败，用于快照重算失败的场景
type flakyStore struct {
	repository.QueueRepository
	failGetAll atomic.Bool
}

func (s *flakyStore) GetAll(ctx context.Context) ([]model.QueueItem, error) {
	if s.failGetAll.Load() {
		return nil, errors.New("read timeout")
	}
	return s.QueueRepository.GetAll(ctx)
}

func newStore(t *testing.T) repository.QueueRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewQueueRepository(db)
	require.NoError(t, repo.InitSchema(context.Background()))
	return repo
}

type fixture struct {
	engine   *SyncEngine
	store    repository.QueueRepository
	replayer *fakeReplayer
	monitor  *connectivity.Monitor
	sleeps   *sleepRecorder
}

func newFixture(t *testing.T, online bool, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    newStore(t),
		replayer: &fakeReplayer{},
		monitor:  connectivity.NewMonitor(online),
		sleeps:   &sleepRecorder{},
	}
	opts = append([]Option{WithSleep(f.sleeps.Sleep)}, opts...)
	f.engine = NewSyncEngine(f.store, f.replayer, f.monitor, opts...)
	return f
}

func (f *fixture) enqueue(t *testing.T, url string) string {
	t.Helper()
	res, err := f.engine.QueueMutation(context.Background(), model.MutationRequest{
		Method: "POST",
		URL:    url,
		Data:   []byte(`{"name":"x"}`),
	})
	require.NoError(t, err)
	return res.ID
}

func (f *fixture) item(t *testing.T, id string) model.QueueItem {
	t.Helper()
	all, err := f.store.GetAll(context.Background())
	require.NoError(t, err)
	it, ok := model.NewSnapshot(all).Find(id)
	require.True(t, ok, "item %s not stored", id)
	return it
}

func TestBackoff(t *testing.T) {
	e := NewSyncEngine(nil, nil, nil)
	cases := map[int]time.Duration{
		0:  time.Second,
		1:  2 * time.Second,
		2:  4 * time.Second,
		4:  16 * time.Second,
		5:  30 * time.Second,
		20: 30 * time.Second,
	}
	for retries, want := range cases {
		assert.Equal(t, want, e.Backoff(retries), "retries=%d", retries)
	}
}

func TestQueueMutation_Offline(t *testing.T) {
	f := newFixture(t, false)

	var events []model.QueueEvent
	f.engine.OnQueueUpdate(func(ev model.QueueEvent) { events = append(events, ev) })

	res, err := f.engine.QueueMutation(context.Background(), model.MutationRequest{
		Method:  "patch",
		URL:     "/api/users/1",
		Data:    []byte(`{"name":"bob"}`),
		Headers: map[string]string{"Authorization": "Bearer t"},
	})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.True(t, res.Offline)
	require.NotEmpty(t, res.ID)

	it := f.item(t, res.ID)
	assert.Equal(t, model.MethodPatch, it.Method)
	assert.Equal(t, model.StatusPending, it.Status)
	assert.Equal(t, 0, it.Retries)
	assert.Equal(t, res.ID, it.Headers[model.HeaderIdempotencyKey])
	assert.Equal(t, res.ID, it.Headers[model.HeaderTransactionID])
	assert.Equal(t, "Bearer t", it.Headers["authorization"])
	assert.JSONEq(t, `{"name":"bob"}`, string(it.Data))
	assert.Len(t, it.RequestHash, 64)
	assert.NotZero(t, it.CreatedAt)

	require.Len(t, events, 2)
	assert.Equal(t, model.EventInit, events[0].Event)
	assert.Equal(t, model.EventQueued, events[1].Event)
	assert.Equal(t, res.ID, events[1].Payload["id"])
	assert.Equal(t, 1, events[1].Snapshot.Pending)

	assert.Empty(t, f.replayer.Calls())
	assert.Equal(t, 1, f.engine.GetQueueSnapshot().Pending)
}

func TestQueueMutation_Invalid(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.engine.QueueMutation(ctx, model.MutationRequest{Method: "GET", URL: "/api/users"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.engine.QueueMutation(ctx, model.MutationRequest{Method: "POST"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestQueueMutation_PersistFailure(t *testing.T) {
	reporter := &recordingReporter{}
	e := NewSyncEngine(brokenStore{newStore(t)}, &fakeReplayer{}, connectivity.NewMonitor(true),
		WithFailureReporter(reporter))

	_, err := e.QueueMutation(context.Background(), model.MutationRequest{Method: "POST", URL: "/api/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, reporter.Count())
}

func TestQueueMutation_OnlineDrainsInBackground(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.engine.QueueMutation(context.Background(), model.MutationRequest{Method: "DELETE", URL: "/api/posts/9"})
	require.NoError(t, err)
	assert.False(t, res.Offline)

	assert.Eventually(t, func() bool {
		return f.engine.GetQueueSnapshot().Completed == 1
	}, 2*time.Second, 10*time.Millisecond)

	it := f.item(t, res.ID)
	assert.Equal(t, model.StatusCompleted, it.Status)
	assert.JSONEq(t, `{"ok":true}`, string(it.Response))
	assert.False(t, it.HasBody())
}

func TestProcessQueue_ReplaysInInsertionOrder(t *testing.T) {
	f := newFixture(t, false)
	a := f.enqueue(t, "/a")
	b := f.enqueue(t, "/b")
	c := f.enqueue(t, "/c")

	var synced *model.QueueEvent
	f.engine.OnQueueUpdate(func(ev model.QueueEvent) {
		if ev.Event == model.EventSynced {
			synced = &ev
		}
	})

	require.NoError(t, f.engine.ProcessQueue(context.Background()))
	assert.Equal(t, []string{a, b, c}, f.replayer.Calls())

	require.NotNil(t, synced)
	assert.Equal(t, 3, synced.Snapshot.Completed)
	assert.Equal(t, 0, synced.Snapshot.Pending)
	assert.Equal(t, 3, synced.Payload["processed"])
}

func TestProcessQueue_RetriesThenFails(t *testing.T) {
	reporter := &recordingReporter{}
	f := newFixture(t, false, WithFailureReporter(reporter))
	f.replayer.fn = func(*model.QueueItem, int) (datatypes.JSON, error) {
		return nil, errors.New("503 service unavailable")
	}
	id := f.enqueue(t, "/api/orders")

	require.NoError(t, f.engine.ProcessQueue(context.Background()))

	assert.Len(t, f.replayer.Calls(), DefaultMaxRetries)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, f.sleeps.Waits())

	it := f.item(t, id)
	assert.Equal(t, model.StatusFailed, it.Status)
	assert.Equal(t, DefaultMaxRetries, it.Retries)
	assert.Contains(t, it.LastError, "503")
	assert.Equal(t, 1, reporter.Count())
	assert.Equal(t, 1, f.engine.GetQueueSnapshot().Failed)
}

func TestProcessQueue_SucceedsAfterTransientFailures(t *testing.T) {
	f := newFixture(t, false)
	f.replayer.fn = func(_ *model.QueueItem, n int) (datatypes.JSON, error) {
		if n <= 2 {
			return nil, errors.New("connection refused")
		}
		return datatypes.JSON(`{"id":42}`), nil
	}
	id := f.enqueue(t, "/api/orders")

	require.NoError(t, f.engine.ProcessQueue(context.Background()))

	it := f.item(t, id)
	assert.Equal(t, model.StatusCompleted, it.Status)
	assert.Equal(t, 2, it.Retries)
	assert.Empty(t, it.LastError)
	assert.JSONEq(t, `{"id":42}`, string(it.Response))
	assert.Len(t, f.sleeps.Waits(), 2)
}

func TestProcessQueue_SkipsWhileDraining(t *testing.T) {
	f := newFixture(t, false)
	started := make(chan struct{})
	unblock := make(chan struct{})
	f.replayer.fn = func(*model.QueueItem, int) (datatypes.JSON, error) {
		close(started)
		<-unblock
		return datatypes.JSON(`null`), nil
	}
	f.enqueue(t, "/slow")

	done := make(chan error, 1)
	go func() { done <- f.engine.ProcessQueue(context.Background()) }()
	<-started

	require.NoError(t, f.engine.SyncNow(context.Background()))
	assert.Len(t, f.replayer.Calls(), 1)

	close(unblock)
	require.NoError(t, <-done)
	assert.Len(t, f.replayer.Calls(), 1)
	assert.Equal(t, 1, f.engine.GetQueueSnapshot().Completed)
}

func TestProcessQueue_CancelDoesNotConsumeRetry(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	f.replayer.fn = func(*model.QueueItem, int) (datatypes.JSON, error) {
		cancel()
		return nil, context.Canceled
	}
	id := f.enqueue(t, "/api/x")

	err := f.engine.ProcessQueue(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	it := f.item(t, id)
	assert.Equal(t, model.StatusPending, it.Status)
	assert.Equal(t, 0, it.Retries)
}

func TestRetryItem(t *testing.T) {
	f := newFixture(t, false)
	fail := true
	f.replayer.fn = func(*model.QueueItem, int) (datatypes.JSON, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return datatypes.JSON(`{}`), nil
	}
	id := f.enqueue(t, "/api/x")
	require.NoError(t, f.engine.ProcessQueue(context.Background()))
	require.Equal(t, model.StatusFailed, f.item(t, id).Status)

	var got []model.EventType
	f.engine.OnQueueUpdate(func(ev model.QueueEvent) { got = append(got, ev.Event) })

	fail = false
	ok, err := f.engine.RetryItem(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	it := f.item(t, id)
	assert.Equal(t, model.StatusCompleted, it.Status)
	assert.Equal(t, 0, it.Retries)
	assert.Equal(t, []model.EventType{model.EventInit, model.EventRetry, model.EventUpdate}, got)

	_, err = f.engine.RetryItem(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRetryItem_FailsAgainAfterFullBudget(t *testing.T) {
	f := newFixture(t, false)
	f.replayer.fn = func(*model.QueueItem, int) (datatypes.JSON, error) { return nil, errors.New("boom") }
	id := f.enqueue(t, "/api/x")
	require.NoError(t, f.engine.ProcessQueue(context.Background()))

	ok, err := f.engine.RetryItem(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, f.replayer.Calls(), 2*DefaultMaxRetries)
	assert.Equal(t, model.StatusFailed, f.item(t, id).Status)
}

func TestRetryAllFailed(t *testing.T) {
	f := newFixture(t, false)
	fail := true
	f.replayer.fn = func(*model.QueueItem, int) (datatypes.JSON, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return nil, nil
	}
	f.enqueue(t, "/a")
	f.enqueue(t, "/b")
	require.NoError(t, f.engine.ProcessQueue(context.Background()))
	require.Equal(t, 2, f.engine.GetQueueSnapshot().Failed)

	var last model.QueueEvent
	f.engine.OnQueueUpdate(func(ev model.QueueEvent) { last = ev })

	fail = false
	require.NoError(t, f.engine.RetryAllFailed(context.Background()))
	assert.Equal(t, model.EventRetryAll, last.Event)
	assert.Equal(t, 2, last.Payload["count"])
	assert.Equal(t, 2, last.Snapshot.Completed)
	assert.Equal(t, 0, last.Snapshot.Failed)
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t, false)
	id := f.enqueue(t, "/a")

	require.NoError(t, f.engine.DeleteItem(context.Background(), id))
	assert.Empty(t, f.engine.GetQueueSnapshot().Items)
	require.NoError(t, f.engine.DeleteItem(context.Background(), id))
}

func TestOnQueueUpdate_Unsubscribe(t *testing.T) {
	f := newFixture(t, false)

	var n int
	unsubscribe := f.engine.OnQueueUpdate(func(model.QueueEvent) { n++ })
	assert.Equal(t, 1, n)

	f.enqueue(t, "/a")
	assert.Equal(t, 2, n)

	unsubscribe()
	unsubscribe()
	f.enqueue(t, "/b")
	assert.Equal(t, 2, n)
}

func TestOnQueueUpdate_PanickingListener(t *testing.T) {
	f := newFixture(t, false)
	f.engine.OnQueueUpdate(func(ev model.QueueEvent) {
		if ev.Event == model.EventQueued {
			panic("listener bug")
		}
	})

	var seen bool
	f.engine.OnQueueUpdate(func(ev model.QueueEvent) {
		if ev.Event == model.EventQueued {
			seen = true
		}
	})

	assert.NotPanics(t, func() { f.enqueue(t, "/a") })
	assert.True(t, seen)
}

func TestGetQueueSnapshot_ReturnsCopy(t *testing.T) {
	f := newFixture(t, false)
	f.enqueue(t, "/a")

	snap := f.engine.GetQueueSnapshot()
	snap.Items[0].Status = model.StatusFailed
	assert.Equal(t, model.StatusPending, f.engine.GetQueueSnapshot().Items[0].Status)
}

func TestStart_OnlineEventRetriesFailedAndDrains(t *testing.T) {
	f := newFixture(t, false, WithSyncInterval(time.Hour))
	fail := true
	var mu sync.Mutex
	f.replayer.fn = func(*model.QueueItem, int) (datatypes.JSON, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("offline")
		}
		return nil, nil
	}
	failedID := f.enqueue(t, "/failed")
	require.NoError(t, f.engine.ProcessQueue(context.Background()))
	pendingID := f.enqueue(t, "/pending")

	stop := f.engine.Start(context.Background())
	// 重复启动返回同一停止函数，不会重复安装触发器
	f.engine.Start(context.Background())
	defer func() { require.NoError(t, stop(context.Background())) }()

	mu.Lock()
	fail = false
	mu.Unlock()
	f.monitor.SetOnline(true)

	assert.Eventually(t, func() bool {
		return f.engine.GetQueueSnapshot().Completed == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.StatusCompleted, f.item(t, failedID).Status)
	assert.Equal(t, model.StatusCompleted, f.item(t, pendingID).Status)
}

func TestStart_VisibleTriggersDrain(t *testing.T) {
	f := newFixture(t, true, WithSyncInterval(time.Hour))
	stop := f.engine.Start(context.Background())
	defer func() { require.NoError(t, stop(context.Background())) }()

	require.NoError(t, f.store.Put(context.Background(), &model.QueueItem{
		ID:     "manual-1",
		Method: model.MethodPut,
		URL:    "/api/x",
		Status: model.StatusPending,
	}))

	f.monitor.NotifyVisible()
	assert.Eventually(t, func() bool {
		all, err := f.store.GetAll(context.Background())
		return err == nil && len(all) == 1 && all[0].Status == model.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStart_TimerDrainsWhenOnline(t *testing.T) {
	f := newFixture(t, true, WithSyncInterval(time.Second))
	stop := f.engine.Start(context.Background())
	defer func() { require.NoError(t, stop(context.Background())) }()

	require.NoError(t, f.store.Put(context.Background(), &model.QueueItem{
		ID:     "timer-1",
		Method: model.MethodPost,
		URL:    "/api/x",
		Status: model.StatusPending,
	}))

	assert.Eventually(t, func() bool {
		all, err := f.store.GetAll(context.Background())
		return err == nil && len(all) == 1 && all[0].Status == model.StatusCompleted
	}, 4*time.Second, 50*time.Millisecond)
}

func TestStart_StopRespectsContext(t *testing.T) {
	f := newFixture(t, false)
	stop := f.engine.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, stop(ctx))
}

func TestRetryItem_InFlight(t *testing.T) {
	f := newFixture(t, false)
	started := make(chan struct{})
	unblock := make(chan struct{})
	f.replayer.fn = func(*model.QueueItem, int) (datatypes.JSON, error) {
		close(started)
		<-unblock
		return nil, nil
	}
	id := f.enqueue(t, "/slow")

	done := make(chan error, 1)
	go func() { done <- f.engine.ProcessQueue(context.Background()) }()
	<-started

	ok, err := f.engine.RetryItem(context.Background(), id)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrItemInFlight)

	close(unblock)
	require.NoError(t, <-done)
	assert.Len(t, f.replayer.Calls(), 1)
}

func TestProcessQueue_SkipsItemFinishedByManualRetry(t *testing.T) {
	f := newFixture(t, false)
	started := make(chan struct{})
	unblock := make(chan struct{})
	var first string
	f.replayer.fn = func(it *model.QueueItem, n int) (datatypes.JSON, error) {
		if it.ID == first && n == 1 {
			close(started)
			<-unblock
		}
		return datatypes.JSON(`{}`), nil
	}
	first = f.enqueue(t, "/a")
	second := f.enqueue(t, "/b")

	done := make(chan error, 1)
	go func() { done <- f.engine.ProcessQueue(context.Background()) }()
	<-started

	ok, err := f.engine.RetryItem(context.Background(), second)
	require.NoError(t, err)
	require.True(t, ok)

	close(unblock)
	require.NoError(t, <-done)

	var secondCalls int
	for _, id := range f.replayer.Calls() {
		if id == second {
			secondCalls++
		}
	}
	assert.Equal(t, 1, secondCalls)
	it := f.item(t, second)
	assert.Equal(t, model.StatusCompleted, it.Status)
	assert.Equal(t, 0, it.Retries)
}

func TestRetryItem_RejectsCompleted(t *testing.T) {
	f := newFixture(t, false)
	id := f.enqueue(t, "/a")
	require.NoError(t, f.engine.ProcessQueue(context.Background()))
	require.Equal(t, model.StatusCompleted, f.item(t, id).Status)

	ok, err := f.engine.RetryItem(context.Background(), id)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrItemCompleted)
	assert.Len(t, f.replayer.Calls(), 1)
	assert.Equal(t, model.StatusCompleted, f.item(t, id).Status)
}

func TestSnapshotRefreshFailure(t *testing.T) {
	store := &flakyStore{QueueRepository: newStore(t)}
	e := NewSyncEngine(store, &fakeReplayer{}, connectivity.NewMonitor(false),
		WithSleep((&sleepRecorder{}).Sleep))
	ctx := context.Background()

	store.failGetAll.Store(true)
	res, err := e.QueueMutation(ctx, model.MutationRequest{Method: "POST", URL: "/api/x"})
	require.ErrorIs(t, err, ErrSnapshotRefresh)
	assert.Contains(t, err.Error(), "read timeout")
	require.NotNil(t, res)

	stored, getErr := store.GetByID(ctx, res.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.StatusPending, stored.Status)

	err = e.ProcessQueue(ctx)
	assert.ErrorContains(t, err, "refresh snapshot")

	store.failGetAll.Store(false)
	snap, err := e.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Completed)
}

func TestSyncEngine_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := repository.NewRedisQueueRepository(client, "engine")
	require.NoError(t, store.InitSchema(context.Background()))

	replayer := &fakeReplayer{}
	replayer.fn = func(it *model.QueueItem, n int) (datatypes.JSON, error) {
		if it.URL == "/flaky" && n == 1 {
			return nil, errors.New("502 bad gateway")
		}
		return datatypes.JSON(`{"ok":true}`), nil
	}
	sleeps := &sleepRecorder{}
	e := NewSyncEngine(store, replayer, connectivity.NewMonitor(false), WithSleep(sleeps.Sleep))
	ctx := context.Background()

	var ids []string
	for _, u := range []string{"/a", "/flaky", "/c"} {
		res, err := e.QueueMutation(ctx, model.MutationRequest{Method: "PUT", URL: u, Data: []byte("k=v")})
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}
	assert.Equal(t, 3, e.GetQueueSnapshot().Pending)

	require.NoError(t, e.SyncNow(ctx))
	assert.Equal(t, []string{ids[0], ids[1], ids[1], ids[2]}, replayer.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.Waits())

	snap := e.GetQueueSnapshot()
	assert.Equal(t, 3, snap.Completed)
	flaky, ok := snap.Find(ids[1])
	require.True(t, ok)
	assert.Equal(t, 1, flaky.Retries)
	assert.Equal(t, []byte("k=v"), flaky.Body())

	_, err := e.RetryItem(ctx, ids[0])
	assert.ErrorIs(t, err, ErrItemCompleted)
}

func TestStop_NoDrainAfterStop(t *testing.T) {
	f := newFixture(t, false, WithSyncInterval(time.Hour))
	stop := f.engine.Start(context.Background())
	require.NoError(t, stop(context.Background()))

	f.monitor.SetOnline(true)
	res, err := f.engine.QueueMutation(context.Background(), model.MutationRequest{Method: "POST", URL: "/late"})
	require.NoError(t, err)
	assert.False(t, res.Offline)

	assert.Never(t, func() bool { return len(f.replayer.Calls()) > 0 }, 200*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, model.StatusPending, f.item(t, res.ID).Status)
}
