// drainbench 测量离线积压的回放耗时：先离线入队 ITEMS 条，再恢复在线并 drain 一次。
// STORE=redis 时使用进程内 miniredis，FAIL_EVERY=n 时上游每 n 次请求返回一次 503。
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"

	"github.com/d60-Lab/offline-queue/config"
	"github.com/d60-Lab/offline-queue/internal/connectivity"
	"github.com/d60-Lab/offline-queue/internal/model"
	"github.com/d60-Lab/offline-queue/internal/repository"
	"github.com/d60-Lab/offline-queue/internal/service"
	"github.com/d60-Lab/offline-queue/internal/transport"
	"github.com/d60-Lab/offline-queue/pkg/database"
)

type timedReplayer struct {
	next service.Replayer
	mu   sync.Mutex
	lat  []time.Duration
}

func (r *timedReplayer) Replay(ctx context.Context, it *model.QueueItem) (datatypes.JSON, error) {
	st := time.Now()
	resp, err := r.next.Replay(ctx, it)
	r.mu.Lock()
	r.lat = append(r.lat, time.Since(st))
	r.mu.Unlock()
	return resp, err
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			return v
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(float64(len(xs)) * p)
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func openStore(backend string) (repository.QueueRepository, func(), error) {
	if backend == "redis" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return repository.NewRedisQueueRepository(client, "drainbench"), func() { _ = client.Close(); mr.Close() }, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	cfg.Database.DSN = "file:drainbench?mode=memory&cache=shared"
	if cfg.Database.Driver != "sqlite" {
		cfg.Database.DSN = os.Getenv("BENCH_DSN")
	}
	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return repository.NewQueueRepository(db), closeFn, nil
}

func main() {
	items := envInt("ITEMS", 500)
	failEvery := envInt("FAIL_EVERY", 0)
	backend := os.Getenv("STORE")
	if backend == "" {
		backend = "gorm"
	}

	var hits int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&hits, 1)
		if failEvery > 0 && n%int64(failEvery) == 0 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	store, closeStore, err := openStore(backend)
	if err != nil {
		panic(err)
	}
	defer closeStore()
	ctx := context.Background()
	if err := store.InitSchema(ctx); err != nil {
		panic(err)
	}

	httpReplayer, err := transport.NewHTTPReplayer(upstream.URL, 5*time.Second)
	if err != nil {
		panic(err)
	}
	replayer := &timedReplayer{next: httpReplayer}
	monitor := connectivity.NewMonitor(false)
	engine := service.NewSyncEngine(store, replayer, monitor,
		service.WithBackoff(time.Millisecond, 10*time.Millisecond))

	enqueue := make([]time.Duration, 0, items)
	for i := 0; i < items; i++ {
		st := time.Now()
		_, err := engine.QueueMutation(ctx, model.MutationRequest{
			Method: "POST",
			URL:    "/api/orders",
			Data:   []byte(fmt.Sprintf(`{"seq":%d}`, i)),
		})
		if err != nil {
			panic(err)
		}
		enqueue = append(enqueue, time.Since(st))
	}

	monitor.SetOnline(true)
	st := time.Now()
	if err := engine.SyncNow(ctx); err != nil {
		panic(err)
	}
	total := time.Since(st)
	snap := engine.GetQueueSnapshot()

	fmt.Printf("STORE=%s ITEMS=%d FAIL_EVERY=%d\n", backend, items, failEvery)
	fmt.Printf("Enqueue: avg=%v p95=%v p99=%v\n", avg(enqueue), pct(enqueue, 0.95), pct(enqueue, 0.99))
	fmt.Printf("Replay: calls=%d avg=%v p95=%v p99=%v\n", len(replayer.lat), avg(replayer.lat), pct(replayer.lat, 0.95), pct(replayer.lat, 0.99))
	fmt.Printf("Drain: total=%v throughput=%.1f items/s completed=%d failed=%d\n",
		total, float64(items)/total.Seconds(), snap.Completed, snap.Failed)
}
