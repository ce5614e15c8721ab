// Package transport captures mutating HTTP requests made while offline and
// replays queued items against the upstream API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/offline-queue/internal/model"
	"github.com/d60-Lab/offline-queue/pkg/logger"
)

// Enqueuer 由 service.SyncEngine 实现
type Enqueuer interface {
	QueueMutation(ctx context.Context, req model.MutationRequest) (*model.QueueResult, error)
	GetQueueSnapshot() model.QueueSnapshot
}

type OnlineChecker interface {
	Online() bool
}

// QueuedResponse 离线捕获后返回给调用方的 202 响应体
type QueuedResponse struct {
	Queued   bool                `json:"queued"`
	Offline  bool                `json:"offline"`
	ID       string              `json:"id"`
	Snapshot model.QueueSnapshot `json:"snapshot"`
}

// OfflineTransport 离线时把写请求写入队列并合成 202，其余请求交给 Next
type OfflineTransport struct {
	Next  http.RoundTripper
	Queue Enqueuer
	Net   OnlineChecker
}

func NewOfflineTransport(next http.RoundTripper, queue Enqueuer, net OnlineChecker) *OfflineTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &OfflineTransport{Next: next, Queue: queue, Net: net}
}

func (t *OfflineTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	method, mutating := model.ParseMethod(req.Method)
	if !mutating || t.Net.Online() {
		return t.Next.RoundTrip(req)
	}

	var data []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		data = b
	}

	res, err := t.Queue.QueueMutation(req.Context(), model.MutationRequest{
		Method:  string(method),
		URL:     req.URL.String(),
		Data:    data,
		Headers: flattenHeaders(req.Header),
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("offline request captured", zap.String("id", res.ID), zap.String("url", req.URL.String()))

	body, err := json.Marshal(QueuedResponse{
		Queued:   res.Queued,
		Offline:  res.Offline,
		ID:       res.ID,
		Snapshot: t.Queue.GetQueueSnapshot(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode queued response: %w", err)
	}

	return &http.Response{
		Status:        "202 Accepted",
		StatusCode:    http.StatusAccepted,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

var skipHeaders = map[string]bool{
	"content-length":    true,
	"connection":        true,
	"transfer-encoding": true,
	"accept-encoding":   true,
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		k = strings.ToLower(k)
		if skipHeaders[k] || len(vs) == 0 {
			continue
		}
		out[k] = strings.Join(vs, ", ")
	}
	return out
}
