package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"gorm.io/datatypes"

	"github.com/d60-Lab/offline-queue/internal/model"
)

const maxResponseBody = 1 << 20

// StatusError 服务端返回了非 2xx
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d", e.Code)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}

// HTTPReplayer 按队列项原样重发请求。client 不能经过 OfflineTransport，否则回放会被再次入队。
type HTTPReplayer struct {
	client *http.Client
	base   *url.URL
}

func NewHTTPReplayer(baseURL string, timeout time.Duration) (*HTTPReplayer, error) {
	r := &HTTPReplayer{client: &http.Client{Timeout: timeout}}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream url: %w", err)
		}
		r.base = u
	}
	return r, nil
}

func (r *HTTPReplayer) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.IsAbs() || r.base == nil {
		return u.String(), nil
	}
	return r.base.ResolveReference(u).String(), nil
}

func (r *HTTPReplayer) Replay(ctx context.Context, item *model.QueueItem) (datatypes.JSON, error) {
	ctx, span := otel.Tracer("offlineq/transport").Start(ctx, "queue.replay")
	defer span.End()

	target, err := r.resolve(item.URL)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", item.URL, err)
	}
	span.SetAttributes(
		attribute.String("queue.item_id", item.ID),
		attribute.String("http.method", string(item.Method)),
		attribute.String("http.url", target),
		attribute.Int("queue.retries", item.Retries),
	)

	var body io.Reader
	payload := item.Body()
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, string(item.Method), target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range item.Headers {
		req.Header.Set(k, v)
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		if item.BodyEncoding == model.BodyEncodingText {
			req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		} else {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return responseJSON(raw), nil
}

// responseJSON 非 JSON 响应体存为 JSON 字符串
func responseJSON(raw []byte) datatypes.JSON {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return datatypes.JSON(quoted)
}
