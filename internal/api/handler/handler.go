package handler

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"github.com/d60-Lab/offline-queue/internal/connectivity"
	"github.com/d60-Lab/offline-queue/internal/service"
	"github.com/d60-Lab/offline-queue/internal/transport"
	"github.com/d60-Lab/offline-queue/pkg/logger"
	"github.com/d60-Lab/offline-queue/pkg/response"
)

// Handler 管理端与网关的 HTTP 入口
type Handler struct {
	engine  *service.SyncEngine
	monitor *connectivity.Monitor
	gateway *httputil.ReverseProxy
}

// New upstream 为空时不提供网关
func New(engine *service.SyncEngine, monitor *connectivity.Monitor, upstream *url.URL, next http.RoundTripper) *Handler {
	h := &Handler{engine: engine, monitor: monitor}
	if upstream != nil {
		h.gateway = newGateway(upstream, transport.NewOfflineTransport(next, engine, monitor))
	}
	return h
}

func newGateway(target *url.URL, rt http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: rt,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("gateway request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			writeJSON(w, http.StatusBadGateway, response.Response{Code: http.StatusBadGateway, Message: err.Error()})
		},
	}
}
