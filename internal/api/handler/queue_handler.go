package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/offline-queue/internal/model"
	"github.com/d60-Lab/offline-queue/internal/service"
	"github.com/d60-Lab/offline-queue/pkg/logger"
	"github.com/d60-Lab/offline-queue/pkg/response"
)

const sseBuffer = 16

type connectivityRequest struct {
	Online  *bool `json:"online"`
	Visible *bool `json:"visible"`
}

type retryResult struct {
	ID        string           `json:"id"`
	Completed bool             `json:"completed"`
	Item      *model.QueueItem `json:"item,omitempty"`
}

// GetQueue 当前队列快照
// @Summary 队列快照
// @Tags 队列
// @Produce json
// @Param refresh query bool false "是否从存储重新读取"
// @Success 200 {object} response.Response{data=model.QueueSnapshot}
// @Failure 500 {object} response.Response
// @Router /api/v1/queue [get]
func (h *Handler) GetQueue(c *gin.Context) {
	if c.Query("refresh") == "true" {
		snap, err := h.engine.Refresh(c.Request.Context())
		if err != nil {
			response.InternalError(c, err)
			return
		}
		response.Success(c, snap)
		return
	}
	response.Success(c, h.engine.GetQueueSnapshot())
}

// QueueEvents 以 SSE 推送队列事件，首条为 init
// @Summary 队列事件流
// @Tags 队列
// @Produce text/event-stream
// @Success 200 {object} model.QueueEvent
// @Router /api/v1/queue/events [get]
func (h *Handler) QueueEvents(c *gin.Context) {
	events := make(chan model.QueueEvent, sseBuffer)
	unsubscribe := h.engine.OnQueueUpdate(func(ev model.QueueEvent) {
		select {
		case events <- ev:
		default:
			logger.Warn("sse subscriber too slow, event dropped", zap.String("event", string(ev.Event)))
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev := <-events:
			c.SSEvent(string(ev.Event), ev)
			return true
		}
	})
}

// SyncNow 立即同步一次（已有同步进行中时直接返回）
// @Summary 立即同步
// @Tags 队列
// @Produce json
// @Success 200 {object} response.Response{data=model.QueueSnapshot}
// @Failure 500 {object} response.Response
// @Router /api/v1/queue/sync [post]
func (h *Handler) SyncNow(c *gin.Context) {
	if err := h.engine.SyncNow(c.Request.Context()); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, h.engine.GetQueueSnapshot())
}

// RetryFailed 重试全部失败项
// @Summary 重试全部失败项
// @Tags 队列
// @Produce json
// @Success 200 {object} response.Response{data=model.QueueSnapshot}
// @Failure 500 {object} response.Response
// @Router /api/v1/queue/retry-failed [post]
func (h *Handler) RetryFailed(c *gin.Context) {
	if err := h.engine.RetryAllFailed(c.Request.Context()); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, h.engine.GetQueueSnapshot())
}

// RetryItem 手动重试单个队列项
// @Summary 重试队列项
// @Tags 队列
// @Produce json
// @Param id path string true "队列项ID"
// @Success 200 {object} response.Response{data=retryResult}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/queue/items/{id}/retry [post]
func (h *Handler) RetryItem(c *gin.Context) {
	id := c.Param("id")
	ok, err := h.engine.RetryItem(c.Request.Context(), id)
	if errors.Is(err, service.ErrItemNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	if errors.Is(err, service.ErrItemInFlight) || errors.Is(err, service.ErrItemCompleted) {
		response.Conflict(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	res := retryResult{ID: id, Completed: ok}
	if it, found := h.engine.GetQueueSnapshot().Find(id); found {
		res.Item = &it
	}
	response.Success(c, res)
}

// DeleteItem 删除队列项
// @Summary 删除队列项
// @Tags 队列
// @Param id path string true "队列项ID"
// @Success 200 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/queue/items/{id} [delete]
func (h *Handler) DeleteItem(c *gin.Context) {
	if err := h.engine.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// SetConnectivity 显式上报在线/前台状态
// @Summary 连接状态信号
// @Tags 连接
// @Accept json
// @Produce json
// @Param request body connectivityRequest true "online / visible"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/connectivity [post]
func (h *Handler) SetConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Online == nil && req.Visible == nil {
		response.BadRequest(c, "online or visible is required")
		return
	}
	if req.Online != nil {
		h.monitor.SetOnline(*req.Online)
	}
	if req.Visible != nil && *req.Visible {
		h.monitor.NotifyVisible()
	}
	response.Success(c, gin.H{"online": h.monitor.Online()})
}

// Health 存活检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Router /healthz [get]
func (h *Handler) Health(c *gin.Context) {
	snap := h.engine.GetQueueSnapshot()
	response.Success(c, gin.H{
		"online":  h.monitor.Online(),
		"pending": snap.Pending,
		"failed":  snap.Failed,
	})
}

// Gateway 反向代理到上游；离线时写请求入队并返回 202
func (h *Handler) Gateway(c *gin.Context) {
	if h.gateway == nil {
		response.NotFound(c, "gateway disabled")
		return
	}
	c.Request.URL.Path = c.Param("path")
	c.Request.URL.RawPath = ""
	h.gateway.ServeHTTP(c.Writer, c.Request)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
