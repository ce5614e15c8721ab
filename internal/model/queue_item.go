package model

import (
	"strings"

	"gorm.io/datatypes"
)

// Method 可入队的写请求方法
type Method string

const (
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// ParseMethod 大小写不敏感；GET/HEAD 等非写方法返回 false
func ParseMethod(s string) (Method, bool) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodPost, MethodPut, MethodPatch, MethodDelete:
		return m, true
	default:
		return "", false
	}
}

// Status 队列项状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	HeaderIdempotencyKey = "x-idempotency-key"
	HeaderTransactionID  = "x-transaction-id"
)

// QueueItem 离线捕获的一次写请求（本地持久化，回放后保留用于审计）
type QueueItem struct {
	ID           string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Method       Method            `json:"method" gorm:"type:varchar(8);not null"`
	URL          string            `json:"url" gorm:"type:text;not null"`
	Data         datatypes.JSON    `json:"data,omitempty"`
	BodyEncoding string            `json:"bodyEncoding,omitempty" gorm:"type:varchar(8)"`
	Headers      map[string]string `json:"headers" gorm:"serializer:json;type:text"`
	Status       Status            `json:"status" gorm:"type:varchar(16);index;not null"`
	Retries      int               `json:"retries" gorm:"not null"`
	CreatedAt    int64             `json:"createdAt" gorm:"autoCreateTime:milli;index"`
	UpdatedAt    int64             `json:"updatedAt" gorm:"autoUpdateTime:milli"`
	Response     datatypes.JSON    `json:"response,omitempty"`
	LastError    string            `json:"lastError,omitempty" gorm:"type:text"`
	RequestHash  string            `json:"requestHash" gorm:"type:varchar(64)"`
}

func (QueueItem) TableName() string { return "queue_items" }

// Normalize 空的 JSON 列写成 null 字面量，避免读回时扫描 NULL 失败
func (i *QueueItem) Normalize() {
	if len(i.Data) == 0 {
		i.Data = datatypes.JSON("null")
	}
	if len(i.Response) == 0 {
		i.Response = datatypes.JSON("null")
	}
}

// HasBody data 不是 null
func (i *QueueItem) HasBody() bool {
	return len(i.Data) > 0 && string(i.Data) != "null"
}

// IdempotencyKey 回放时服务端用于去重的键（等于 ID）
func (i *QueueItem) IdempotencyKey() string { return i.Headers[HeaderIdempotencyKey] }

// MutationRequest 待入队请求的描述
type MutationRequest struct {
	Method  string            `json:"method" validate:"required"`
	URL     string            `json:"url" validate:"required"`
	Data    []byte            `json:"data,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// QueueResult queueMutation 的返回
type QueueResult struct {
	ID      string `json:"id"`
	Queued  bool   `json:"queued"`
	Offline bool   `json:"offline"`
}
