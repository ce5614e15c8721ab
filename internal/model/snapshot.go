package model

// QueueSnapshot 队列聚合视图，每次全量重算，不做增量
type QueueSnapshot struct {
	Pending   int         `json:"pending"`
	Failed    int         `json:"failed"`
	Completed int         `json:"completed"`
	Items     []QueueItem `json:"items"`
}

// NewSnapshot 由完整的队列项集合计算快照
func NewSnapshot(items []QueueItem) QueueSnapshot {
	s := QueueSnapshot{Items: make([]QueueItem, len(items))}
	copy(s.Items, items)
	for _, it := range items {
		switch it.Status {
		case StatusPending:
			s.Pending++
		case StatusFailed:
			s.Failed++
		case StatusCompleted:
			s.Completed++
		}
	}
	return s
}

// Find 按 ID 查找快照中的项
func (s QueueSnapshot) Find(id string) (QueueItem, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return QueueItem{}, false
}

// EventType 推送给订阅者的事件名
type EventType string

const (
	EventInit     EventType = "init"
	EventQueued   EventType = "queued"
	EventSynced   EventType = "synced"
	EventRetry    EventType = "retry"
	EventRetryAll EventType = "retryAll"
	EventUpdate   EventType = "update"
)

// QueueEvent 订阅者收到的事件
type QueueEvent struct {
	Event    EventType      `json:"event"`
	Payload  map[string]any `json:"payload"`
	Snapshot QueueSnapshot  `json:"snapshot"`
}
