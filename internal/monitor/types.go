package monitor

import (
	"time"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventBrokerCall EventType = "broker_call"
	EventError      EventType = "error"
)

// Valid 判断事件类型是否已知。
func (t EventType) Valid() bool {
	return t == EventBrokerCall || t == EventError
}

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// BrokerCallPayload 记录一次券商调用的结果，不包含下单内容与账户数据。
type BrokerCallPayload struct {
	Operation  string `json:"operation"`
	TrID       string `json:"tr_id,omitempty"`
	Outcome    string `json:"outcome"`
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
