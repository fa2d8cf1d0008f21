package kis

import (
	"context"
	"time"
)

// Operation 标识一次对券商的调用。
type Operation string

const (
	OpIssueToken Operation = "issue_token"
	OpOrderBuy   Operation = "order_buy"
	OpOrderSell  Operation = "order_sell"
	OpHoldings   Operation = "inquire_balance"
	OpQuote      Operation = "inquire_price"
	OpTopTraded  Operation = "volume_rank"
)

// Outcome 为调用结果分类。
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeBusinessError     Outcome = "business_error"
	OutcomeTransportError    Outcome = "transport_error"
	OutcomeMalformedResponse Outcome = "malformed_response"
	OutcomeCredentialError   Outcome = "credential_error"
	OutcomeUnknown           Outcome = "unknown"
)

// CallEvent 描述一次出站调用，不包含令牌与订单内容。
type CallEvent struct {
	Operation  Operation
	TrID       string
	Outcome    Outcome
	Message    string
	StatusCode int
	Latency    time.Duration
}

// Observer 接收出站调用事件，在调用方 goroutine 中同步执行。
// 令牌签发事件在释放签发信号量之后上报，不会阻塞等待令牌的其他调用方。
type Observer interface {
	ObserveCall(ctx context.Context, event CallEvent)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(context.Context, CallEvent) {}
