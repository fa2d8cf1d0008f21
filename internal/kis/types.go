package kis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SuccessCode 为信封中 rt_cd 的成功值。
const SuccessCode = "0"

// Side 表示买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid 判断方向是否受支持。
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderRequest 为一次现金下单请求，数量由入站层校验为正数。
type OrderRequest struct {
	InstrumentCode string
	Quantity       int
	Side           Side
}

func (r OrderRequest) String() string {
	return fmt.Sprintf("%s %s x%d", r.Side, r.InstrumentCode, r.Quantity)
}

// Envelope 是券商所有响应共用的外层结构。
type Envelope struct {
	Code        string `json:"rt_cd"`
	MessageCode string `json:"msg_cd"`
	Message     string `json:"msg1"`
}

// OK 判断 rt_cd 是否为成功值。
func (e Envelope) OK() bool {
	return e.Code == SuccessCode
}

func (e Envelope) businessError(op Operation, trID string) *BusinessError {
	return &BusinessError{
		Operation:   op,
		TrID:        trID,
		Code:        e.Code,
		MessageCode: e.MessageCode,
		Message:     strings.TrimSpace(e.Message),
	}
}

// Holdings 为持仓查询结果。持仓明细与账户汇总保留券商原始报文，不裁剪字段也不转换类型。
type Holdings struct {
	Stocks         []json.RawMessage `json:"stocks"`
	AccountSummary json.RawMessage   `json:"accountSummary,omitempty"`
	AccountNumber  string            `json:"accountNumber"`
}

// Quote 为单个标的的现价。
type Quote struct {
	Price string `json:"price"`
	Code  string `json:"code"`
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// orderCashBody 的字段按键名字母序排列，与券商示例报文保持一致。
type orderCashBody struct {
	AccountSuffix  string `json:"ACNT_PRDT_CD"`
	AccountPrefix  string `json:"CANO"`
	OrderDivision  string `json:"ORD_DVSN"`
	Quantity       string `json:"ORD_QTY"`
	UnitPrice      string `json:"ORD_UNPR"`
	InstrumentCode string `json:"PDNO"`
}

// balancePayload 仅在 rt_cd 成功后解析。
type balancePayload struct {
	Output1 []json.RawMessage `json:"output1"`
	Output2 []json.RawMessage `json:"output2"`
}

// holdingKey 只取日志需要的字段，数量与金额保持原样透传。
type holdingKey struct {
	Code string `json:"pdno"`
}

type pricePayload struct {
	Output json.RawMessage `json:"output"`
}

type priceOutput struct {
	Price string `json:"stck_prpr"`
}
