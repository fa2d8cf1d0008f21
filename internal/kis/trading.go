package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// PlaceOrder 发出现金市价单，并原样返回券商的确认报文。
// 确认报文的结构由券商定义，rt_cd 非成功时同样透传，只记录日志。
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (json.RawMessage, error) {
	req, err := c.orderRequest(order)
	if err != nil {
		return nil, err
	}

	body, env, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if !env.OK() {
		c.logger.Warn("下单被券商拒绝",
			zap.Stringer("order", order),
			zap.String("msg_cd", env.MessageCode),
			zap.String("msg1", env.Message),
		)
	} else {
		c.logger.Info("下单已受理",
			zap.Stringer("order", order),
			zap.String("stock_code", order.InstrumentCode),
		)
	}

	return json.RawMessage(body), nil
}

// Buy 以市价买入。
func (c *Client) Buy(ctx context.Context, code string, quantity int) (json.RawMessage, error) {
	return c.PlaceOrder(ctx, OrderRequest{InstrumentCode: code, Quantity: quantity, Side: SideBuy})
}

// Sell 以市价卖出。
func (c *Client) Sell(ctx context.Context, code string, quantity int) (json.RawMessage, error) {
	return c.PlaceOrder(ctx, OrderRequest{InstrumentCode: code, Quantity: quantity, Side: SideSell})
}

// orderRequest 构造下单请求，买卖两侧仅 tr_id 不同。
func (c *Client) orderRequest(order OrderRequest) (request, error) {
	if !order.Side.Valid() {
		return request{}, fmt.Errorf("kis: 不支持的买卖方向 %q", order.Side)
	}

	trID, op := c.trIDs.order(order.Side)
	return request{
		op:     op,
		trID:   trID,
		method: http.MethodPost,
		path:   orderCashPath,
		body: orderCashBody{
			AccountSuffix:  c.account.Suffix,
			AccountPrefix:  c.account.Prefix,
			OrderDivision:  orderDivisionMarket,
			Quantity:       strconv.Itoa(order.Quantity),
			UnitPrice:      marketPrice,
			InstrumentCode: order.InstrumentCode,
		},
	}, nil
}
