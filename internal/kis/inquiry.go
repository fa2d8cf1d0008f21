package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Holdings 查询持仓与账户汇总。rt_cd 非成功时返回 BusinessError，且不解析 payload；
// 成功时 output1 与 output2 第一条按原样返回。
func (c *Client) Holdings(ctx context.Context) (Holdings, error) {
	req := request{
		op:     OpHoldings,
		trID:   c.trIDs.Balance,
		method: http.MethodGet,
		path:   balancePath,
		query:  balanceQuery(c.account),
	}

	body, env, err := c.send(ctx, req)
	if err != nil {
		return Holdings{}, err
	}
	if !env.OK() {
		return Holdings{}, env.businessError(req.op, req.trID)
	}

	var payload balancePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Holdings{}, &MalformedResponseError{Operation: req.op, Err: err}
	}

	result := Holdings{
		Stocks:        payload.Output1,
		AccountNumber: c.account.String(),
	}
	if result.Stocks == nil {
		result.Stocks = []json.RawMessage{}
	}
	if len(payload.Output2) > 0 {
		result.AccountSummary = payload.Output2[0]
	}

	c.logger.Info("持仓查询完成",
		zap.Int("positions", len(result.Stocks)),
		zap.Strings("stock_codes", holdingCodes(result.Stocks)),
	)
	return result, nil
}

func holdingCodes(stocks []json.RawMessage) []string {
	codes := make([]string, 0, len(stocks))
	for _, raw := range stocks {
		var key holdingKey
		if err := json.Unmarshal(raw, &key); err == nil && key.Code != "" {
			codes = append(codes, key.Code)
		}
	}
	return codes
}

// Quote 查询现价。未知或停牌代码属于正常输入：rt_cd 非成功、缺少 output
// 或价格为空时返回 found=false 而不是错误。
func (c *Client) Quote(ctx context.Context, code string) (Quote, bool, error) {
	req := request{
		op:     OpQuote,
		trID:   c.trIDs.Price,
		method: http.MethodGet,
		path:   pricePath,
		query:  priceQuery(code),
	}

	body, env, err := c.send(ctx, req)
	if err != nil {
		return Quote{}, false, err
	}
	if !env.OK() {
		c.logger.Info("现价查询未命中", zap.String("stock_code", code), zap.String("msg1", env.Message))
		return Quote{}, false, nil
	}

	var payload pricePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Quote{}, false, &MalformedResponseError{Operation: req.op, Err: err}
	}

	raw := bytes.TrimSpace(payload.Output)
	if len(raw) == 0 || raw[0] != '{' {
		c.logger.Warn("现价响应缺少 output", zap.String("stock_code", code))
		return Quote{}, false, nil
	}

	var output priceOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		c.logger.Warn("现价响应 output 格式异常", zap.String("stock_code", code), zap.Error(err))
		return Quote{}, false, nil
	}

	price := strings.TrimSpace(output.Price)
	if price == "" {
		c.logger.Warn("现价响应缺少价格", zap.String("stock_code", code))
		return Quote{}, false, nil
	}

	return Quote{Price: price, Code: code}, true, nil
}

// TopTraded 查询成交量排行，校验信封后原样返回券商报文。
func (c *Client) TopTraded(ctx context.Context) (json.RawMessage, error) {
	req := request{
		op:     OpTopTraded,
		trID:   c.trIDs.VolumeRank,
		method: http.MethodGet,
		path:   volumeRankPath,
		query:  volumeRankQuery(),
	}

	body, env, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !env.OK() {
		return nil, env.businessError(req.op, req.trID)
	}

	return json.RawMessage(body), nil
}
