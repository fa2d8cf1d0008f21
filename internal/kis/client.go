package kis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"kis-gateway/internal/config"
)

const jsonContentType = "application/json; charset=UTF-8"

// Client 负责与券商开放接口交互：附加令牌与券商要求的请求头，并校验响应信封。
type Client struct {
	cfg      config.BrokerConfig
	logger   *zap.Logger
	http     *resty.Client
	tokens   *TokenManager
	account  AccountIdentity
	trIDs    transactionIDs
	observer Observer
}

// Option 调整 Client 的可选依赖。
type Option func(*clientOptions)

type clientOptions struct {
	now      func() time.Time
	observer Observer
}

// WithClock 替换令牌有效期判断使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver 注册出站调用事件的接收方。
func WithObserver(observer Observer) Option {
	return func(o *clientOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// NewClient 构造券商客户端，所有调用共用同一个 resty 连接池。
func NewClient(cfg config.BrokerConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, errors.New("kis: app_key 与 app_secret 不能为空")
	}

	account, err := ParseAccount(cfg.AccountNumber)
	if err != nil {
		return nil, err
	}

	options := clientOptions{now: time.Now, observer: nopObserver{}}
	for _, opt := range opts {
		opt(&options)
	}

	trIDs := virtualTransactionIDs
	baseURL := virtualBaseURL
	if !cfg.IsVirtual() {
		trIDs = realTransactionIDs
		baseURL = realBaseURL
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	if cfg.CustomerType == "" {
		cfg.CustomerType = "P"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	rest := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetLogger(logger.Sugar()).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "kis-gateway")

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		http:     rest,
		account:  account,
		trIDs:    trIDs,
		observer: options.observer,
	}
	c.tokens = newTokenManager(rest, cfg.AppKey, cfg.AppSecret, options.now, options.observer, logger.Named("token"))

	logger.Info("券商客户端已初始化",
		zap.String("environment", cfg.Environment),
		zap.String("base_url", baseURL),
		zap.String("account", maskAccount(account)),
	)

	return c, nil
}

// Tokens 返回令牌管理器。
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

type request struct {
	op     Operation
	trID   string
	method string
	path   string
	query  map[string]string
	body   interface{}
}

// send 发出一次请求并解析信封，返回原始响应体。
// rt_cd 是否成功由调用方按各自的失败策略处理。
func (c *Client) send(ctx context.Context, req request) ([]byte, Envelope, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.observe(ctx, req, CallEvent{Outcome: Classify(err), Message: err.Error()})
		return nil, Envelope{}, err
	}

	r := c.http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"content-type":  jsonContentType,
			"authorization": "Bearer " + token,
			"appkey":        c.cfg.AppKey,
			"appsecret":     c.cfg.AppSecret,
			"tr_id":         req.trID,
			"custtype":      c.cfg.CustomerType,
		})
	if len(req.query) > 0 {
		r.SetQueryParams(req.query)
	}
	if req.body != nil {
		r.SetBody(req.body)
	}

	start := time.Now()
	resp, err := r.Execute(req.method, req.path)
	latency := time.Since(start)
	if err != nil {
		callErr := &TransportError{Operation: req.op, Err: err}
		c.observe(ctx, req, CallEvent{Outcome: OutcomeTransportError, Message: err.Error(), Latency: latency})
		c.logger.Error("券商调用失败",
			zap.String("operation", string(req.op)),
			zap.String("tr_id", req.trID),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return nil, Envelope{}, callErr
	}

	body := resp.Body()
	env, err := decodeEnvelope(req.op, resp.StatusCode(), body)
	event := CallEvent{StatusCode: resp.StatusCode(), Latency: latency}
	switch {
	case err != nil:
		event.Outcome = Classify(err)
		event.Message = err.Error()
		c.logger.Error("券商响应无法识别",
			zap.String("operation", string(req.op)),
			zap.String("tr_id", req.trID),
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", truncate(body, 512)),
			zap.Error(err),
		)
	case !env.OK():
		event.Outcome = OutcomeBusinessError
		event.Message = env.Message
		c.logger.Warn("券商返回业务错误",
			zap.String("operation", string(req.op)),
			zap.String("tr_id", req.trID),
			zap.String("rt_cd", env.Code),
			zap.String("msg_cd", env.MessageCode),
			zap.String("msg1", env.Message),
		)
	default:
		event.Outcome = OutcomeSuccess
		event.Message = env.Message
		c.logger.Debug("券商调用完成",
			zap.String("operation", string(req.op)),
			zap.String("tr_id", req.trID),
			zap.Duration("latency", latency),
		)
	}
	c.observe(ctx, req, event)

	if err != nil {
		return nil, Envelope{}, err
	}
	return body, env, nil
}

func (c *Client) observe(ctx context.Context, req request, event CallEvent) {
	event.Operation = req.op
	event.TrID = req.trID
	c.observer.ObserveCall(ctx, event)
}

// decodeEnvelope 只解析外层信封；非 2xx 响应若带有信封，则按券商业务结果处理。
func decodeEnvelope(op Operation, status int, body []byte) (Envelope, error) {
	success := status >= http.StatusOK && status < http.StatusMultipleChoices

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if !success {
			return Envelope{}, &TransportError{Operation: op, StatusCode: status, Err: fmt.Errorf("unexpected status %d", status)}
		}
		return Envelope{}, &MalformedResponseError{Operation: op, Err: err}
	}

	if env.Code == "" {
		if !success {
			return Envelope{}, &TransportError{Operation: op, StatusCode: status, Err: fmt.Errorf("unexpected status %d", status)}
		}
		return Envelope{}, &MalformedResponseError{Operation: op, Err: errors.New("missing rt_cd")}
	}

	return env, nil
}

func maskAccount(account AccountIdentity) string {
	prefix := account.Prefix
	if len(prefix) > 4 {
		prefix = prefix[:2] + strings.Repeat("*", len(prefix)-4) + prefix[len(prefix)-2:]
	}
	return prefix + accountDelimiter + account.Suffix
}

func truncate(body []byte, limit int) []byte {
	if len(body) <= limit {
		return body
	}
	return body[:limit]
}
