package kis

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// tokenSafetyMargin 提前于到期时间刷新令牌。
const tokenSafetyMargin = 60 * time.Second

// credential 整体替换，不做局部修改。
type credential struct {
	token    string
	issuedAt time.Time
	ttl      time.Duration
}

func (c *credential) validAt(now time.Time) bool {
	if c == nil || c.token == "" {
		return false
	}
	return now.Before(c.issuedAt.Add(c.ttl - tokenSafetyMargin))
}

// TokenManager 缓存访问令牌，并保证同一过期时刻只发起一次签发。
type TokenManager struct {
	http      *resty.Client
	appKey    string
	appSecret string
	now       func() time.Time
	observer  Observer
	logger    *zap.Logger

	// issuing 为单槽信号量，持有者独占签发；等待方可随 ctx 取消退出。
	issuing chan struct{}

	mu      sync.Mutex
	current *credential
}

func newTokenManager(http *resty.Client, appKey, appSecret string, now func() time.Time, observer Observer, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		http:      http,
		appKey:    appKey,
		appSecret: appSecret,
		now:       now,
		observer:  observer,
		logger:    logger,
		issuing:   make(chan struct{}, 1),
	}
}

// Token 返回有效的访问令牌，必要时先签发新令牌。
// 签发由单槽信号量串行化，取得信号量后再次检查缓存，并发调用方只会触发一次签发。
// 签发事件在释放信号量之后上报。
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	select {
	case m.issuing <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if token, ok := m.cached(); ok {
		<-m.issuing
		return token, nil
	}

	cred, event, err := m.issue(ctx)
	if err == nil {
		m.mu.Lock()
		m.current = cred
		m.mu.Unlock()
	}
	<-m.issuing

	m.observer.ObserveCall(ctx, event)

	if err != nil {
		return "", err
	}
	return cred.token, nil
}

func (m *TokenManager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.validAt(m.now()) {
		return m.current.token, true
	}
	return "", false
}

// ExpiresAt 返回当前令牌被视为失效的时间点，尚未签发时返回零值。
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return time.Time{}
	}
	return m.current.issuedAt.Add(m.current.ttl - tokenSafetyMargin)
}

func (m *TokenManager) issue(ctx context.Context) (*credential, CallEvent, error) {
	m.logger.Info("签发新的访问令牌")

	start := time.Now()
	resp, err := m.http.R().
		SetContext(ctx).
		SetHeader("content-type", jsonContentType).
		SetBody(tokenRequest{
			GrantType: "client_credentials",
			AppKey:    m.appKey,
			AppSecret: m.appSecret,
		}).
		Post(tokenPath)
	latency := time.Since(start)

	cred, issueErr := m.parse(resp, err)

	event := CallEvent{
		Operation: OpIssueToken,
		Outcome:   Classify(issueErr),
		Latency:   latency,
	}
	if resp != nil {
		event.StatusCode = resp.StatusCode()
	}
	if issueErr != nil {
		event.Message = issueErr.Error()
		m.logger.Error("访问令牌签发失败", zap.Error(issueErr), zap.Duration("latency", latency))
	} else {
		m.logger.Info("访问令牌签发成功",
			zap.Duration("ttl", cred.ttl),
			zap.Duration("latency", latency),
		)
	}

	return cred, event, issueErr
}

func (m *TokenManager) parse(resp *resty.Response, err error) (*credential, error) {
	if err != nil {
		return nil, &CredentialIssuanceError{Reason: "请求失败", Err: err}
	}

	var body tokenResponse
	decodeErr := json.Unmarshal(resp.Body(), &body)

	if !resp.IsSuccess() {
		reason := strings.TrimSpace(body.ErrorDescription)
		if decodeErr != nil || reason == "" {
			reason = "券商拒绝签发"
		}
		return nil, &CredentialIssuanceError{
			Reason:     reason,
			Code:       strings.TrimSpace(body.ErrorCode),
			StatusCode: resp.StatusCode(),
		}
	}
	if decodeErr != nil {
		return nil, &CredentialIssuanceError{
			Reason:     "响应无法解析",
			StatusCode: resp.StatusCode(),
			Err:        decodeErr,
		}
	}

	if strings.TrimSpace(body.AccessToken) == "" {
		return nil, &CredentialIssuanceError{Reason: "响应缺少 access_token", StatusCode: resp.StatusCode()}
	}
	if body.ExpiresIn <= 0 {
		return nil, &CredentialIssuanceError{Reason: "响应缺少有效的 expires_in", StatusCode: resp.StatusCode()}
	}

	return &credential{
		token:    body.AccessToken,
		issuedAt: m.now(),
		ttl:      time.Duration(body.ExpiresIn) * time.Second,
	}, nil
}
