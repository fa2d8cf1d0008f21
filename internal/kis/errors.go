package kis

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialIssuance 表示访问令牌签发失败，调用方无法继续本次请求。
	ErrCredentialIssuance = errors.New("kis: access token issuance failed")
)

// CredentialIssuanceError 描述令牌签发失败的原因。
type CredentialIssuanceError struct {
	Reason     string
	Code       string
	StatusCode int
	Err        error
}

func (e *CredentialIssuanceError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrCredentialIssuance.Error(), e.Reason)
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CredentialIssuanceError) Unwrap() error { return e.Err }

func (e *CredentialIssuanceError) Is(target error) bool {
	return target == ErrCredentialIssuance
}

// BusinessError 表示券商返回 rt_cd 非成功值，Error() 即券商给出的提示信息。
type BusinessError struct {
	Operation   Operation
	TrID        string
	Code        string
	MessageCode string
	Message     string
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("kis: %s rejected with rt_cd=%s msg_cd=%s", e.Operation, e.Code, e.MessageCode)
	}
	return e.Message
}

// TransportError 表示网络失败或无法识别的非 2xx 响应。
type TransportError struct {
	Operation  Operation
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("kis: %s transport failure (status %d): %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("kis: %s transport failure: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError 表示响应体无法按信封结构解析。
type MalformedResponseError struct {
	Operation Operation
	Err       error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("kis: %s malformed response: %v", e.Operation, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Classify 把错误归入调用结果分类，用于日志与审计。
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	var (
		credErr      *CredentialIssuanceError
		businessErr  *BusinessError
		transportErr *TransportError
		malformedErr *MalformedResponseError
	)

	switch {
	case errors.As(err, &credErr):
		return OutcomeCredentialError
	case errors.As(err, &businessErr):
		return OutcomeBusinessError
	case errors.As(err, &malformedErr):
		return OutcomeMalformedResponse
	case errors.As(err, &transportErr):
		return OutcomeTransportError
	default:
		return OutcomeUnknown
	}
}
