package remote

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork           = errors.New("answering service unreachable")
	ErrHTTP              = errors.New("answering service returned an error status")
	ErrMalformedResponse = errors.New("malformed response from answering service")
)

// NetworkHint 无法连接回答服务时展示给用户的提示
const NetworkHint = "Unable to connect to the answering service. This might be a CORS issue, a DNS problem or the endpoint refusing connections; please try again."

// ErrorKind SendError 的分类
type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1
	KindHTTP
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// SendError 描述发送未能得到助手回复的原因
type SendError struct {
	Kind   ErrorKind
	Status int
	Body   string
	Hint   string
	Err    error
}

func (e *SendError) Error() string {
	switch e.Kind {
	case KindNetwork:
		if e.Err != nil {
			return fmt.Sprintf("network error: %v", e.Err)
		}
		return "network error"
	case KindHTTP:
		if e.Body != "" {
			return fmt.Sprintf("answering service returned %d: %s", e.Status, e.Body)
		}
		return fmt.Sprintf("answering service returned %d", e.Status)
	case KindMalformed:
		if e.Err != nil {
			return fmt.Sprintf("malformed response: %v", e.Err)
		}
		return "malformed response"
	default:
		return "send failed"
	}
}

func (e *SendError) Unwrap() error { return e.Err }

// Is 支持按错误分类匹配哨兵错误
func (e *SendError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrMalformedResponse:
		return e.Kind == KindMalformed
	}
	return false
}
