package eval

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/stellarlinkco/secbench/internal/llm"
)

// ErrorKind categorizes a provider failure by what the caller should do
// about it. Fatal kinds abort the whole batch; transient kinds are retried.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindInvalidKey
	KindNoCredits
	KindTimeout
	KindRateLimited
	KindNoProvider
	KindClientError
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidKey:
		return "invalid_key"
	case KindNoCredits:
		return "no_credits"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindNoProvider:
		return "no_provider"
	case KindClientError:
		return "client_error"
	default:
		return "transient"
	}
}

// Fatal reports whether the kind should stop an evaluation run outright.
func (k ErrorKind) Fatal() bool {
	return k != KindTransient
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "eval: provider error <nil>"
	}
	msg := ""
	if e.Err != nil {
		msg = strings.TrimSpace(e.Err.Error())
	}
	if msg == "" {
		return fmt.Sprintf("eval: provider error (%s)", e.Kind)
	}
	return fmt.Sprintf("eval: provider error (%s): %s", e.Kind, msg)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Classify maps any error from a provider client onto an ErrorKind. Network
// failures and 5xx responses are transient; every 4xx is fatal, with the
// well-known statuses given distinct kinds.
func Classify(err error) *ProviderError {
	if err == nil {
		return nil
	}

	out := &ProviderError{Kind: KindTransient, Err: err}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		out.StatusCode = apiErr.StatusCode
		out.Kind = kindFromStatus(apiErr.StatusCode)
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return out
	}

	return out
}

func kindFromStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return KindInvalidKey
	case http.StatusPaymentRequired:
		return KindNoCredits
	case http.StatusRequestTimeout:
		return KindTimeout
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusServiceUnavailable:
		return KindNoProvider
	}
	if status >= 400 && status < 500 {
		return KindClientError
	}
	return KindTransient
}
