package eval

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stellarlinkco/secbench/internal/llm"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassifyStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		kind   ErrorKind
		fatal  bool
	}{
		{401, KindInvalidKey, true},
		{402, KindNoCredits, true},
		{408, KindTimeout, true},
		{429, KindRateLimited, true},
		{503, KindNoProvider, true},
		{400, KindClientError, true},
		{404, KindClientError, true},
		{500, KindTransient, false},
		{502, KindTransient, false},
		{504, KindTransient, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.kind.String(), func(t *testing.T) {
			t.Parallel()
			perr := Classify(&llm.APIError{StatusCode: tc.status})
			if perr.Kind != tc.kind {
				t.Fatalf("Classify(status %d).Kind = %v, want %v", tc.status, perr.Kind, tc.kind)
			}
			if perr.Kind.Fatal() != tc.fatal {
				t.Fatalf("Classify(status %d).Fatal() = %v, want %v", tc.status, perr.Kind.Fatal(), tc.fatal)
			}
			if perr.StatusCode != tc.status {
				t.Fatalf("StatusCode = %d, want %d", perr.StatusCode, tc.status)
			}
		})
	}
}

func TestClassifyWrappedAPIError(t *testing.T) {
	t.Parallel()

	inner := &llm.APIError{StatusCode: 429}
	perr := Classify(&ProviderError{Kind: KindTransient, Err: inner})
	if perr.Kind != KindRateLimited {
		t.Fatalf("Kind = %v, want %v", perr.Kind, KindRateLimited)
	}
}

func TestClassifyNetworkError(t *testing.T) {
	t.Parallel()

	perr := Classify(timeoutError{})
	if perr.Kind != KindTransient || perr.Kind.Fatal() {
		t.Fatalf("network error classified as %v", perr.Kind)
	}

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	perr = Classify(opErr)
	if perr.Kind != KindTransient {
		t.Fatalf("dial error classified as %v", perr.Kind)
	}
}

func TestClassifyUnknownError(t *testing.T) {
	t.Parallel()

	perr := Classify(errors.New("boom"))
	if perr.Kind != KindTransient {
		t.Fatalf("unknown error classified as %v", perr.Kind)
	}
}

func TestClassifyNil(t *testing.T) {
	t.Parallel()
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := &llm.APIError{StatusCode: 401, Message: "bad key"}
	perr := Classify(inner)

	var apiErr *llm.APIError
	if !errors.As(perr, &apiErr) {
		t.Fatal("ProviderError should unwrap to the APIError")
	}
	if apiErr.StatusCode != 401 {
		t.Fatalf("unwrapped status = %d, want 401", apiErr.StatusCode)
	}
}

func TestSleepWithContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
	if err := sleepWithContext(ctx, 0); err != nil {
		t.Fatalf("zero sleep should never block: %v", err)
	}
}
