package routing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/boatwatch/internal/infra/rpc/provider"
)

type fakeProvider struct {
	name      string
	mu        sync.Mutex
	calls     int
	errs      []error
	result    json.RawMessage
	available bool
}

func newFakeProvider(name string, result string, errs ...error) *fakeProvider {
	return &fakeProvider{name: name, result: json.RawMessage(result), errs: errs, available: true}
}

func (f *fakeProvider) GetName() string                  { return f.name }
func (f *fakeProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{Available: f.available} }
func (f *fakeProvider) IsAvailable() bool                { return f.available }
func (f *fakeProvider) Close() error                     { return nil }

func (f *fakeProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.result, nil
}

var fastRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiple: 2}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{errors.New("429 Too Many Requests"), ActionFailover},
		{errors.New("project rate limit exceeded"), ActionFailover},
		{errors.New("quota exceeded"), ActionFailover},
		{errors.New("daily request count exceeded"), ActionFailover},
		{errors.New("403 Forbidden"), ActionFailover},
		{errors.New("Invalid JSON-RPC request -32600"), ActionFatal},
		{errors.New("Method not found -32601"), ActionFatal},
		{errors.New("Parse error -32700"), ActionFatal},
		{&provider.RPCError{Code: -32602, Message: "invalid params"}, ActionFatal},
		{&provider.RPCError{Code: -32005, Message: "limit exceeded"}, ActionFailover},
		{&provider.RPCError{Code: 3, Message: "execution reverted"}, ActionFatal},
		{&provider.RPCError{Code: -32000, Message: "header not found"}, ActionRetry},
		{context.Canceled, ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
		{errors.New("500 Internal Server Error"), ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestCallWithRetry_RecoversFromTransient(t *testing.T) {
	p := newFakeProvider("a", `"0x1"`, errors.New("connection reset"), errors.New("eof"))

	result, err := CallWithRetry(context.Background(), p, "eth_blockNumber", nil, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `"0x1"` {
		t.Errorf("unexpected result %s", result)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
}

func TestCallWithRetry_FatalStopsImmediately(t *testing.T) {
	p := newFakeProvider("a", `"0x1"`, &provider.RPCError{Code: -32602, Message: "bad"})

	if _, err := CallWithRetry(context.Background(), p, "eth_getLogs", nil, fastRetry); err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestCallWithRetryAndFailover(t *testing.T) {
	throttled := newFakeProvider("throttled", "", errors.New("429 Too Many Requests"))
	healthy := newFakeProvider("healthy", `"0x2"`)

	r := NewRouter()
	r.AddProvider(throttled)
	r.AddProvider(healthy)

	result, err := CallWithRetryAndFailover(context.Background(), r, "eth_blockNumber", nil, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `"0x2"` {
		t.Errorf("unexpected result %s", result)
	}
	if throttled.calls != 1 {
		t.Errorf("throttled provider should be tried once, got %d", throttled.calls)
	}
}

func TestCallWithRetryAndFailover_AllFail(t *testing.T) {
	r := NewRouter()
	r.AddProvider(newFakeProvider("a", "", errors.New("403 Forbidden")))
	r.AddProvider(newFakeProvider("b", "", errors.New("429 Too Many Requests")))

	if _, err := CallWithRetryAndFailover(context.Background(), r, "eth_blockNumber", nil, fastRetry); err == nil {
		t.Fatal("expected error")
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2}

	if d := CalculateBackoff(0, cfg); d != 100*time.Millisecond {
		t.Errorf("attempt 0: got %v", d)
	}
	if d := CalculateBackoff(2, cfg); d != 400*time.Millisecond {
		t.Errorf("attempt 2: got %v", d)
	}
	if d := CalculateBackoff(10, cfg); d != time.Second {
		t.Errorf("attempt 10 should cap: got %v", d)
	}

	cfg.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := CalculateBackoff(1, cfg)
		if d < 100*time.Millisecond || d > 300*time.Millisecond {
			t.Fatalf("jittered delay out of bounds: %v", d)
		}
	}
}
