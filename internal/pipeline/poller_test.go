package pipeline_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"oneauth/internal/api"
	"oneauth/internal/dialog/dialogtest"
	"oneauth/internal/intent"
	"oneauth/internal/pipeline"
	"oneauth/internal/userstore"
)

// statusSequence serves one canned status response per poll, repeating the
// last. A nil entry produces a 500 to exercise the keep-polling path.
type statusSequence struct {
	mu        sync.Mutex
	responses []*api.StatusResponse
	calls     int
}

func (s *statusSequence) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls++
		var resp *api.StatusResponse
		if len(s.responses) > 0 {
			resp = s.responses[0]
			if len(s.responses) > 1 {
				s.responses = s.responses[1:]
			}
		}
		s.mu.Unlock()
		if resp == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(resp)
	})
}

func newPoller(t *testing.T, seq *statusSequence) *pipeline.Pipeline {
	t.Helper()
	server := httptest.NewServer(seq.handler())
	t.Cleanup(server.Close)
	return pipeline.New(api.New(server.URL, ""), dialogtest.NewSurface(), userstore.NewMemoryStore(), "1auth-user", pipeline.Config{
		PollInterval: 5 * time.Millisecond,
		PollAttempts: 10,
	}, nil)
}

func TestWaitForHashReturnsHash(t *testing.T) {
	seq := &statusSequence{responses: []*api.StatusResponse{
		{Status: intent.RemotePending},
		{Status: intent.RemoteClaimed},
		{Status: intent.RemoteClaimed, TxHash: "0xhash"},
	}}
	p := newPoller(t, seq)

	hash, ok := p.WaitForHash(context.Background(), "int-1", time.Second)
	if !ok || hash != "0xhash" {
		t.Fatalf("expected hash, got %q ok=%v", hash, ok)
	}
}

func TestWaitForHashSwallowsNetworkErrors(t *testing.T) {
	seq := &statusSequence{responses: []*api.StatusResponse{
		nil,
		nil,
		{Status: intent.RemoteFilled, TxHash: "0xhash"},
	}}
	p := newPoller(t, seq)

	hash, ok := p.WaitForHash(context.Background(), "int-1", time.Second)
	if !ok || hash != "0xhash" {
		t.Fatalf("transient errors must not end the wait, got %q ok=%v", hash, ok)
	}
}

func TestWaitForHashStopsOnTerminalFailure(t *testing.T) {
	seq := &statusSequence{responses: []*api.StatusResponse{
		{Status: intent.RemotePending},
		{Status: intent.RemoteFailed},
	}}
	p := newPoller(t, seq)

	_, ok := p.WaitForHash(context.Background(), "int-1", time.Second)
	if ok {
		t.Fatalf("a failed intent never yields a hash")
	}
	seq.mu.Lock()
	calls := seq.calls
	seq.mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected polling to stop at the failure, got %d calls", calls)
	}
}

func TestWaitForHashTimesOut(t *testing.T) {
	seq := &statusSequence{responses: []*api.StatusResponse{
		{Status: intent.RemotePending},
	}}
	p := newPoller(t, seq)

	start := time.Now()
	_, ok := p.WaitForHash(context.Background(), "int-1", 40*time.Millisecond)
	if ok {
		t.Fatalf("expected timeout")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout overshot the bound")
	}
}

func TestWaitForHashHonorsContext(t *testing.T) {
	seq := &statusSequence{responses: []*api.StatusResponse{
		{Status: intent.RemotePending},
	}}
	p := newPoller(t, seq)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, ok := p.WaitForHash(ctx, "int-1", time.Minute)
	if ok {
		t.Fatalf("cancelled context must end the wait")
	}
}
