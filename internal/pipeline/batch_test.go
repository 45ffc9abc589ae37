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
	"oneauth/internal/dialog"
	"oneauth/internal/dialog/dialogtest"
	"oneauth/internal/intent"
	"oneauth/internal/pipeline"
	"oneauth/internal/userstore"
)

type stubBatchAPI struct {
	mu           sync.Mutex
	prepareCalls int
	resp         api.BatchPrepareResponse
}

func (s *stubBatchAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/intent/batch-prepare", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.prepareCalls++
		resp := s.resp
		s.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newBatchPipeline(t *testing.T, stub *stubBatchAPI, surface dialog.Surface) *pipeline.Pipeline {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)
	return pipeline.New(api.New(server.URL, "client-1"), surface, userstore.NewMemoryStore(), "1auth-user", pipeline.Config{
		DialogURL:    "https://id.example.com",
		PollInterval: 5 * time.Millisecond,
		PollAttempts: 10,
	}, nil)
}

func batchOpts() pipeline.BatchOptions {
	return pipeline.BatchOptions{
		Username: "alice",
		Entries: []pipeline.BatchEntry{
			{TargetChain: 8453, Calls: []intent.Call{{To: "0xAbC0000000000000000000000000000000000001"}}},
			{TargetChain: 10, Calls: []intent.Call{{To: "0xAbC0000000000000000000000000000000000002"}}},
		},
	}
}

func preparedEntries() []api.PrepareResponse {
	return []api.PrepareResponse{
		{OperationID: "op-1", Challenge: "c-1"},
		{OperationID: "op-2", Challenge: "c-2"},
	}
}

func batchScript(result dialog.ResultPayload, finalStatus string, captureInit *dialog.Envelope) dialogtest.Script {
	return func(f *dialogtest.Frame) {
		f.Send(dialog.TypeReady, nil)
		env, ok := f.WaitFor(dialog.TypeInit)
		if !ok {
			return
		}
		if captureInit != nil {
			*captureInit = env
		}
		f.Send(dialog.TypeResult, result)
		if _, ok := f.WaitForStatus(finalStatus); ok {
			f.Send(dialog.TypeClose, nil)
		}
	}
}

func TestSendBatchAllSucceed(t *testing.T) {
	stub := &stubBatchAPI{resp: api.BatchPrepareResponse{
		Entries:         preparedEntries(),
		SharedChallenge: "shared-1",
	}}
	var initEnv dialog.Envelope
	surface := dialogtest.NewSurface(batchScript(dialog.ResultPayload{
		Success: true,
		Results: []dialog.BatchItem{
			{Index: 0, Success: true, IntentID: "int-0", TxHash: "0xa"},
			{Index: 1, Success: true, IntentID: "int-1", TxHash: "0xb"},
		},
	}, "confirmed", &initEnv))
	p := newBatchPipeline(t, stub, surface)

	res, err := p.SendBatch(context.Background(), batchOpts())
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if !res.Success || res.SuccessCount != 2 || res.FailureCount != 0 {
		t.Fatalf("expected full success, got %+v", res)
	}
	if res.Results[1].IntentID != "int-1" || res.Results[1].TxHash != "0xb" {
		t.Fatalf("unexpected per-index result: %+v", res.Results[1])
	}

	var init struct {
		SharedChallenge string `json:"sharedChallenge"`
		Intents         []struct {
			Challenge string `json:"challenge"`
		} `json:"intents"`
	}
	if err := json.Unmarshal(initEnv.Payload, &init); err != nil {
		t.Fatalf("decode init: %v", err)
	}
	if init.SharedChallenge != "shared-1" || len(init.Intents) != 2 || init.Intents[1].Challenge != "c-2" {
		t.Fatalf("unexpected batch init payload: %+v", init)
	}
}

func TestSendBatchPartialFailure(t *testing.T) {
	stub := &stubBatchAPI{resp: api.BatchPrepareResponse{
		Entries:         preparedEntries(),
		SharedChallenge: "shared-1",
	}}
	surface := dialogtest.NewSurface(batchScript(dialog.ResultPayload{
		Success: true,
		Results: []dialog.BatchItem{
			{Index: 0, Success: true, IntentID: "int-0", TxHash: "0xa"},
			{Index: 1, Success: false, TxHash: "0xb", Error: &dialog.ResultError{Code: intent.CodeExecuteFailed, Message: "slippage"}},
		},
	}, "failed", nil))
	p := newBatchPipeline(t, stub, surface)

	res, err := p.SendBatch(context.Background(), batchOpts())
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if res.Success {
		t.Fatalf("a single failed item must fail the batch")
	}
	if res.SuccessCount != 1 || res.FailureCount != 1 {
		t.Fatalf("counts must always sum to the entry count, got %+v", res)
	}
	failed := res.Results[1]
	if failed.Error == nil || failed.Error.Code != intent.CodeExecuteFailed {
		t.Fatalf("expected per-index error, got %+v", failed)
	}
	if failed.TxHash != "" {
		t.Fatalf("failed item must not expose a transaction hash")
	}
}

func TestSendBatchMissingIndexReported(t *testing.T) {
	stub := &stubBatchAPI{resp: api.BatchPrepareResponse{
		Entries:         preparedEntries(),
		SharedChallenge: "shared-1",
	}}
	surface := dialogtest.NewSurface(batchScript(dialog.ResultPayload{
		Success: true,
		Results: []dialog.BatchItem{{Index: 0, Success: true, IntentID: "int-0"}},
	}, "failed", nil))
	p := newBatchPipeline(t, stub, surface)

	res, err := p.SendBatch(context.Background(), batchOpts())
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if res.SuccessCount+res.FailureCount != 2 {
		t.Fatalf("every slot must be accounted for, got %+v", res)
	}
	if res.Results[1].Error == nil {
		t.Fatalf("unreported slot must carry an error")
	}
}

func TestSendBatchComputesSharedChallengeFallback(t *testing.T) {
	stub := &stubBatchAPI{resp: api.BatchPrepareResponse{
		Entries: preparedEntries(),
	}}
	var initEnv dialog.Envelope
	surface := dialogtest.NewSurface(batchScript(dialog.ResultPayload{
		Success: true,
		Results: []dialog.BatchItem{
			{Index: 0, Success: true},
			{Index: 1, Success: true},
		},
	}, "confirmed", &initEnv))
	p := newBatchPipeline(t, stub, surface)

	if _, err := p.SendBatch(context.Background(), batchOpts()); err != nil {
		t.Fatalf("send batch: %v", err)
	}

	var init struct {
		SharedChallenge string `json:"sharedChallenge"`
	}
	if err := json.Unmarshal(initEnv.Payload, &init); err != nil {
		t.Fatalf("decode init: %v", err)
	}
	want := intent.BatchCommitment([]string{"c-1", "c-2"})
	if init.SharedChallenge != want {
		t.Fatalf("expected keccak commitment %s, got %s", want, init.SharedChallenge)
	}
}

func TestSendBatchValidation(t *testing.T) {
	stub := &stubBatchAPI{}
	p := newBatchPipeline(t, stub, dialogtest.NewSurface())

	res, err := p.SendBatch(context.Background(), pipeline.BatchOptions{Username: "alice"})
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if res.Success || len(res.Results) != 0 {
		t.Fatalf("empty batch must fail with no slots, got %+v", res)
	}

	opts := batchOpts()
	opts.Entries[1].Calls = nil
	res, err = p.SendBatch(context.Background(), opts)
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if res.FailureCount != 2 {
		t.Fatalf("validation failures fill every slot, got %+v", res)
	}
	if res.Results[0].Error == nil || res.Results[0].Error.Code != intent.CodeInvalidOptions {
		t.Fatalf("expected INVALID_OPTIONS, got %+v", res.Results[0].Error)
	}
	stub.mu.Lock()
	calls := stub.prepareCalls
	stub.mu.Unlock()
	if calls != 0 {
		t.Fatalf("invalid batches must fail before any network call")
	}
}
