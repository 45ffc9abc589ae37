package pipeline

import (
	"context"

	"oneauth/internal/api"
	"oneauth/internal/dialog"
	"oneauth/internal/intent"
)

// BatchEntry is one intent in a batch set.
type BatchEntry struct {
	TargetChain   int64
	Calls         []intent.Call
	TokenRequests []intent.TokenRequest
}

// BatchOptions describes a batch of intents sharing one signing ceremony.
type BatchOptions struct {
	Username       string
	AccountAddress string
	Entries        []BatchEntry
	Mode           dialog.Mode
}

// BatchItemResult is one per-index outcome. Items succeed or fail
// independently after the shared signature step.
type BatchItemResult struct {
	Index    int
	Success  bool
	IntentID string
	TxHash   string
	Error    *intent.Error
}

// BatchResult aggregates the per-item outcomes. Success is true iff no item
// failed; the detail is never collapsed into the single boolean.
type BatchResult struct {
	Success      bool
	Results      []BatchItemResult
	SuccessCount int
	FailureCount int
}

func batchFailed(n int, err error) *BatchResult {
	ie, ok := err.(*intent.Error)
	if !ok {
		ie = intent.E(intent.CodeUnknown, "%v", err)
	}
	out := &BatchResult{Results: make([]BatchItemResult, n), FailureCount: n}
	for i := range out.Results {
		out.Results[i] = BatchItemResult{Index: i, Error: ie}
	}
	return out
}

type batchInitPayload struct {
	SessionID       string        `json:"sessionId"`
	Intents         []initPayload `json:"intents"`
	SharedChallenge string        `json:"sharedChallenge"`
	AccountAddress  string        `json:"accountAddress,omitempty"`
	UserID          string        `json:"userId,omitempty"`
	ExpiresAt       int64         `json:"expiresAt,omitempty"`
}

// SendBatch signs N intents with a single passkey ceremony over a shared
// challenge. The hosted UI executes every intent server-side and reports all
// per-index results in one message; there is no per-intent execute call.
func (p *Pipeline) SendBatch(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	n := len(opts.Entries)
	if n == 0 {
		return batchFailed(0, intent.E(intent.CodeInvalidOptions, "batch is empty")), nil
	}
	if opts.Username == "" && opts.AccountAddress == "" {
		return batchFailed(n, intent.E(intent.CodeInvalidOptions, "username or account address is required")), nil
	}
	for i, e := range opts.Entries {
		if e.TargetChain <= 0 {
			return batchFailed(n, intent.E(intent.CodeInvalidOptions, "entry %d: target chain is required", i)), nil
		}
		if len(e.Calls) == 0 {
			return batchFailed(n, intent.E(intent.CodeInvalidOptions, "entry %d: at least one call is required", i)), nil
		}
	}

	prepareBody := api.BatchPrepareRequest{
		Username:       opts.Username,
		AccountAddress: opts.AccountAddress,
		Intents:        make([]api.PrepareRequest, n),
	}
	for i, e := range opts.Entries {
		prepareBody.Intents[i] = api.PrepareRequest{
			Username:       opts.Username,
			AccountAddress: opts.AccountAddress,
			TargetChain:    e.TargetChain,
			Calls:          intent.NormalizeCalls(e.Calls),
			TokenRequests:  e.TokenRequests,
		}
	}

	prepared, err := p.api.BatchPrepare(ctx, prepareBody)
	if err != nil {
		p.metrics.incIntent("prepare_failed")
		return batchFailed(n, p.mapPrepareError(ctx, err)), nil
	}
	if len(prepared.Entries) != n {
		return batchFailed(n, intent.E(intent.CodePrepareFailed, "server prepared %d of %d intents", len(prepared.Entries), n)), nil
	}

	shared := prepared.SharedChallenge
	if shared == "" {
		challenges := make([]string, n)
		for i, e := range prepared.Entries {
			challenges[i] = e.Challenge
		}
		shared = intent.BatchCommitment(challenges)
	}

	mode := opts.Mode
	if mode == "" {
		mode = dialog.ModeFrame
	}
	session, err := dialog.Open(ctx, p.surface, p.cfg.DialogURL, dialog.FlowSign, mode, dialog.Options{
		OnDisconnect: func() { p.clearStoredUser(ctx) },
	})
	if err != nil {
		return batchFailed(n, intent.E(intent.CodePopupBlocked, "open dialog: %v", err)), nil
	}
	p.metrics.sessionOpened()
	defer p.metrics.sessionClosed()
	defer session.Cleanup()

	init := batchInitPayload{
		SessionID:       session.Token(),
		Intents:         make([]initPayload, n),
		SharedChallenge: shared,
		AccountAddress:  prepared.AccountAddress,
		UserID:          prepared.UserID,
		ExpiresAt:       prepared.ExpiresAt,
	}
	for i, e := range prepared.Entries {
		init.Intents[i] = initPayload{
			Calls:         prepareBody.Intents[i].Calls,
			TokenRequests: prepareBody.Intents[i].TokenRequests,
			Chain:         opts.Entries[i].TargetChain,
			Challenge:     e.Challenge,
			OperationID:   e.OperationID,
			Quote:         e.Quote,
			Breakdown:     e.Breakdown,
			ExpiresAt:     e.ExpiresAt,
		}
	}

	ready, err := session.AwaitReady(ctx, init)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return batchFailed(n, intent.E(intent.CodeNetworkError, "handshake: %v", err)), nil
	}
	if !ready {
		p.metrics.incSession(string(dialog.FlowSign), "cancelled")
		return batchFailed(n, intent.E(intent.CodeUserRejected, "dialog closed before signing")), nil
	}

	res, err := session.AwaitResult(ctx, dialog.ResultOptions{
		Refresh: func(ctx context.Context) (any, error) {
			return p.api.BatchPrepare(ctx, prepareBody)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.metrics.incSession(string(dialog.FlowSign), "rejected")
		return batchFailed(n, err), nil
	}
	p.metrics.incSession(string(dialog.FlowSign), "signed")

	out := &BatchResult{Results: make([]BatchItemResult, n)}
	for i := range out.Results {
		out.Results[i] = BatchItemResult{
			Index: i,
			Error: intent.E(intent.CodeUnknown, "no result reported for index %d", i),
		}
	}
	for _, item := range res.Results {
		if item.Index < 0 || item.Index >= n {
			continue
		}
		r := BatchItemResult{Index: item.Index, Success: item.Success, IntentID: item.IntentID, TxHash: item.TxHash}
		if !item.Success {
			code, msg := intent.CodeExecuteFailed, "execution failed"
			if item.Error != nil && item.Error.Code != "" {
				code, msg = item.Error.Code, item.Error.Message
			}
			r.Error = intent.E(code, "%s", msg)
			r.TxHash = ""
		}
		out.Results[r.Index] = r
	}
	for _, r := range out.Results {
		if r.Success {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}
	out.Success = out.FailureCount == 0

	display := "failed"
	if out.Success {
		display = "confirmed"
	}
	session.PostTxStatus("", display, "")
	if err := session.AwaitClose(ctx); err != nil {
		return nil, err
	}

	if out.Success {
		p.metrics.incIntent("batch_settled")
	} else {
		p.metrics.incIntent("batch_unsettled")
	}
	return out, nil
}
