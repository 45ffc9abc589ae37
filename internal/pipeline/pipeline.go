package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"oneauth/internal/api"
	"oneauth/internal/dialog"
	"oneauth/internal/intent"
	"oneauth/internal/userstore"
)

// Config bounds the pipeline's polling behavior. The interval and attempt
// cap directly determine user-visible latency, so they are explicit
// configuration rather than hidden constants.
type Config struct {
	DialogURL    string
	PollInterval time.Duration
	PollAttempts int
}

// Pipeline orchestrates prepare, sign, execute, and poll-to-completion for
// blockchain intents.
type Pipeline struct {
	api        *api.Client
	surface    dialog.Surface
	store      userstore.Store
	storageKey string
	cfg        Config
	metrics    *Metrics
}

func New(apiClient *api.Client, surface dialog.Surface, store userstore.Store, storageKey string, cfg Config, metrics *Metrics) *Pipeline {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 120
	}
	return &Pipeline{
		api:        apiClient,
		surface:    surface,
		store:      store,
		storageKey: storageKey,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// IntentOptions describes one intent to run through the pipeline.
type IntentOptions struct {
	// Signed, when set, is used as the prepare body as-is.
	Signed *intent.Signed

	Username       string
	AccountAddress string
	TargetChain    int64
	Calls          []intent.Call
	TokenRequests  []intent.TokenRequest
	SourceAssets   []string

	// CloseOn is the remote status level that counts as success. Defaults
	// to completed.
	CloseOn intent.CloseOn

	// WaitForHash blocks the call until a transaction hash is known,
	// bounded by HashTimeout. Timing out converts the result to failed.
	WaitForHash bool
	HashTimeout time.Duration

	Mode dialog.Mode
}

// IntentResult is the terminal outcome of one pipeline run.
type IntentResult struct {
	Success  bool
	IntentID string
	TxHash   string
	Status   intent.LocalStatus
	Error    *intent.Error
}

func failed(err error) *IntentResult {
	ie, ok := err.(*intent.Error)
	if !ok {
		ie = intent.E(intent.CodeUnknown, "%v", err)
	}
	return &IntentResult{Success: false, Status: intent.StatusFailed, Error: ie}
}

// initPayload is the data pushed into the dialog on ready.
type initPayload struct {
	SessionID      string                `json:"sessionId"`
	Calls          []intent.Call         `json:"calls"`
	TokenRequests  []intent.TokenRequest `json:"tokenRequests,omitempty"`
	Chain          int64                 `json:"chain"`
	Challenge      string                `json:"challenge"`
	AccountAddress string                `json:"accountAddress,omitempty"`
	UserID         string                `json:"userId,omitempty"`
	OperationID    string                `json:"operationId"`
	ExpiresAt      int64                 `json:"expiresAt,omitempty"`
	Quote          string                `json:"quote,omitempty"`
	Breakdown      []api.BreakdownLine   `json:"breakdown,omitempty"`
}

// displayCalls resolves the calls the hosted UI renders. A caller-supplied
// signed intent carries its own call set; the raw path uses the prepare body.
func displayCalls(opts IntentOptions, prepareBody api.PrepareRequest) ([]intent.Call, []intent.TokenRequest) {
	if opts.Signed != nil {
		return opts.Signed.Calls, opts.Signed.TokenRequests
	}
	return prepareBody.Calls, prepareBody.TokenRequests
}

// SendIntent runs one intent through prepare, sign, execute, and
// poll-to-completion. Protocol-level failures are reported in the result;
// the error return is reserved for context cancellation.
func (p *Pipeline) SendIntent(ctx context.Context, opts IntentOptions) (*IntentResult, error) {
	if err := validateOptions(opts); err != nil {
		p.metrics.incIntent("invalid")
		return failed(err), nil
	}
	closeOn := opts.CloseOn
	if closeOn == "" {
		closeOn = intent.CloseOnCompleted
	}

	prepareBody := buildPrepareRequest(opts)
	prepared, err := p.api.PrepareIntent(ctx, prepareBody)
	if err != nil {
		p.metrics.incIntent("prepare_failed")
		return failed(p.mapPrepareError(ctx, err)), nil
	}

	mode := opts.Mode
	if mode == "" {
		mode = dialog.ModeFrame
	}
	session, err := dialog.Open(ctx, p.surface, p.cfg.DialogURL, dialog.FlowSign, mode, dialog.Options{
		OnDisconnect: func() { p.clearStoredUser(ctx) },
	})
	if err != nil {
		p.metrics.incIntent("open_failed")
		return failed(intent.E(intent.CodePopupBlocked, "open dialog: %v", err)), nil
	}
	p.metrics.sessionOpened()
	defer p.metrics.sessionClosed()
	defer session.Cleanup()

	calls, tokenRequests := displayCalls(opts, prepareBody)
	ready, err := session.AwaitReady(ctx, initPayload{
		SessionID:      session.Token(),
		Calls:          calls,
		TokenRequests:  tokenRequests,
		Chain:          chainOf(opts),
		Challenge:      prepared.Challenge,
		AccountAddress: prepared.AccountAddress,
		UserID:         prepared.UserID,
		OperationID:    prepared.OperationID,
		ExpiresAt:      prepared.ExpiresAt,
		Quote:          prepared.Quote,
		Breakdown:      prepared.Breakdown,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.metrics.incIntent("handshake_failed")
		return failed(intent.E(intent.CodeNetworkError, "handshake: %v", err)), nil
	}
	if !ready {
		p.metrics.incSession(string(dialog.FlowSign), "cancelled")
		p.metrics.incIntent("cancelled")
		return failed(intent.E(intent.CodeUserRejected, "dialog closed before signing")), nil
	}

	res, err := session.AwaitResult(ctx, dialog.ResultOptions{
		Refresh: func(ctx context.Context) (any, error) {
			return p.api.PrepareIntent(ctx, prepareBody)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.metrics.incSession(string(dialog.FlowSign), "rejected")
		p.metrics.incIntent("rejected")
		return failed(err), nil
	}
	p.metrics.incSession(string(dialog.FlowSign), "signed")

	intentID, current, txHash, execErr := p.execute(ctx, session, prepared.OperationID, res)
	if execErr != nil {
		p.metrics.incIntent("execute_failed")
		return failed(execErr), nil
	}

	current, txHash = p.pollToCompletion(ctx, session, intentID, current, txHash, closeOn)

	display := strings.ToLower(string(current))
	if closeOn.SatisfiedBy(current) {
		display = "confirmed"
	}
	session.PostTxStatus(intentID, display, txHash)
	if err := session.AwaitClose(ctx); err != nil {
		return nil, err
	}

	result := &IntentResult{
		IntentID: intentID,
		TxHash:   txHash,
		Success:  closeOn.SatisfiedBy(current),
	}
	switch {
	case result.Success:
		result.Status = intent.StatusCompleted
	case current == intent.RemoteFailed:
		result.Status = intent.StatusFailed
		result.TxHash = ""
		result.Error = intent.E(intent.CodeStatusFailed, "intent failed")
	case current == intent.RemoteExpired:
		result.Status = intent.StatusExpired
		result.Error = intent.E(intent.CodeExpired, "intent expired")
	default:
		// Poll bound exhausted: degrade to last known status.
		result.Status = intent.StatusSubmitted
	}

	if opts.WaitForHash && result.TxHash == "" && result.Status != intent.StatusFailed {
		timeout := opts.HashTimeout
		if timeout <= 0 {
			timeout = time.Duration(p.cfg.PollAttempts) * p.cfg.PollInterval
		}
		hash, ok := p.WaitForHash(ctx, intentID, timeout)
		if !ok {
			p.metrics.incIntent("hash_timeout")
			return &IntentResult{
				IntentID: intentID,
				Success:  false,
				Status:   intent.StatusFailed,
				Error:    intent.E(intent.CodeHashTimeout, "no transaction hash within %s", timeout),
			}, nil
		}
		result.TxHash = hash
	}

	if result.Success {
		p.metrics.incIntent("settled")
	} else {
		p.metrics.incIntent("unsettled")
	}
	return result, nil
}

// execute resolves the intent ID after signing. Fast path: the hosted UI
// already executed server-side and sent the ID. Slow path: call the execute
// endpoint with the signature. A slow-path failure notifies the UI and waits
// for close so the dialog is never left showing a stale processing state.
func (p *Pipeline) execute(ctx context.Context, session *dialog.Session, operationID string, res *dialog.ResultPayload) (string, intent.RemoteStatus, string, error) {
	if res.IntentID != "" {
		return res.IntentID, intent.RemotePending, res.TxHash, nil
	}

	exec, err := p.api.ExecuteIntent(ctx, api.ExecuteRequest{
		OperationID: operationID,
		Signature:   res.Signature,
	})
	if err != nil {
		session.PostTxStatus("", "failed", "")
		if closeErr := session.AwaitClose(ctx); closeErr != nil {
			log.Printf("intent execute: close wait: %v", closeErr)
		}
		return "", "", "", intent.E(intent.CodeExecuteFailed, "execute intent: %v", err)
	}
	status := exec.Status
	if status == "" {
		status = intent.RemotePending
	}
	return exec.IntentID, status, exec.TxHash, nil
}

// pollToCompletion drives the bounded status poll, pushing a status-changed
// notification into the session on every observed transition, in order and
// only on change.
func (p *Pipeline) pollToCompletion(ctx context.Context, session *dialog.Session, intentID string, current intent.RemoteStatus, txHash string, closeOn intent.CloseOn) (intent.RemoteStatus, string) {
	if current.Terminal() || closeOn.SatisfiedBy(current) {
		return current, txHash
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < p.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return current, txHash
		case <-ticker.C:
		}

		st, err := p.api.IntentStatus(ctx, intentID)
		p.metrics.incPoll()
		if err != nil {
			// Transient poll errors are retried up to the bound.
			continue
		}
		if st.TxHash != "" {
			txHash = st.TxHash
		}
		if st.Status != current {
			current = st.Status
			session.PostTxStatus(intentID, strings.ToLower(string(current)), txHash)
		}
		if current.Terminal() || closeOn.SatisfiedBy(current) {
			return current, txHash
		}
	}
	return current, txHash
}

func (p *Pipeline) mapPrepareError(ctx context.Context, err error) *intent.Error {
	if intent.CodeOf(err) == intent.CodeUserNotFound {
		// Clear the stored user so the next call re-authenticates instead
		// of looping on a dead record.
		p.clearStoredUser(ctx)
		return intent.E(intent.CodeUserNotFound, "%v", errMessage(err))
	}
	if ie, ok := err.(*intent.Error); ok && ie.Code == intent.CodeNetworkError {
		return ie
	}
	return intent.E(intent.CodePrepareFailed, "%v", errMessage(err))
}

func (p *Pipeline) clearStoredUser(ctx context.Context) {
	if p.store == nil {
		return
	}
	if err := p.store.Delete(ctx, p.storageKey); err != nil {
		log.Printf("stored user delete: %v", err)
	}
}

func errMessage(err error) string {
	if ie, ok := err.(*intent.Error); ok {
		return ie.Message
	}
	return err.Error()
}

func validateOptions(opts IntentOptions) error {
	if !intent.ValidCloseOn(opts.CloseOn) {
		return intent.E(intent.CodeInvalidOptions, "unknown closeOn %q", opts.CloseOn)
	}
	if opts.Signed != nil {
		if opts.Signed.DeveloperID == "" {
			return intent.E(intent.CodeInvalidOptions, "signed intent missing developer id")
		}
		return nil
	}
	if opts.Username == "" && opts.AccountAddress == "" {
		return intent.E(intent.CodeInvalidOptions, "username or account address is required")
	}
	if opts.TargetChain <= 0 {
		return intent.E(intent.CodeInvalidOptions, "target chain is required")
	}
	if len(opts.Calls) == 0 {
		return intent.E(intent.CodeInvalidOptions, "at least one call is required")
	}
	return nil
}

func buildPrepareRequest(opts IntentOptions) api.PrepareRequest {
	if opts.Signed != nil {
		return api.PrepareRequest{Signed: opts.Signed}
	}
	return api.PrepareRequest{
		Username:       opts.Username,
		AccountAddress: opts.AccountAddress,
		TargetChain:    opts.TargetChain,
		Calls:          intent.NormalizeCalls(opts.Calls),
		TokenRequests:  opts.TokenRequests,
		SourceAssets:   opts.SourceAssets,
	}
}

func chainOf(opts IntentOptions) int64 {
	if opts.Signed != nil {
		return opts.Signed.TargetChain
	}
	return opts.TargetChain
}
