package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"time"

	"oneauth/internal/api"
	"oneauth/internal/config"
	"oneauth/internal/dialog"
	"oneauth/internal/intent"
	"oneauth/internal/pipeline"
	"oneauth/internal/userstore"
)

// IntentSigner produces developer-signed intents instead of letting the
// pipeline send raw prepare fields. Typically backed by the signerd service.
type IntentSigner interface {
	SignIntent(ctx context.Context, req intent.SignRequest) (*intent.Signed, error)
}

// Client is the top-level SDK handle: it owns the API client, the dialog
// surface, the stored-user record, and the intent pipeline.
type Client struct {
	cfg      config.SDKConfig
	api      *api.Client
	surface  dialog.Surface
	store    userstore.Store
	pipeline *pipeline.Pipeline
	signer   IntentSigner
	metrics  *pipeline.Metrics
}

// New wires a Client from its collaborators.
func New(cfg config.SDKConfig, apiClient *api.Client, surface dialog.Surface, store userstore.Store, metrics *pipeline.Metrics) *Client {
	p := pipeline.New(apiClient, surface, store, cfg.StorageKey, pipeline.Config{
		DialogURL:    cfg.DialogURL,
		PollInterval: cfg.PollInterval,
		PollAttempts: cfg.PollAttempts,
	}, metrics)
	return &Client{
		cfg:      cfg,
		api:      apiClient,
		surface:  surface,
		store:    store,
		pipeline: p,
		metrics:  metrics,
	}
}

// SetIntentSigner installs a custom developer signer for intent calls.
func (c *Client) SetIntentSigner(s IntentSigner) { c.signer = s }

// StoredUser re-reads the persisted user. Always called fresh, never cached
// across an awaited boundary, so a concurrent invalidation is not
// resurrected.
func (c *Client) StoredUser(ctx context.Context) (*userstore.User, error) {
	return c.store.Get(ctx, c.cfg.StorageKey)
}

type authInitPayload struct {
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId,omitempty"`
}

// Connect authenticates the user via the connect dialog and persists the
// resulting {username, address} pair. Already-connected users are returned
// without a ceremony.
func (c *Client) Connect(ctx context.Context) (*userstore.User, error) {
	if user, err := c.StoredUser(ctx); err != nil {
		return nil, err
	} else if user != nil {
		return user, nil
	}

	res, err := c.runAuthFlow(ctx, dialog.FlowConnect)
	if err != nil {
		return nil, err
	}
	return c.adoptUser(ctx, res.Username)
}

// Authenticate runs the authenticate dialog for an explicit re-auth and
// refreshes the stored user.
func (c *Client) Authenticate(ctx context.Context) (*userstore.User, error) {
	res, err := c.runAuthFlow(ctx, dialog.FlowAuthenticate)
	if err != nil {
		return nil, err
	}
	return c.adoptUser(ctx, res.Username)
}

func (c *Client) adoptUser(ctx context.Context, username string) (*userstore.User, error) {
	if username == "" {
		return nil, intent.E(intent.CodeUnknown, "auth result missing username")
	}
	account, err := c.api.UserAccount(ctx, username)
	if err != nil {
		if intent.CodeOf(err) == intent.CodeUserNotFound {
			c.clearStoredUser(ctx)
		}
		return nil, err
	}
	user := userstore.User{Username: username, Address: account.Address}
	if err := c.store.Save(ctx, c.cfg.StorageKey, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// runAuthFlow drives one auth-family ceremony, transitioning to the popup
// variant of the same flow when the hosted UI signals that the ceremony
// cannot run inside the cross-origin frame. The fallback is a single
// explicit transition, not a recursion.
func (c *Client) runAuthFlow(ctx context.Context, flow dialog.Flow) (*dialog.ResultPayload, error) {
	res, err := c.runAuthSession(ctx, flow, dialog.ModeFrame, true)
	if errors.Is(err, dialog.ErrRetryPopup) {
		return c.runAuthSession(ctx, flow, dialog.ModePopup, false)
	}
	return res, err
}

func (c *Client) runAuthSession(ctx context.Context, flow dialog.Flow, mode dialog.Mode, allowRetry bool) (*dialog.ResultPayload, error) {
	session, err := dialog.Open(ctx, c.surface, c.cfg.DialogURL, flow, mode, dialog.Options{
		OnDisconnect: func() { c.clearStoredUser(ctx) },
	})
	if err != nil {
		if errors.Is(err, dialog.ErrPopupBlocked) {
			return nil, intent.E(intent.CodePopupBlocked, "popup blocked")
		}
		return nil, err
	}
	defer session.Cleanup()

	ready, err := session.AwaitReady(ctx, authInitPayload{
		SessionID: session.Token(),
		ClientID:  c.cfg.ClientID,
	})
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, intent.E(intent.CodeUserCancelled, "dialog closed")
	}

	return session.AwaitResult(ctx, dialog.ResultOptions{
		AuthFlow:        true,
		AllowRetryPopup: allowRetry,
	})
}

type signInitPayload struct {
	SessionID string          `json:"sessionId"`
	ClientID  string          `json:"clientId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Kind      string          `json:"kind"`
	Message   string          `json:"message,omitempty"`
	TypedData json.RawMessage `json:"typedData,omitempty"`
}

// SignMessage runs the sign dialog over a plain message and returns the
// signature.
func (c *Client) SignMessage(ctx context.Context, message string) (string, error) {
	return c.runSignFlow(ctx, signInitPayload{Kind: "message", Message: message})
}

// SignTypedData runs the sign dialog over EIP-712 typed data.
func (c *Client) SignTypedData(ctx context.Context, typed json.RawMessage) (string, error) {
	return c.runSignFlow(ctx, signInitPayload{Kind: "typedData", TypedData: typed})
}

func (c *Client) runSignFlow(ctx context.Context, init signInitPayload) (string, error) {
	user, err := c.StoredUser(ctx)
	if err != nil {
		return "", err
	}
	if user != nil {
		init.Username = user.Username
	}

	session, err := dialog.Open(ctx, c.surface, c.cfg.DialogURL, dialog.FlowSign, dialog.ModeFrame, dialog.Options{
		OnDisconnect: func() { c.clearStoredUser(ctx) },
	})
	if err != nil {
		return "", err
	}
	defer session.Cleanup()

	init.SessionID = session.Token()
	init.ClientID = c.cfg.ClientID
	ready, err := session.AwaitReady(ctx, init)
	if err != nil {
		return "", err
	}
	if !ready {
		return "", intent.E(intent.CodeUserRejected, "dialog closed")
	}

	res, err := session.AwaitResult(ctx, dialog.ResultOptions{})
	if err != nil {
		return "", err
	}
	if res.Signature == "" {
		return "", intent.E(intent.CodeSigningFailed, "result missing signature")
	}
	return res.Signature, nil
}

// SendIntent resolves the acting user, applies the custom signer when one is
// configured, and runs the intent pipeline.
func (c *Client) SendIntent(ctx context.Context, opts pipeline.IntentOptions) (*pipeline.IntentResult, error) {
	if opts.Signed == nil && opts.Username == "" && opts.AccountAddress == "" {
		user, err := c.StoredUser(ctx)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return &pipeline.IntentResult{
				Status: intent.StatusFailed,
				Error:  intent.E(intent.CodeInvalidOptions, "no connected user"),
			}, nil
		}
		opts.Username = user.Username
		opts.AccountAddress = user.Address
	}

	if opts.WaitForHash && opts.HashTimeout <= 0 {
		opts.HashTimeout = c.cfg.HashTimeout
	}

	if opts.Signed == nil && c.signer != nil {
		signed, err := c.signer.SignIntent(ctx, intent.SignRequest{
			Username:       opts.Username,
			AccountAddress: opts.AccountAddress,
			TargetChain:    opts.TargetChain,
			Calls:          intent.NormalizeCalls(opts.Calls),
			TokenRequests:  opts.TokenRequests,
		})
		if err != nil {
			return &pipeline.IntentResult{
				Status: intent.StatusFailed,
				Error:  intent.E(intent.CodeSigningFailed, "intent signer: %v", err),
			}, nil
		}
		opts.Signed = signed
	}

	return c.pipeline.SendIntent(ctx, opts)
}

// SendBatch runs the batched pipeline variant.
func (c *Client) SendBatch(ctx context.Context, opts pipeline.BatchOptions) (*pipeline.BatchResult, error) {
	if opts.Username == "" && opts.AccountAddress == "" {
		user, err := c.StoredUser(ctx)
		if err != nil {
			return nil, err
		}
		if user != nil {
			opts.Username = user.Username
			opts.AccountAddress = user.Address
		}
	}
	return c.pipeline.SendBatch(ctx, opts)
}

// WaitForHash exposes the bounded hash poller for callers that submitted an
// intent earlier.
func (c *Client) WaitForHash(ctx context.Context, intentID string, timeout time.Duration) (string, bool) {
	return c.pipeline.WaitForHash(ctx, intentID, timeout)
}

// IntentStatus fetches the orchestrator's view of an intent.
func (c *Client) IntentStatus(ctx context.Context, intentID string) (*api.StatusResponse, error) {
	return c.api.IntentStatus(ctx, intentID)
}

// Disconnect deletes the stored user.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.store.Delete(ctx, c.cfg.StorageKey)
}

func (c *Client) clearStoredUser(ctx context.Context) {
	if err := c.store.Delete(ctx, c.cfg.StorageKey); err != nil {
		log.Printf("stored user delete: %v", err)
	}
}

// IntentHistory lists intents for the stored user (or the given username).
func (c *Client) IntentHistory(ctx context.Context, username string) ([]api.HistoryEntry, error) {
	if username == "" {
		user, err := c.StoredUser(ctx)
		if err != nil {
			return nil, err
		}
		if user != nil {
			username = user.Username
		}
	}
	return c.api.IntentHistory(ctx, username)
}

// Passkeys lists the stored user's registered credentials.
func (c *Client) Passkeys(ctx context.Context) ([]api.Passkey, error) {
	user, err := c.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return c.api.UserPasskeys(ctx, user.Username)
}

// Portfolio fetches the stored user's token positions.
func (c *Client) Portfolio(ctx context.Context) ([]api.PortfolioEntry, error) {
	user, err := c.requireUser(ctx)
	if err != nil {
		return nil, err
	}
	return c.api.UserPortfolio(ctx, user.Username)
}

func (c *Client) requireUser(ctx context.Context) (*userstore.User, error) {
	user, err := c.StoredUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, intent.E(intent.CodeUserNotFound, "no connected user")
	}
	return user, nil
}

// HandleRedirect consumes the query parameters of a redirect-mode callback.
// A completed status triggers the follow-up fetch of the signing result.
func (c *Client) HandleRedirect(ctx context.Context, query url.Values) (*api.SignRequestResult, error) {
	requestID := query.Get("request_id")
	if requestID == "" {
		return nil, intent.E(intent.CodeInvalidRequest, "missing request_id")
	}
	switch query.Get("status") {
	case "completed":
		return c.api.GetSignRequest(ctx, requestID)
	case "error":
		code := query.Get("error")
		if code == "" {
			code = intent.CodeUnknown
		}
		return nil, intent.E(code, "%s", query.Get("error_message"))
	default:
		return nil, intent.E(intent.CodeUserCancelled, "sign request %s not completed", requestID)
	}
}
