// Package oneauth is the embeddable 1Auth SDK: passkey-based wallet
// connection, message and intent signing through a hosted dialog, and
// EIP-1193 provider adapters. The embedder supplies a Surface that hosts the
// dialog document (webview, browser bridge, test fake); all protocol
// semantics live in this module.
package oneauth

import (
	"context"

	"oneauth/internal/api"
	"oneauth/internal/client"
	"oneauth/internal/config"
	"oneauth/internal/dialog"
	"oneauth/internal/intent"
	"oneauth/internal/pipeline"
	"oneauth/internal/provider"
	"oneauth/internal/userstore"
)

// Core handles.
type (
	Client       = client.Client
	Provider     = provider.Provider
	IntentSigner = client.IntentSigner
	Metrics      = pipeline.Metrics
)

// Dialog surface contract the embedder implements, and the wire shapes that
// cross it.
type (
	Surface  = dialog.Surface
	Frame    = dialog.Frame
	Message  = dialog.Message
	Envelope = dialog.Envelope
	Mode     = dialog.Mode
	Flow     = dialog.Flow
)

const (
	ModeFrame    = dialog.ModeFrame
	ModePopup    = dialog.ModePopup
	ModeRedirect = dialog.ModeRedirect
)

// Intent domain types.
type (
	Call          = intent.Call
	TokenRequest  = intent.TokenRequest
	SignedIntent  = intent.Signed
	SignRequest   = intent.SignRequest
	CloseOn       = intent.CloseOn
	LocalStatus   = intent.LocalStatus
	RemoteStatus  = intent.RemoteStatus
	Error         = intent.Error
	IntentOptions = pipeline.IntentOptions
	IntentResult  = pipeline.IntentResult
	BatchEntry    = pipeline.BatchEntry
	BatchOptions  = pipeline.BatchOptions
	BatchResult   = pipeline.BatchResult
)

const (
	CloseOnClaimed      = intent.CloseOnClaimed
	CloseOnPreconfirmed = intent.CloseOnPreconfirmed
	CloseOnFilled       = intent.CloseOnFilled
	CloseOnCompleted    = intent.CloseOnCompleted
)

// API response types surfaced by Client methods.
type (
	HistoryEntry      = api.HistoryEntry
	Passkey           = api.Passkey
	PortfolioEntry    = api.PortfolioEntry
	StatusResponse    = api.StatusResponse
	AccountResponse   = api.AccountResponse
	SignRequestResult = api.SignRequestResult
)

// Configuration and persistence.
type (
	Config = config.SDKConfig
	User   = userstore.User
	Store  = userstore.Store
)

// ErrPopupBlocked is returned by Surface implementations when the environment
// refuses a popup-mode open.
var ErrPopupBlocked = dialog.ErrPopupBlocked

// CodeOf extracts the stable error code from an SDK error.
func CodeOf(err error) string { return intent.CodeOf(err) }

// LoadConfig reads the SDK configuration from oneauth.json and environment
// overrides.
func LoadConfig() (Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	return cfg.SDK, nil
}

// New wires a Client against the configured API with an explicit user store.
func New(cfg Config, surface Surface, store Store, metrics *Metrics) *Client {
	return client.New(cfg, api.New(cfg.APIURL, cfg.ClientID), surface, store, metrics)
}

// Open wires a Client with the file-backed user store at cfg.StorePath, the
// durable default for embedders without their own persistence.
func Open(cfg Config, surface Surface, metrics *Metrics) (*Client, error) {
	store, err := userstore.NewFileStore(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	return New(cfg, surface, store, metrics), nil
}

// NewProvider wraps a Client in an EIP-1193 provider for the given chain.
func NewProvider(c *Client, chainID int64) *Provider {
	return provider.New(c, chainID)
}

// NewMetrics builds a metrics set on a private prometheus registry. Pass nil
// to New instead when not scraping.
func NewMetrics() *Metrics { return pipeline.NewMetrics() }

// NewMemoryStore returns an in-memory user store, mostly for tests.
func NewMemoryStore() Store { return userstore.NewMemoryStore() }

// NewFileStore returns a JSON-file-backed user store.
func NewFileStore(path string) (Store, error) { return userstore.NewFileStore(path) }

// NewPostgresStore returns a PostgreSQL-backed user store for server-side
// embedders.
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	return userstore.NewPostgresStore(ctx, dsn)
}
