package provider

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"oneauth/internal/client"
	"oneauth/internal/dialog"
	"oneauth/internal/intent"
	"oneauth/internal/pipeline"
)

// Event names emitted by the provider.
const (
	EventAccountsChanged = "accountsChanged"
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventChainChanged    = "chainChanged"
)

// Provider is an EIP-1193 adapter: thin method dispatch over the SDK client.
type Provider struct {
	client  *client.Client
	chainID int64

	mu        sync.Mutex
	listeners map[string][]func(any)
}

func New(c *client.Client, chainID int64) *Provider {
	return &Provider{
		client:    c,
		chainID:   chainID,
		listeners: make(map[string][]func(any)),
	}
}

// On registers an event listener.
func (p *Provider) On(event string, fn func(any)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[event] = append(p.listeners[event], fn)
}

func (p *Provider) emit(event string, data any) {
	p.mu.Lock()
	fns := append([]func(any){}, p.listeners[event]...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

// ChainID returns the provider's current chain.
func (p *Provider) ChainID() int64 { return p.chainID }

// Request dispatches a wallet-protocol method onto the SDK.
func (p *Provider) Request(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "eth_chainId":
		return hexutil.EncodeUint64(uint64(p.chainID)), nil
	case "eth_accounts":
		return p.accounts(ctx)
	case "eth_requestAccounts":
		return p.requestAccounts(ctx)
	case "personal_sign":
		return p.personalSign(ctx, params)
	case "eth_signTypedData_v4":
		return p.signTypedData(ctx, params)
	case "wallet_sendCalls":
		return p.sendCalls(ctx, params)
	case "wallet_getCallsStatus":
		return p.getCallsStatus(ctx, params)
	case "wallet_disconnect":
		if err := p.client.Disconnect(ctx); err != nil {
			return nil, err
		}
		p.emit(EventDisconnect, nil)
		return nil, nil
	}
	return nil, intent.E(intent.CodeInvalidRequest, "unsupported method %q", method)
}

func (p *Provider) accounts(ctx context.Context) ([]string, error) {
	user, err := p.client.StoredUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return []string{}, nil
	}
	return []string{user.Address}, nil
}

func (p *Provider) requestAccounts(ctx context.Context) ([]string, error) {
	user, err := p.client.Connect(ctx)
	if err != nil {
		return nil, err
	}
	accounts := []string{user.Address}
	p.emit(EventAccountsChanged, accounts)
	p.emit(EventConnect, map[string]string{"chainId": hexutil.EncodeUint64(uint64(p.chainID))})
	return accounts, nil
}

func (p *Provider) personalSign(ctx context.Context, params json.RawMessage) (string, error) {
	var args []string
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return "", intent.E(intent.CodeInvalidRequest, "personal_sign expects [message, address]")
	}
	return p.client.SignMessage(ctx, args[0])
}

func (p *Provider) signTypedData(ctx context.Context, params json.RawMessage) (string, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil || len(args) < 2 {
		return "", intent.E(intent.CodeInvalidRequest, "eth_signTypedData_v4 expects [address, typedData]")
	}
	typed := args[1]
	// Some callers double-encode the typed data as a JSON string.
	var asString string
	if json.Unmarshal(typed, &asString) == nil {
		typed = json.RawMessage(asString)
	}
	return p.client.SignTypedData(ctx, typed)
}

type sendCallsParam struct {
	Version string          `json:"version,omitempty"`
	ChainID json.RawMessage `json:"chainId,omitempty"`
	From    string          `json:"from,omitempty"`
	Calls   []sendCallEntry `json:"calls"`
}

type sendCallEntry struct {
	To    string          `json:"to"`
	Value json.RawMessage `json:"value,omitempty"`
	Data  string          `json:"data,omitempty"`
}

func (p *Provider) sendCalls(ctx context.Context, params json.RawMessage) (string, error) {
	var args []sendCallsParam
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return "", intent.E(intent.CodeInvalidRequest, "wallet_sendCalls expects a calls bundle")
	}
	bundle := args[0]
	if len(bundle.Calls) == 0 {
		return "", intent.E(intent.CodeInvalidOptions, "calls bundle is empty")
	}

	chain := p.chainID
	if len(bundle.ChainID) > 0 {
		parsed, err := parseChainID(bundle.ChainID)
		if err != nil {
			return "", err
		}
		chain = parsed
	}

	calls := make([]intent.Call, len(bundle.Calls))
	for i, c := range bundle.Calls {
		value, err := parseCallValue(c.Value)
		if err != nil {
			return "", err
		}
		calls[i] = intent.NormalizeCall(intent.Call{To: c.To, Data: c.Data, Value: value})
	}

	result, err := p.client.SendIntent(ctx, pipeline.IntentOptions{
		TargetChain: chain,
		Calls:       calls,
		CloseOn:     intent.CloseOnFilled,
		WaitForHash: true,
		Mode:        dialog.ModeFrame,
	})
	if err != nil {
		return "", err
	}
	if !result.Success {
		if result.Error != nil {
			return "", result.Error
		}
		return "", intent.E(intent.CodeUnknown, "intent did not settle")
	}
	return result.TxHash, nil
}

func (p *Provider) getCallsStatus(ctx context.Context, params json.RawMessage) (map[string]any, error) {
	var args []string
	if err := json.Unmarshal(params, &args); err != nil || len(args) == 0 {
		return nil, intent.E(intent.CodeInvalidRequest, "wallet_getCallsStatus expects [id]")
	}
	st, err := p.client.IntentStatus(ctx, args[0])
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"id":     args[0],
		"status": bundleStatusCode(st.Status),
	}
	if st.TxHash != "" {
		out["receipts"] = []map[string]string{{"transactionHash": st.TxHash}}
	}
	return out, nil
}

// bundleStatusCode maps orchestrator statuses onto EIP-5792 bundle codes.
func bundleStatusCode(s intent.RemoteStatus) int {
	switch s {
	case intent.RemoteCompleted, intent.RemoteFilled:
		return 200
	case intent.RemoteFailed:
		return 500
	case intent.RemoteExpired:
		return 408
	}
	return 100
}

func parseChainID(raw json.RawMessage) (int64, error) {
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		if strings.HasPrefix(asString, "0x") {
			v, err := hexutil.DecodeUint64(asString)
			if err != nil {
				return 0, intent.E(intent.CodeInvalidChain, "bad chainId %q", asString)
			}
			return int64(v), nil
		}
		v, err := strconv.ParseInt(asString, 10, 64)
		if err != nil {
			return 0, intent.E(intent.CodeInvalidChain, "bad chainId %q", asString)
		}
		return v, nil
	}
	var asNumber int64
	if json.Unmarshal(raw, &asNumber) == nil {
		return asNumber, nil
	}
	return 0, intent.E(intent.CodeInvalidChain, "bad chainId %s", string(raw))
}

// parseCallValue accepts a number, a decimal string, or a 0x-hex string and
// yields a decimal string for the intent call.
func parseCallValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		if asString == "" {
			return "", nil
		}
		if strings.HasPrefix(asString, "0x") {
			v, err := hexutil.DecodeBig(asString)
			if err != nil {
				return "", intent.E(intent.CodeInvalidRequest, "bad call value %q", asString)
			}
			return v.String(), nil
		}
		if _, ok := new(big.Int).SetString(asString, 10); !ok {
			return "", intent.E(intent.CodeInvalidRequest, "bad call value %q", asString)
		}
		return asString, nil
	}
	var asNumber json.Number
	if json.Unmarshal(raw, &asNumber) == nil {
		v, ok := new(big.Int).SetString(asNumber.String(), 10)
		if !ok {
			return "", intent.E(intent.CodeInvalidRequest, "bad call value %s", asNumber)
		}
		return v.String(), nil
	}
	return "", intent.E(intent.CodeInvalidRequest, "bad call value %s", string(raw))
}
