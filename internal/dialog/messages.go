package dialog

import "encoding/json"

// Message type tags exchanged with the hosted UI. Inbound tags come from the
// dialog document, outbound tags are posted into it by the host.
const (
	TypeReady        = "ready"
	TypeResize       = "resize"
	TypeClose        = "close"
	TypeDisconnect   = "disconnect"
	TypeRetryPopup   = "retry-popup"
	TypeRefreshQuote = "refresh-quote"
	TypeResult       = "result"

	TypeInit            = "init"
	TypeTxStatus        = "tx-status"
	TypeRefreshComplete = "refresh-complete"
	TypeRefreshError    = "refresh-error"
)

// Envelope is the wire shape of every channel message. SessionID is the
// host-issued correlation token; hosted UIs echo it back so concurrent
// sessions sharing one origin cannot cross-talk.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ResizePayload reports the hosted UI's desired surface dimensions.
type ResizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ResultError is the structured failure branch of a terminal result.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Credential identifies the passkey used in a ceremony.
type Credential struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey,omitempty"`
}

// BatchItem is one per-index outcome of a batch signing session. The hosted
// UI executes each intent server-side and reports every slot in one message.
type BatchItem struct {
	Index    int          `json:"index"`
	Success  bool         `json:"success"`
	IntentID string       `json:"intentId,omitempty"`
	TxHash   string       `json:"txHash,omitempty"`
	Error    *ResultError `json:"error,omitempty"`
}

// ResultPayload is the single terminal message of a session. Success carries
// either a signature+credential pair, or (already-executed fast path) a
// server-assigned intent ID, or per-index batch results.
type ResultPayload struct {
	Success    bool         `json:"success"`
	Signature  string       `json:"signature,omitempty"`
	Credential *Credential  `json:"credential,omitempty"`
	Username   string       `json:"username,omitempty"`
	IntentID   string       `json:"intentId,omitempty"`
	TxHash     string       `json:"txHash,omitempty"`
	Results    []BatchItem  `json:"results,omitempty"`
	Error      *ResultError `json:"error,omitempty"`
}

// TxStatusPayload notifies the hosted UI of an observed status transition.
type TxStatusPayload struct {
	IntentID string `json:"intentId,omitempty"`
	Status   string `json:"status"`
	TxHash   string `json:"txHash,omitempty"`
}

// decodeEnvelope parses raw message bytes into an envelope with a known type
// tag. Unknown tags and malformed JSON fail closed.
func decodeEnvelope(raw []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, false
	}
	switch env.Type {
	case TypeReady, TypeResize, TypeClose, TypeDisconnect,
		TypeRetryPopup, TypeRefreshQuote, TypeResult:
		return env, true
	}
	return Envelope{}, false
}

// decodePayload unmarshals the envelope payload into out, failing closed on
// malformed shapes so no field is ever read from an unvalidated payload.
func decodePayload(env Envelope, out any) bool {
	if len(env.Payload) == 0 {
		return false
	}
	return json.Unmarshal(env.Payload, out) == nil
}

func mustPayload(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
