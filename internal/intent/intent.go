package intent

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Call is one target-chain contract call inside an intent.
type Call struct {
	To       string `json:"to"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	Label    string `json:"label,omitempty"`
	Sublabel string `json:"sublabel,omitempty"`
}

// TokenRequest asks the orchestrator to deliver a token alongside the calls.
type TokenRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// LocalStatus is the client-side view of an intent's progress.
type LocalStatus string

const (
	StatusPending   LocalStatus = "pending"
	StatusQuoted    LocalStatus = "quoted"
	StatusSigned    LocalStatus = "signed"
	StatusSubmitted LocalStatus = "submitted"
	StatusCompleted LocalStatus = "completed"
	StatusFailed    LocalStatus = "failed"
	StatusExpired   LocalStatus = "expired"
)

// RemoteStatus is the orchestrator's view, reported by the status endpoint.
type RemoteStatus string

const (
	RemotePending      RemoteStatus = "PENDING"
	RemoteClaimed      RemoteStatus = "CLAIMED"
	RemotePreconfirmed RemoteStatus = "PRECONFIRMED"
	RemoteFilled       RemoteStatus = "FILLED"
	RemoteCompleted    RemoteStatus = "COMPLETED"
	RemoteFailed       RemoteStatus = "FAILED"
	RemoteExpired      RemoteStatus = "EXPIRED"
)

// Terminal reports whether no further status transitions can happen.
func (r RemoteStatus) Terminal() bool {
	switch r {
	case RemoteCompleted, RemoteFailed, RemoteExpired:
		return true
	}
	return false
}

// rank orders the success lattice. Unknown statuses rank below everything so
// they never satisfy a close-on threshold.
func (r RemoteStatus) rank() int {
	switch r {
	case RemotePending:
		return 0
	case RemoteClaimed:
		return 1
	case RemotePreconfirmed:
		return 2
	case RemoteFilled:
		return 3
	case RemoteCompleted:
		return 4
	}
	return -1
}

// CloseOn is the caller-chosen remote status level at which an intent counts
// as done enough to report success and close its session.
type CloseOn string

const (
	CloseOnClaimed      CloseOn = "claimed"
	CloseOnPreconfirmed CloseOn = "preconfirmed"
	CloseOnFilled       CloseOn = "filled"
	CloseOnCompleted    CloseOn = "completed"
)

func (c CloseOn) threshold() int {
	switch c {
	case CloseOnClaimed:
		return 1
	case CloseOnPreconfirmed:
		return 2
	case CloseOnFilled:
		return 3
	case CloseOnCompleted:
		return 4
	}
	return 4
}

// SatisfiedBy reports whether the observed remote status meets the threshold.
// FAILED and EXPIRED never satisfy any threshold.
func (c CloseOn) SatisfiedBy(r RemoteStatus) bool {
	if r == RemoteFailed || r == RemoteExpired {
		return false
	}
	rank := r.rank()
	return rank >= 0 && rank >= c.threshold()
}

// ValidCloseOn reports whether the value names a known threshold.
func ValidCloseOn(c CloseOn) bool {
	switch c {
	case CloseOnClaimed, CloseOnPreconfirmed, CloseOnFilled, CloseOnCompleted, "":
		return true
	}
	return false
}

// NormalizeCall lower-cases addresses and calldata and defaults empty
// optional fields, so the same logical call always encodes identically.
func NormalizeCall(c Call) Call {
	out := c
	out.To = strings.ToLower(strings.TrimSpace(c.To))
	out.Data = strings.ToLower(strings.TrimSpace(c.Data))
	if out.Data == "" {
		out.Data = "0x"
	}
	out.Value = strings.TrimSpace(c.Value)
	if out.Value == "" {
		out.Value = "0"
	}
	return out
}

// NormalizeCalls applies NormalizeCall to every entry.
func NormalizeCalls(calls []Call) []Call {
	out := make([]Call, len(calls))
	for i, c := range calls {
		out[i] = NormalizeCall(c)
	}
	return out
}

// ValidateCalls checks that every call targets a well-formed address.
func ValidateCalls(calls []Call) error {
	if len(calls) == 0 {
		return E(CodeInvalidOptions, "at least one call is required")
	}
	for i, c := range calls {
		if !common.IsHexAddress(c.To) {
			return E(CodeInvalidOptions, "call %d: invalid to address %q", i, c.To)
		}
	}
	return nil
}
