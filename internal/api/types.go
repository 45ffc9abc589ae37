package api

import (
	"oneauth/internal/intent"
)

// PrepareRequest is the body of POST /api/intent/prepare. Either Signed is
// set (developer-constructed payment) or the raw fields are.
type PrepareRequest struct {
	Signed         *intent.Signed        `json:"signedIntent,omitempty"`
	Username       string                `json:"username,omitempty"`
	AccountAddress string                `json:"accountAddress,omitempty"`
	TargetChain    int64                 `json:"targetChain,omitempty"`
	Calls          []intent.Call         `json:"calls,omitempty"`
	TokenRequests  []intent.TokenRequest `json:"tokenRequests,omitempty"`
	SourceAssets   []string              `json:"sourceAssets,omitempty"`
}

// BreakdownLine is one human-displayable row of the prepared transaction.
type BreakdownLine struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
	Token  string `json:"token,omitempty"`
}

// PrepareResponse carries the quote, the challenge to sign, and the opaque
// server-side operation handle the execute call needs.
type PrepareResponse struct {
	OperationID    string          `json:"operationId"`
	Challenge      string          `json:"challenge"`
	Quote          string          `json:"quote,omitempty"`
	Breakdown      []BreakdownLine `json:"breakdown,omitempty"`
	AccountAddress string          `json:"accountAddress,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	ExpiresAt      int64           `json:"expiresAt,omitempty"`
}

// BatchPrepareRequest is the body of POST /api/intent/batch-prepare.
type BatchPrepareRequest struct {
	Username       string           `json:"username,omitempty"`
	AccountAddress string           `json:"accountAddress,omitempty"`
	Intents        []PrepareRequest `json:"intents"`
}

// BatchPrepareResponse returns one prepared entry per intent plus the shared
// challenge the single passkey ceremony covers.
type BatchPrepareResponse struct {
	Entries         []PrepareResponse `json:"entries"`
	SharedChallenge string            `json:"sharedChallenge"`
	AccountAddress  string            `json:"accountAddress,omitempty"`
	UserID          string            `json:"userId,omitempty"`
	ExpiresAt       int64             `json:"expiresAt,omitempty"`
}

// ExecuteRequest is the body of POST /api/intent/execute.
type ExecuteRequest struct {
	OperationID string `json:"operationId"`
	Signature   string `json:"signature"`
}

// ExecuteResponse assigns the intent ID and its initial remote status.
type ExecuteResponse struct {
	IntentID string              `json:"intentId"`
	Status   intent.RemoteStatus `json:"status"`
	TxHash   string              `json:"txHash,omitempty"`
}

// StatusResponse is the body of GET /api/intent/status/{id}.
type StatusResponse struct {
	IntentID string              `json:"intentId"`
	Status   intent.RemoteStatus `json:"status"`
	TxHash   string              `json:"txHash,omitempty"`
}

// HistoryEntry is one row of GET /api/intent/history.
type HistoryEntry struct {
	IntentID  string              `json:"intentId"`
	Status    intent.RemoteStatus `json:"status"`
	TxHash    string              `json:"txHash,omitempty"`
	Chain     int64               `json:"chain"`
	CreatedAt int64               `json:"createdAt"`
}

// AccountResponse is the body of GET /api/users/{username}/account.
type AccountResponse struct {
	Username string `json:"username"`
	Address  string `json:"address"`
}

// Passkey is one registered credential of a user.
type Passkey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// PortfolioEntry is one token position of a user's smart account.
type PortfolioEntry struct {
	Chain   int64  `json:"chain"`
	Token   string `json:"token"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
}

// SignRequestBody is the body of POST /api/sign/request (redirect flows).
type SignRequestBody struct {
	Username string `json:"username,omitempty"`
	Kind     string `json:"kind"`
	Payload  string `json:"payload"`
}

// SignRequestResult is the stored outcome fetched by request ID.
type SignRequestResult struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
