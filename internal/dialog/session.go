package dialog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"oneauth/internal/config"
)

// Mode selects the UI surface variant hosting the ceremony.
type Mode string

const (
	ModeFrame    Mode = "iframe"
	ModePopup    Mode = "popup"
	ModeRedirect Mode = "redirect"
)

// Flow names the ceremony the dialog document runs.
type Flow string

const (
	FlowAuth         Flow = "auth"
	FlowConnect      Flow = "connect"
	FlowAuthenticate Flow = "authenticate"
	FlowSign         Flow = "sign"
)

// Message is one inbound cross-document message with its declared origin.
type Message struct {
	Origin string
	Data   []byte
}

// Frame is one open dialog surface. Implementations bridge to whatever
// actually hosts the dialog document (webview, browser window, test fake).
type Frame interface {
	// Post delivers an envelope into the dialog document.
	Post(env Envelope) error
	// Messages streams inbound messages. Closing the channel is equivalent
	// to a native close event.
	Messages() <-chan Message
	// Closed fires when the surface is torn down natively (escape key,
	// backdrop click, window close).
	Closed() <-chan struct{}
	// Resize applies the dimensions the dialog document requested.
	Resize(width, height int)
	Close() error
}

// Surface creates dialog frames.
type Surface interface {
	Open(ctx context.Context, rawURL string, mode Mode) (Frame, error)
}

// ErrPopupBlocked is returned by Surface implementations when a popup-mode
// open is refused by the environment.
var ErrPopupBlocked = errors.New("popup blocked")

// ErrRetryPopup signals that the hosted UI cannot run the ceremony inside a
// cross-origin frame and the operation should re-run in popup mode.
var ErrRetryPopup = errors.New("ceremony requires popup mode")

// errSettled is returned by post once the session reached a terminal state.
var errSettled = errors.New("session already settled")

// Session is one signing/auth ceremony instance. It owns the frame, the
// expected origin, the correlation token, and the idempotent cleanup that
// every exit path converges on.
type Session struct {
	frame  Frame
	origin string
	token  string
	flow   Flow
	mode   Mode

	onDisconnect func()

	mu      sync.Mutex
	settled bool
	cleaned bool
}

// Options configures Open.
type Options struct {
	// OnDisconnect runs when the hosted UI sends the disconnect
	// side-channel, whatever operation is in flight.
	OnDisconnect func()
}

// Open creates the UI surface for a flow and wraps it in a Session. The
// trusted origin is derived once from the dialog base URL.
func Open(ctx context.Context, surface Surface, dialogURL string, flow Flow, mode Mode, opts Options) (*Session, error) {
	origin, err := config.DialogOrigin(dialogURL)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()
	target := fmt.Sprintf("%s/dialog/%s?mode=%s&session=%s", dialogURL, flow, url.QueryEscape(string(mode)), token)

	frame, err := surface.Open(ctx, target, mode)
	if err != nil {
		return nil, err
	}
	return &Session{
		frame:        frame,
		origin:       origin,
		token:        token,
		flow:         flow,
		mode:         mode,
		onDisconnect: opts.OnDisconnect,
	}, nil
}

// Token returns the session correlation token.
func (s *Session) Token() string { return s.token }

// Mode returns the surface variant the session runs in.
func (s *Session) Mode() Mode { return s.mode }

// accept admits an inbound message only if its origin matches the expected
// dialog origin, it decodes to a known envelope, and any session token it
// carries matches this session. Everything else is discarded silently.
func (s *Session) accept(m Message) (Envelope, bool) {
	if m.Origin != s.origin {
		return Envelope{}, false
	}
	env, ok := decodeEnvelope(m.Data)
	if !ok {
		return Envelope{}, false
	}
	if env.SessionID != "" && env.SessionID != s.token {
		return Envelope{}, false
	}
	return env, true
}

// ambient handles the message types valid in any phase: resize relay and the
// disconnect side-channel. Returns true when the envelope was consumed.
func (s *Session) ambient(env Envelope) bool {
	switch env.Type {
	case TypeResize:
		var p ResizePayload
		if decodePayload(env, &p) {
			s.frame.Resize(p.Width, p.Height)
		}
		return true
	case TypeDisconnect:
		if s.onDisconnect != nil {
			s.onDisconnect()
		}
		return true
	}
	return false
}

// settle flips the session to its terminal state. Only the first caller wins;
// everything downstream of a lost settle race must do nothing.
func (s *Session) settle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return false
	}
	s.settled = true
	return true
}

// post delivers an envelope into the frame unless the session was torn down.
// A refresh completing after cancellation lands here and is dropped. Status
// updates after the terminal result still go through; the session stays open
// until the user closes it.
func (s *Session) post(env Envelope) error {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return errSettled
	}
	s.mu.Unlock()
	env.SessionID = s.token
	return s.frame.Post(env)
}

// PostTxStatus pushes a transaction status update into the hosted UI.
func (s *Session) PostTxStatus(intentID, status, txHash string) {
	_ = s.post(Envelope{
		Type:    TypeTxStatus,
		Payload: mustPayload(TxStatusPayload{IntentID: intentID, Status: status, TxHash: txHash}),
	})
}

// Cleanup tears the session down: closes the frame and marks the session
// settled. Safe to call any number of times from any trigger path.
func (s *Session) Cleanup() {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return
	}
	s.cleaned = true
	s.settled = true
	s.mu.Unlock()
	_ = s.frame.Close()
}
