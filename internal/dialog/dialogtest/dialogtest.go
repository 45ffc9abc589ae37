// Package dialogtest provides a scriptable in-memory dialog surface for
// exercising the session protocol without a real embedder.
package dialogtest

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"oneauth/internal/dialog"
)

// Script drives one fake dialog document. It runs in its own goroutine as
// soon as the frame opens, playing the hosted UI's side of the protocol.
type Script func(f *Frame)

// Surface hands out one scripted frame per Open call, in order.
type Surface struct {
	mu      sync.Mutex
	scripts []Script
	frames  []*Frame
	OpenErr error
}

func NewSurface(scripts ...Script) *Surface {
	return &Surface{scripts: scripts}
}

func (s *Surface) Open(_ context.Context, rawURL string, mode dialog.Mode) (dialog.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}

	f := newFrame(rawURL, mode)
	s.frames = append(s.frames, f)
	if len(s.scripts) > 0 {
		script := s.scripts[0]
		s.scripts = s.scripts[1:]
		go script(f)
	}
	return f, nil
}

// Frames returns every frame opened so far.
func (s *Surface) Frames() []*Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Frame{}, s.frames...)
}

// Frame is the fake dialog surface handle.
type Frame struct {
	URL    string
	Mode   dialog.Mode
	Origin string
	Token  string

	in     chan dialog.Message
	posted chan dialog.Envelope
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	width  int
	height int
}

func newFrame(rawURL string, mode dialog.Mode) *Frame {
	f := &Frame{
		URL:    rawURL,
		Mode:   mode,
		in:     make(chan dialog.Message, 64),
		posted: make(chan dialog.Envelope, 64),
		closed: make(chan struct{}),
	}
	if u, err := url.Parse(rawURL); err == nil {
		f.Origin = u.Scheme + "://" + u.Host
		f.Token = u.Query().Get("session")
	}
	return f
}

func (f *Frame) Post(env dialog.Envelope) error {
	select {
	case f.posted <- env:
	default:
	}
	return nil
}

func (f *Frame) Messages() <-chan dialog.Message { return f.in }

func (f *Frame) Closed() <-chan struct{} { return f.closed }

func (f *Frame) Resize(width, height int) {
	f.mu.Lock()
	f.width, f.height = width, height
	f.mu.Unlock()
}

// Size returns the last applied dimensions.
func (f *Frame) Size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width, f.height
}

func (f *Frame) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// Send delivers an envelope from the hosted UI with the frame's own origin
// and session token.
func (f *Frame) Send(msgType string, payload any) {
	f.SendAs(f.Origin, f.Token, msgType, payload)
}

// SendAs delivers an envelope with an arbitrary origin and token, for
// spoofing and cross-talk tests.
func (f *Frame) SendAs(origin, token, msgType string, payload any) {
	env := dialog.Envelope{Type: msgType, SessionID: token}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		env.Payload = raw
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	f.SendRaw(origin, raw)
}

// SendRaw delivers arbitrary bytes as an inbound message.
func (f *Frame) SendRaw(origin string, data []byte) {
	select {
	case f.in <- dialog.Message{Origin: origin, Data: data}:
	case <-f.closed:
	}
}

// WaitFor blocks until the host posts a message of the given type, returning
// it. Other message types are discarded. Gives up after two seconds.
func (f *Frame) WaitFor(msgType string) (dialog.Envelope, bool) {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-f.posted:
			if env.Type == msgType {
				return env, true
			}
		case <-deadline:
			return dialog.Envelope{}, false
		}
	}
}

// WaitForStatus blocks until a tx-status post carries the given status.
func (f *Frame) WaitForStatus(status string) (dialog.TxStatusPayload, bool) {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-f.posted:
			if env.Type != dialog.TypeTxStatus {
				continue
			}
			var p dialog.TxStatusPayload
			if json.Unmarshal(env.Payload, &p) != nil {
				continue
			}
			if p.Status == status {
				return p, true
			}
		case <-deadline:
			return dialog.TxStatusPayload{}, false
		}
	}
}

// Posted drains and returns every message posted so far without blocking.
func (f *Frame) Posted() []dialog.Envelope {
	var out []dialog.Envelope
	for {
		select {
		case env := <-f.posted:
			out = append(out, env)
		default:
			return out
		}
	}
}
