package dialog

import (
	"context"

	"oneauth/internal/intent"
)

// ResultOptions configures AwaitResult for the flow being run.
type ResultOptions struct {
	// AuthFlow maps a user close to USER_CANCELLED instead of USER_REJECTED.
	AuthFlow bool
	// AllowRetryPopup permits the retry-in-popup transition. The popup run
	// itself clears it so the fallback happens at most once.
	AllowRetryPopup bool
	// Refresh, when set, serves refresh-quote requests by re-running the
	// preparation that opened the session. Its return value is posted back
	// as the refresh-complete payload.
	Refresh func(ctx context.Context) (any, error)
}

// AwaitResult waits for exactly one terminal outcome after a successful
// handshake: a guarded result message, a user close, or (auth flows) a
// retry-in-popup signal surfaced as ErrRetryPopup. Resolves exactly once.
func (s *Session) AwaitResult(ctx context.Context, opts ResultOptions) (*ResultPayload, error) {
	cancelCode := intent.CodeUserRejected
	if opts.AuthFlow {
		cancelCode = intent.CodeUserCancelled
	}

	for {
		select {
		case m, ok := <-s.frame.Messages():
			if !ok {
				s.settle()
				s.Cleanup()
				return nil, intent.E(cancelCode, "dialog closed")
			}
			env, ok := s.accept(m)
			if !ok || s.ambient(env) {
				continue
			}
			switch env.Type {
			case TypeResult:
				var p ResultPayload
				if !decodePayload(env, &p) {
					continue
				}
				if !s.settle() {
					s.Cleanup()
					return nil, intent.E(cancelCode, "dialog closed")
				}
				if !p.Success {
					code, msg := intent.CodeSigningFailed, "signing failed"
					if p.Error != nil && p.Error.Code != "" {
						code, msg = p.Error.Code, p.Error.Message
					}
					return nil, intent.E(code, "%s", msg)
				}
				return &p, nil
			case TypeClose:
				s.settle()
				s.Cleanup()
				return nil, intent.E(cancelCode, "dialog closed by user")
			case TypeRetryPopup:
				if !opts.AllowRetryPopup {
					continue
				}
				s.settle()
				s.Cleanup()
				return nil, ErrRetryPopup
			case TypeRefreshQuote:
				if opts.Refresh == nil {
					continue
				}
				go s.serveRefresh(ctx, opts.Refresh)
			}
		case <-s.frame.Closed():
			s.settle()
			s.Cleanup()
			return nil, intent.E(cancelCode, "dialog closed")
		case <-ctx.Done():
			s.Cleanup()
			return nil, ctx.Err()
		}
	}
}

// serveRefresh re-runs the session's preparation and posts the outcome back
// into the frame. The waiter keeps waiting either way. A refresh finishing
// after the session settled is dropped: the quote no longer matters once a
// terminal result exists, and posting one would desync the hosted UI.
func (s *Session) serveRefresh(ctx context.Context, refresh func(ctx context.Context) (any, error)) {
	fresh, err := refresh(ctx)
	s.mu.Lock()
	done := s.settled
	s.mu.Unlock()
	if done {
		return
	}
	if err != nil {
		_ = s.post(Envelope{
			Type:    TypeRefreshError,
			Payload: mustPayload(map[string]string{"message": err.Error()}),
		})
		return
	}
	_ = s.post(Envelope{Type: TypeRefreshComplete, Payload: mustPayload(fresh)})
}

// AwaitClose blocks until the user closes the session, then tears it down.
// Used after a terminal status was pushed: closing is the user's explicit
// acknowledgement.
func (s *Session) AwaitClose(ctx context.Context) error {
	defer s.Cleanup()
	for {
		select {
		case m, ok := <-s.frame.Messages():
			if !ok {
				return nil
			}
			env, ok := s.accept(m)
			if !ok || s.ambient(env) {
				continue
			}
			if env.Type == TypeClose {
				return nil
			}
		case <-s.frame.Closed():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
