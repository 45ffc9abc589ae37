package dialog

import "context"

// AwaitReady is the initial protocol phase: block until the hosted UI
// declares readiness, then synchronously push the init payload. Returns false
// when the dialog was closed before readiness. Init data is never sent down
// any other path; the dialog document is not guaranteed to be listening
// before its ready signal.
func (s *Session) AwaitReady(ctx context.Context, init any) (bool, error) {
	for {
		select {
		case m, ok := <-s.frame.Messages():
			if !ok {
				s.Cleanup()
				return false, nil
			}
			env, ok := s.accept(m)
			if !ok || s.ambient(env) {
				continue
			}
			switch env.Type {
			case TypeReady:
				if err := s.post(Envelope{Type: TypeInit, Payload: mustPayload(init)}); err != nil {
					s.Cleanup()
					return false, err
				}
				return true, nil
			case TypeClose:
				s.Cleanup()
				return false, nil
			}
			// Result messages before readiness are undefined; drop them.
		case <-s.frame.Closed():
			s.Cleanup()
			return false, nil
		case <-ctx.Done():
			s.Cleanup()
			return false, ctx.Err()
		}
	}
}
