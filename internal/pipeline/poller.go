package pipeline

import (
	"context"
	"time"

	"oneauth/internal/intent"
)

// WaitForHash polls the status endpoint until a transaction hash is reported,
// bounded by timeout. Network errors are swallowed and count as keep-polling;
// only the timeout or an explicit terminal failure status ends the loop
// empty-handed.
func (p *Pipeline) WaitForHash(ctx context.Context, intentID string, timeout time.Duration) (string, bool) {
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := p.api.IntentStatus(ctx, intentID)
		p.metrics.incPoll()
		if err == nil {
			if st.TxHash != "" {
				return st.TxHash, true
			}
			if st.Status == intent.RemoteFailed || st.Status == intent.RemoteExpired {
				return "", false
			}
		}
		if !time.Now().Add(interval).Before(deadline) {
			return "", false
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-ticker.C:
		}
	}
}
