package pinner

import (
	"context"
	"fmt"
	"time"

	"github.com/tezoscommons/rpin/internal/remotepin/pinning"
)

// waitForStatus polls the service until the pin settles, the retry budget is
// spent or ctx is done. It never fails: the last status seen is returned.
func (p *Pinner) waitForStatus(ctx context.Context, initial *pinning.PinStatus) *pinning.PinStatus {
	log := p.log.WithField("requestid", initial.RequestID)
	latest := initial
	err := p.poll(ctx, func(attempt int) error {
		st, err := p.svc.Get(ctx, initial.RequestID)
		if err != nil {
			return err
		}
		latest = st
		log.Tracef("attempt #%d pinStatus: %s", attempt, st.Status)

		check := initial
		if p.opts.CheckLatestStatus {
			check = st
		}
		if check.Status.Terminal() {
			return nil
		}
		return fmt.Errorf("pin status is %s", check.Status)
	})
	if err != nil {
		log.WithError(err).Error("stopped waiting for pin")
	}
	log.Tracef("final pinStatus: %s", latest.Status)
	return latest
}

// poll runs fn until it succeeds, backing off between failed attempts.
func (p *Pinner) poll(ctx context.Context, fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= p.opts.Retry.Attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == p.opts.Retry.Attempts {
			break
		}
		t := time.NewTimer(p.opts.Retry.Backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", p.opts.Retry.Attempts, err)
}
