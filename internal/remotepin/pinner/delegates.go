package pinner

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/multiformats/go-multiaddr"
)

var errNoDelegates = errors.New("no delegates to dial")

// connectDelegates dials every delegate at once and returns on the first
// successful connection. Failures are logged, never returned.
func (p *Pinner) connectDelegates(ctx context.Context, delegates []string) {
	filtered := p.opts.DelegateFilter.FilterDelegates(append([]string{}, delegates...))
	if len(filtered) == 0 {
		p.log.WithError(errNoDelegates).Error("Failed to connect to any delegates")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	// abandons the dials still in flight once we return
	defer cancel()

	// buffered so late dials never block after we stopped listening
	results := make(chan error, len(filtered))
	for _, d := range filtered {
		go func(d string) {
			results <- p.dialDelegate(ctx, d)
		}(d)
	}

	var merr *multierror.Error
	for range filtered {
		select {
		case err := <-results:
			if err == nil {
				return
			}
			merr = multierror.Append(merr, err)
		case <-ctx.Done():
			p.log.Trace("delegate connection aborted")
			return
		}
	}
	if ctx.Err() != nil {
		p.log.Trace("delegate connection aborted")
		return
	}
	p.log.WithError(merr.ErrorOrNil()).Error("Failed to connect to any delegates")
}

func (p *Pinner) dialDelegate(ctx context.Context, delegate string) error {
	addr, err := multiaddr.NewMultiaddr(delegate)
	if err == nil {
		err = p.node.Dial(ctx, addr)
	}
	if err != nil {
		if ctx.Err() == nil {
			p.log.WithField("delegate", delegate).WithError(err).Error("Failed to connect to delegate")
		}
		return fmt.Errorf("%s: %w", delegate, err)
	}
	p.log.WithField("delegate", delegate).Trace("connected to delegate")
	return nil
}
