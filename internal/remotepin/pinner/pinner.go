// Package pinner coordinates remote pins: it resolves the origins a pinning
// service can fetch from, submits the request, helps the service reach the
// local node through its delegates and waits for the pin to settle.
package pinner

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/pinning"
)

var (
	ErrUndefinedCid     = errors.New("pinner: undefined cid")
	ErrMissingRequestID = errors.New("pinner: missing request id")
)

// Node is the local peer-to-peer node the pinning service fetches from.
type Node interface {
	Addrs() []multiaddr.Multiaddr
	Dial(ctx context.Context, addr multiaddr.Multiaddr) error
}

// Service is the remote pinning service.
type Service interface {
	Add(ctx context.Context, pin pinning.Pin) (*pinning.PinStatus, error)
	Replace(ctx context.Context, requestID string, pin pinning.Pin) (*pinning.PinStatus, error)
	Get(ctx context.Context, requestID string) (*pinning.PinStatus, error)
}

type PinArgs struct {
	Cid cid.Cid
	// Origins the service may fetch from, in addition to or instead of the
	// node's own addresses depending on Options.MergeOrigins.
	Origins []multiaddr.Multiaddr
	Name    string
	Meta    map[string]string
}

type ReplaceArgs struct {
	PinArgs
	RequestID string
}

type Options struct {
	Retry RetryPolicy
	// MergeOrigins adds the node's addresses to caller provided origins.
	MergeOrigins   bool
	OriginFilter   OriginFilter
	DelegateFilter DelegateFilter
	// CheckLatestStatus stops polling as soon as a fetched status is terminal.
	// When false the stop condition is evaluated against the status returned
	// by the initial request, so polling normally runs the whole budget.
	CheckLatestStatus bool
}

type Pinner struct {
	node Node
	svc  Service
	opts Options
	log  *logrus.Entry
}

func New(node Node, svc Service, opts Options, l *logrus.Entry) *Pinner {
	if opts.OriginFilter == nil {
		opts.OriginFilter = IdentityOrigins
	}
	if opts.DelegateFilter == nil {
		opts.DelegateFilter = IdentityDelegates
	}
	opts.Retry = opts.Retry.withDefaults()
	return &Pinner{
		node: node,
		svc:  svc,
		opts: opts,
		log:  l.WithField("source", "remote-pinner"),
	}
}

// AddPin asks the pinning service to pin args.Cid and waits for the pin to settle.
// Only failures up to and including the submission are returned; the returned
// status is the last one observed while polling.
func (p *Pinner) AddPin(ctx context.Context, args PinArgs) (*pinning.PinStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !args.Cid.Defined() {
		return nil, ErrUndefinedCid
	}
	st, err := p.svc.Add(ctx, p.pinArg(args))
	if err != nil {
		return nil, fmt.Errorf("submit pin: %w", err)
	}
	p.log.WithField("cid", args.Cid.String()).WithField("requestid", st.RequestID).
		Tracef("Initial pin request made, status: %s", st.Status)
	return p.handlePinStatus(ctx, st), nil
}

// ReplacePin replaces the pin identified by args.RequestID with args.Cid.
func (p *Pinner) ReplacePin(ctx context.Context, args ReplaceArgs) (*pinning.PinStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !args.Cid.Defined() {
		return nil, ErrUndefinedCid
	}
	if args.RequestID == "" {
		return nil, ErrMissingRequestID
	}
	st, err := p.svc.Replace(ctx, args.RequestID, p.pinArg(args.PinArgs))
	if err != nil {
		return nil, fmt.Errorf("submit pin replace: %w", err)
	}
	p.log.WithField("cid", args.Cid.String()).WithField("requestid", st.RequestID).
		Tracef("Initial pin replace made, status: %s", st.Status)
	return p.handlePinStatus(ctx, st), nil
}

func (p *Pinner) pinArg(args PinArgs) pinning.Pin {
	pin := pinning.Pin{
		Cid:  args.Cid.String(),
		Name: args.Name,
		Meta: args.Meta,
	}
	// an empty origin list is left out of the request entirely
	origins := p.Origins(args.Origins)
	if len(origins) > 0 {
		pin.Origins = make([]string, 0, len(origins))
		for _, o := range origins {
			pin.Origins = append(pin.Origins, o.String())
		}
	}
	return pin
}

// handlePinStatus connects to the delegates of st and then waits for the pin to settle.
func (p *Pinner) handlePinStatus(ctx context.Context, st *pinning.PinStatus) *pinning.PinStatus {
	p.connectDelegates(ctx, st.Delegates)
	return p.waitForStatus(ctx, st)
}
