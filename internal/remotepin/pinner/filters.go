package pinner

import (
	"fmt"
	"net"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	mafilter "github.com/whyrusleeping/multiaddr-filter"
)

// OriginFilter narrows the origins sent to the pinning service, for example
// to drop addresses the service can not dial.
type OriginFilter interface {
	FilterOrigins(origins []multiaddr.Multiaddr) []multiaddr.Multiaddr
}

// DelegateFilter narrows the delegates dialed after a pin request.
type DelegateFilter interface {
	FilterDelegates(delegates []string) []string
}

type OriginFilterFunc func([]multiaddr.Multiaddr) []multiaddr.Multiaddr

func (f OriginFilterFunc) FilterOrigins(origins []multiaddr.Multiaddr) []multiaddr.Multiaddr {
	return f(origins)
}

type DelegateFilterFunc func([]string) []string

func (f DelegateFilterFunc) FilterDelegates(delegates []string) []string {
	return f(delegates)
}

var (
	IdentityOrigins   OriginFilter   = OriginFilterFunc(func(o []multiaddr.Multiaddr) []multiaddr.Multiaddr { return o })
	IdentityDelegates DelegateFilter = DelegateFilterFunc(func(d []string) []string { return d })
)

// ChainOrigins applies filters in order.
func ChainOrigins(filters ...OriginFilter) OriginFilter {
	return OriginFilterFunc(func(origins []multiaddr.Multiaddr) []multiaddr.Multiaddr {
		for _, f := range filters {
			origins = f.FilterOrigins(origins)
		}
		return origins
	})
}

func keepOrigins(keep func(multiaddr.Multiaddr) bool) OriginFilter {
	return OriginFilterFunc(func(origins []multiaddr.Multiaddr) []multiaddr.Multiaddr {
		res := make([]multiaddr.Multiaddr, 0, len(origins))
		for _, o := range origins {
			if keep(o) {
				res = append(res, o)
			}
		}
		return res
	})
}

func hasProtocol(a multiaddr.Multiaddr, names map[string]bool) bool {
	for _, p := range a.Protocols() {
		if names[p.Name] {
			return true
		}
	}
	return false
}

func protocolSet(names []string) (map[string]bool, error) {
	set := map[string]bool{}
	for _, n := range names {
		if multiaddr.ProtocolWithName(n).Code == 0 {
			return nil, fmt.Errorf("unknown multiaddr protocol %q", n)
		}
		set[n] = true
	}
	return set, nil
}

// ExcludeProtocols drops origins using any of the named protocols, e.g. "quic".
func ExcludeProtocols(names ...string) (OriginFilter, error) {
	set, err := protocolSet(names)
	if err != nil {
		return nil, err
	}
	return keepOrigins(func(a multiaddr.Multiaddr) bool {
		return !hasProtocol(a, set)
	}), nil
}

// PublicOnly drops loopback, private and link-local origins.
func PublicOnly() OriginFilter {
	return keepOrigins(manet.IsPublicAddr)
}

// DenyCIDRs drops origins inside any of the given /ipcidr masks,
// e.g. "/ip4/10.0.0.0/ipcidr/8". Origins without an IP are kept.
func DenyCIDRs(masks ...string) (OriginFilter, error) {
	nets := make([]*net.IPNet, 0, len(masks))
	for _, m := range masks {
		n, err := mafilter.NewMask(m)
		if err != nil {
			return nil, fmt.Errorf("invalid mask %q: %w", m, err)
		}
		nets = append(nets, n)
	}
	return keepOrigins(func(a multiaddr.Multiaddr) bool {
		ip, err := manet.ToIP(a)
		if err != nil {
			return true
		}
		for _, n := range nets {
			if n.Contains(ip) {
				return false
			}
		}
		return true
	}), nil
}

// ExcludeDelegateProtocols drops delegates using any of the named protocols.
// Delegates that do not parse are kept and fail when dialed.
func ExcludeDelegateProtocols(names ...string) (DelegateFilter, error) {
	set, err := protocolSet(names)
	if err != nil {
		return nil, err
	}
	return DelegateFilterFunc(func(delegates []string) []string {
		res := make([]string, 0, len(delegates))
		for _, d := range delegates {
			a, err := multiaddr.NewMultiaddr(d)
			if err == nil && hasProtocol(a, set) {
				continue
			}
			res = append(res, d)
		}
		return res
	}), nil
}
