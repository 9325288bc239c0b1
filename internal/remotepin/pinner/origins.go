package pinner

import (
	"github.com/multiformats/go-multiaddr"
)

// Origins returns the addresses the pinning service should fetch from.
// Provided origins are used as they are unless MergeOrigins is set; otherwise
// they are merged with the node's addresses and the origin filter is applied.
func (p *Pinner) Origins(provided []multiaddr.Multiaddr) []multiaddr.Multiaddr {
	if len(provided) > 0 && !p.opts.MergeOrigins {
		return provided
	}
	return p.opts.OriginFilter.FilterOrigins(union(provided, p.node.Addrs()))
}

func union(sets ...[]multiaddr.Multiaddr) []multiaddr.Multiaddr {
	seen := map[string]bool{}
	res := []multiaddr.Multiaddr{}
	for _, set := range sets {
		for _, a := range set {
			if a == nil {
				continue
			}
			key := string(a.Bytes())
			if seen[key] {
				continue
			}
			seen[key] = true
			res = append(res, a)
		}
	}
	return res
}
