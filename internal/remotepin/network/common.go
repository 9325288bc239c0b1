package network

import (
	"context"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multiaddr"
)

type NetworkInterface interface {
	// Addrs are the addresses other peers can reach us on, with our /p2p/ id.
	Addrs() []multiaddr.Multiaddr
	Dial(ctx context.Context, addr multiaddr.Multiaddr) error
	GetFile(ctx context.Context, c cid.Cid) (io.Reader, error)
	AddFile(ctx context.Context, source io.Reader) (cid.Cid, error)
	Connect(peers []string) error
	SendMessage(msg *PubSubMessage)
	Subscribe() chan *PubSubMessage
	ID() string
}

type PubSubMessage struct {
	Id   string
	Data []byte
	Kind string
	From string
}

const (
	KindNewObject = "new_object"
	KindPinned    = "pinned"
)
