package app

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
	"github.com/tezoscommons/rpin/internal/remotepin/network"
	"github.com/tezoscommons/rpin/internal/remotepin/pinner"
	"github.com/tezoscommons/rpin/internal/remotepin/pinning"
)

// PinManager remote-pins objects announced by the peers we pin for.
type PinManager struct {
	pinner Pinner
	net    network.NetworkInterface
	c      *config.Config
	log    *logrus.Entry
}

func NewPinManager(p *pinner.Pinner, net network.NetworkInterface, l *logrus.Entry, c *config.Config) *PinManager {
	if !c.PinManagerEnabled {
		l.Info("PinManager disabled")
		return nil
	}
	pin := PinManager{
		pinner: p,
		net:    net,
		c:      c,
		log:    l.WithField("source", "pin-manager"),
	}
	return &pin
}

// Run handles announcements until ctx is done. Trusted peers are connected
// right away and again whenever the config changes, since announcements only
// travel between connected peers.
func (pin *PinManager) Run(ctx context.Context) {
	ch := pin.net.Subscribe()
	updates := pin.c.GetUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-updates:
			pin.connectTrusted(c.TrustedPeers())
		case msg := <-ch:
			if msg.Kind != network.KindNewObject {
				continue
			}
			pin.log.WithField("source", msg.From).WithField("cid", string(msg.Data)).Trace("pin request")
			if !pin.c.IsPinFor(msg.From) {
				continue
			}
			pin.log.WithField("cid", string(msg.Data)).WithField("origin", msg.From).Info("Auto-Pin")
			go pin.Pin(ctx, string(msg.Data), msg.From)
		}
	}
}

// Pin remote-pins cidStr and announces it once the service reports it pinned.
func (pin *PinManager) Pin(ctx context.Context, cidStr string, from string) (*pinning.PinStatus, error) {
	start := time.Now()
	log := pin.log.WithField("cid", cidStr)
	c, err := cid.Decode(cidStr)
	if err != nil {
		log.Warn("invalid cid: ", err)
		return nil, err
	}
	st, err := pin.pinner.AddPin(ctx, pinner.PinArgs{
		Cid:  c,
		Meta: map[string]string{"announcedBy": from},
	})
	if err != nil {
		log.Error(err)
		return nil, err
	}
	log = log.WithField("requestid", st.RequestID).WithField("duration", time.Since(start))
	if st.Status != pinning.Pinned {
		log.Warn("Could not confirm pin, status: ", st.Status)
		return st, nil
	}
	log.Info("Remote pin completed")
	pin.broadcastPin(c)
	return st, nil
}

func (pin *PinManager) connectTrusted(peers []string) {
	if len(peers) == 0 {
		return
	}
	pin.log.WithField("peers", peers).Trace("connecting trusted peers")
	if err := pin.net.Connect(peers); err != nil {
		pin.log.Warn("can not connect trusted peers: ", err)
	}
}

func (pin *PinManager) broadcastPin(c cid.Cid) {
	msg := network.PubSubMessage{
		Kind: network.KindPinned,
		Data: []byte(c.String()),
	}
	pin.net.SendMessage(&msg)
}
