package network

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	ipfslite "github.com/hsanjuan/ipfs-lite"
	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p"
	connmgr "github.com/libp2p/go-libp2p-connmgr"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/peerstore"
	"github.com/libp2p/go-libp2p-kad-dht/dual"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pquic "github.com/libp2p/go-libp2p-quic-transport"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
)

const protectTag = "rpin"

var errDialSelf = errors.New("refusing to dial ourselves")

type Lightclient struct {
	client           *ipfslite.Peer
	log              *logrus.Entry
	privkey          []byte
	listen           []string
	datastore        string
	h                host.Host
	dht              *dual.DHT
	pubsub           *pubsub.PubSub
	topic            *pubsub.Topic
	msgcache         *lru.Cache
	cm               *connmgr.BasicConnMgr
	ctx              context.Context
	cancel           context.CancelFunc
	l                sync.Mutex
	connected        map[peer.ID]bool
	pubsubscriptions []chan *PubSubMessage
}

func NewLightclient(privkey []byte, c *config.Config, log *logrus.Entry) *Lightclient {
	l := Lightclient{}
	l.privkey = privkey
	l.listen = c.Node.Listen
	l.datastore = c.Node.Datastore
	l.connected = map[peer.ID]bool{}
	l.log = log.WithField("source", "light_client")
	return &l
}

func (l *Lightclient) Setup() {
	l.ctx, l.cancel = context.WithCancel(context.Background())
	cm := connmgr.NewConnManager(20, 50, time.Minute)
	options := []libp2p.Option{
		libp2p.NATPortMap(),
		libp2p.EnableAutoRelay(),
		libp2p.EnableNATService(),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.DefaultTransports,
		libp2p.ConnectionManager(cm),
	}
	ds, err := ipfslite.BadgerDatastore(l.datastore)
	if err != nil {
		l.log.Fatal(err)
	}
	priv, err := crypto.UnmarshalPrivateKey(l.privkey)
	if err != nil {
		l.log.Fatal(err)
	}
	listen := make([]multiaddr.Multiaddr, 0, len(l.listen))
	for _, s := range l.listen {
		a, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			l.log.WithField("addr", s).Fatal(err)
		}
		listen = append(listen, a)
	}
	h, dht, err := ipfslite.SetupLibp2p(l.ctx, priv, nil, listen, ds, options...)
	if err != nil {
		l.log.Fatal(err)
	}
	ps, err := pubsub.NewGossipSub(l.ctx, h)
	if err != nil {
		l.log.Fatal(err)
	}
	topic, err := ps.Join(BROADCAST_TOPIC)
	if err != nil {
		l.log.Fatal(err)
	}
	lite, err := ipfslite.New(l.ctx, ds, h, dht, nil)
	if err != nil {
		l.log.Fatal(err)
	}
	l.msgcache, _ = lru.New(1500)
	lite.Bootstrap(ipfslite.DefaultBootstrapPeers())
	l.client = lite
	l.h = h
	l.dht = dht
	l.cm = cm
	l.pubsub = ps
	l.topic = topic
	go l.listenPubsub()

	l.log.Info("My peerID is: ", h.ID().String())
}

func (l *Lightclient) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	if l.dht != nil {
		l.dht.Close()
	}
	return l.h.Close()
}

func (l *Lightclient) Addrs() []multiaddr.Multiaddr {
	addrs, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: l.h.ID(), Addrs: l.h.Addrs()})
	if err != nil {
		l.log.Warn("can not build p2p addresses: ", err)
		return nil
	}
	return addrs
}

// Dial connects to a /p2p/ multiaddr. Successfully dialed peers are protected
// from the connection manager so a pinning service can keep fetching from us.
func (l *Lightclient) Dial(ctx context.Context, addr multiaddr.Multiaddr) error {
	pinfo, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return err
	}
	if pinfo.ID == l.h.ID() {
		return errDialSelf
	}
	if err := l.h.Connect(ctx, *pinfo); err != nil {
		return err
	}
	if l.cm != nil {
		l.cm.Protect(pinfo.ID, protectTag)
	}
	l.markConnected(pinfo.ID)
	return nil
}

func (l *Lightclient) markConnected(id peer.ID) {
	l.l.Lock()
	defer l.l.Unlock()
	if l.connected == nil {
		l.connected = map[peer.ID]bool{}
	}
	if !l.connected[id] {
		l.log.Info("Connected with ", id)
		l.connected[id] = true
	}
}

func (l *Lightclient) GetFile(ctx context.Context, c cid.Cid) (io.Reader, error) {
	l.log.Trace("Get File: " + c.String())
	rsc, err := l.client.GetFile(ctx, c)
	if err != nil {
		l.log.Error(err)
		return nil, err
	}
	return rsc, nil
}

func (l *Lightclient) AddFile(ctx context.Context, source io.Reader) (cid.Cid, error) {
	node, err := l.client.AddFile(ctx, source, nil)
	if err != nil {
		l.log.Error("Error adding file ", err)
		return cid.Undef, err
	}
	return node.Cid(), nil
}

// Connect looks up peers by id in the DHT and connects to them in the background.
func (l *Lightclient) Connect(peers []string) error {
	for _, peerString := range peers {
		if peerString == l.h.ID().String() {
			continue
		}
		p, err := peer.Decode(peerString)
		if err != nil {
			l.log.Warn("can not parse peerID: ", err)
			continue
		}
		go func(p peer.ID) {
			pinfo, err := l.dht.FindPeer(l.ctx, p)
			if err != nil {
				l.log.Warn("error creating pinfo: ", err)
				return
			}
			l.h.Peerstore().AddAddrs(pinfo.ID, pinfo.Addrs, peerstore.PermanentAddrTTL)
			if err := l.h.Connect(l.ctx, pinfo); err != nil {
				l.log.Warn(err)
				return
			}
			l.cm.Protect(p, protectTag)
			l.markConnected(pinfo.ID)
		}(p)
	}
	return nil
}

func (l *Lightclient) SendMessage(msg *PubSubMessage) {
	msg.Id = uuid.New().String()
	data, _ := json.Marshal(msg)
	if err := l.topic.Publish(l.ctx, data); err != nil {
		l.log.Warn(err)
	}
}

func (l *Lightclient) listenPubsub() {
	s, e := l.topic.Subscribe()
	if e != nil {
		l.log.Fatal(e)
	}
	for {
		msg, e := s.Next(l.ctx)
		if e != nil {
			if l.ctx.Err() != nil {
				return
			}
			l.log.Warn(e)
			continue
		}
		if msg.ReceivedFrom == l.h.ID() {
			continue
		}
		p, _ := peer.IDFromBytes(msg.From)
		psmg := PubSubMessage{}
		if err := json.Unmarshal(msg.Data, &psmg); err != nil {
			l.log.Trace("dropping malformed pubsub message: ", err)
			continue
		}
		if _, ok := l.msgcache.Get(psmg.Id); !ok {
			l.msgcache.Add(psmg.Id, true)
			psmg.From = p.String()
			l.l.Lock()
			subs := l.pubsubscriptions
			l.l.Unlock()
			for _, c := range subs {
				c <- &psmg
			}
		}
	}
}

func (l *Lightclient) Subscribe() chan *PubSubMessage {
	res := make(chan *PubSubMessage, 10)
	l.l.Lock()
	l.pubsubscriptions = append(l.pubsubscriptions, res)
	l.l.Unlock()
	return res
}

func (l *Lightclient) ID() string {
	return l.h.ID().String()
}
