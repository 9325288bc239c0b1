package network

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"
	files "github.com/ipfs/go-ipfs-files"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
)

// IPFS drives an external IPFS daemon through its HTTP API.
type IPFS struct {
	sh               *shell.Shell
	log              *logrus.Entry
	l                sync.Mutex
	connected        map[string]bool
	pubsubscriptions []chan *PubSubMessage
	id               string
	msgcache         *lru.Cache
}

func NewIPFS(c *config.Config, l *logrus.Entry) *IPFS {
	url := c.GetIpfsAPI()
	if url == nil {
		return nil
	}
	r := newIPFS(shell.NewShell(*url), l)
	r.log.Info("Connecting to external IPFS Node....")
	pi, err := r.sh.ID()
	if err != nil {
		r.log.Fatal("Can not connect to IPFS via "+*url+": ", err)
	}
	r.id = pi.ID
	go r.listenPubSub()
	return r
}

func newIPFS(sh *shell.Shell, l *logrus.Entry) *IPFS {
	r := &IPFS{}
	r.sh = sh
	r.connected = map[string]bool{}
	r.pubsubscriptions = []chan *PubSubMessage{}
	r.log = l.WithField("source", "ipfs-wrapper")
	r.msgcache, _ = lru.New(1500)
	return r
}

// Addrs returns the addresses the daemon announces.
func (i *IPFS) Addrs() []multiaddr.Multiaddr {
	pi, err := i.sh.ID()
	if err != nil {
		i.log.Warn("can not read node addresses: ", err)
		return nil
	}
	res := make([]multiaddr.Multiaddr, 0, len(pi.Addresses))
	for _, s := range pi.Addresses {
		a, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			i.log.Trace("skipping address ", s, ": ", err)
			continue
		}
		res = append(res, a)
	}
	return res
}

func (i *IPFS) Dial(ctx context.Context, addr multiaddr.Multiaddr) error {
	if err := i.sh.SwarmConnect(ctx, addr.String()); err != nil {
		return err
	}
	i.markConnected(addr.String())
	return nil
}

func (i *IPFS) markConnected(addr string) {
	i.l.Lock()
	defer i.l.Unlock()
	if !i.connected[addr] {
		i.log.Info("Connected with ", addr)
		i.connected[addr] = true
	}
}

func (i *IPFS) GetFile(ctx context.Context, c cid.Cid) (io.Reader, error) {
	resp, err := i.sh.Request("cat", c.String()).Send(ctx)
	if err != nil {
		i.log.Error("Cant get file ", err)
		return nil, err
	}
	return resp.Output, nil
}

func (i *IPFS) AddFile(ctx context.Context, source io.Reader) (cid.Cid, error) {
	dir := files.NewSliceDirectory([]files.DirEntry{files.FileEntry("", files.NewReaderFile(source))})
	var out struct {
		Hash string
	}
	err := i.sh.Request("add").
		Option("pin", true).
		Body(files.NewMultiFileReader(dir, true)).
		Exec(ctx, &out)
	if err != nil {
		return cid.Undef, err
	}
	return cid.Decode(out.Hash)
}

func (i *IPFS) Connect(peers []string) error {
	ctx := context.Background()
	for _, a := range peers {
		pi, err := i.sh.FindPeer(a)
		if err != nil {
			i.log.Trace("can not parse peerID: ", err)
			continue
		}
		for _, pa := range pi.Addrs {
			err = i.sh.SwarmConnect(ctx, pa+"/p2p/"+pi.ID)
			if err != nil {
				i.log.Trace("can not connect to: ", err)
				continue
			}
			i.markConnected(pi.ID)
		}
	}
	return nil
}

func (i *IPFS) SendMessage(msg *PubSubMessage) {
	msg.Id = uuid.New().String()
	data, _ := json.Marshal(msg)
	if err := i.sh.PubSubPublish(BROADCAST_TOPIC, string(data)); err != nil {
		i.log.Warn(err)
	}
}

func (i *IPFS) listenPubSub() {
	s, e := i.sh.PubSubSubscribe(BROADCAST_TOPIC)
	if e != nil {
		i.log.Fatal(e)
	}
	for {
		msg, e := s.Next()
		if e != nil {
			i.log.Warn(e)
			continue
		}
		psmg := PubSubMessage{}
		if err := json.Unmarshal(msg.Data, &psmg); err != nil {
			i.log.Trace("dropping malformed pubsub message: ", err)
			continue
		}
		if _, ok := i.msgcache.Get(psmg.Id); !ok {
			i.msgcache.Add(psmg.Id, true)
			psmg.From = msg.From.String()
			if psmg.From != i.id {
				i.l.Lock()
				subs := i.pubsubscriptions
				i.l.Unlock()
				for _, c := range subs {
					c <- &psmg
				}
			}
		}
	}
}

func (i *IPFS) Subscribe() chan *PubSubMessage {
	res := make(chan *PubSubMessage, 10)
	i.l.Lock()
	i.pubsubscriptions = append(i.pubsubscriptions, res)
	i.l.Unlock()
	return res
}

func (i *IPFS) ID() string {
	return i.id
}
