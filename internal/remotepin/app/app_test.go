package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
	"github.com/tezoscommons/rpin/internal/remotepin/network"
	"github.com/tezoscommons/rpin/internal/remotepin/pinner"
	"github.com/tezoscommons/rpin/internal/remotepin/pinning"
)

const testCid = "QmPZ9gcCEpqKTo6aq61g2nXGUhM4iCL3ewB6LDXZCtioEB"

type fakeNet struct {
	mu        sync.Mutex
	msgs      chan *network.PubSubMessage
	sent      []*network.PubSubMessage
	connected [][]string
}

func newFakeNet() *fakeNet {
	return &fakeNet{msgs: make(chan *network.PubSubMessage, 10)}
}

func (n *fakeNet) Addrs() []multiaddr.Multiaddr {
	return []multiaddr.Multiaddr{multiaddr.StringCast("/ip4/1.2.3.4/tcp/4001/p2p/" + testCid)}
}
func (n *fakeNet) Dial(ctx context.Context, addr multiaddr.Multiaddr) error { return nil }
func (n *fakeNet) GetFile(ctx context.Context, c cid.Cid) (io.Reader, error) {
	return nil, errors.New("not implemented")
}
func (n *fakeNet) AddFile(ctx context.Context, source io.Reader) (cid.Cid, error) {
	return cid.Undef, errors.New("not implemented")
}
func (n *fakeNet) Connect(peers []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = append(n.connected, peers)
	return nil
}
func (n *fakeNet) Subscribe() chan *network.PubSubMessage { return n.msgs }
func (n *fakeNet) ID() string { return testCid }
func (n *fakeNet) SendMessage(msg *network.PubSubMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *fakeNet) connectCalls() [][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]string{}, n.connected...)
}

func (n *fakeNet) sentMessages() []*network.PubSubMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*network.PubSubMessage{}, n.sent...)
}

type fakePinner struct {
	mu       sync.Mutex
	status   pinning.Status
	err      error
	added    []pinner.PinArgs
	replaced []pinner.ReplaceArgs
}

func (p *fakePinner) AddPin(ctx context.Context, args pinner.PinArgs) (*pinning.PinStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, args)
	if p.err != nil {
		return nil, p.err
	}
	return &pinning.PinStatus{RequestID: "req-1", Status: p.status, Pin: pinning.Pin{Cid: args.Cid.String()}}, nil
}

func (p *fakePinner) ReplacePin(ctx context.Context, args pinner.ReplaceArgs) (*pinning.PinStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replaced = append(p.replaced, args)
	if p.err != nil {
		return nil, p.err
	}
	return &pinning.PinStatus{RequestID: "req-2", Status: p.status}, nil
}

func (p *fakePinner) addCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.added)
}

type fakeService struct {
	err     error
	removed string
	listed  pinning.ListOptions
}

func (s *fakeService) Get(ctx context.Context, requestID string) (*pinning.PinStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &pinning.PinStatus{RequestID: requestID, Status: pinning.Pinning}, nil
}

func (s *fakeService) List(ctx context.Context, opts pinning.ListOptions) (*pinning.PinResults, error) {
	s.listed = opts
	return &pinning.PinResults{Count: 0, Results: []*pinning.PinStatus{}}, s.err
}

func (s *fakeService) Remove(ctx context.Context, requestID string) error {
	s.removed = requestID
	return s.err
}

func testLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func newAdmin(p *fakePinner, svc *fakeService, tokens ...config.AccessTokens) *gin.Engine {
	gin.SetMode(gin.TestMode)
	a := &Admin{
		net:          newFakeNet(),
		log:          testLog(),
		c:            &config.Config{},
		pinner:       p,
		svc:          svc,
		accessTokens: tokens,
	}
	return a.Handler()
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAdminAddPin(t *testing.T) {
	p := &fakePinner{status: pinning.Pinned}
	h := newAdmin(p, &fakeService{})

	w := do(h, "POST", "/pins", `{"cid":"`+testCid+`","name":"site","origins":["/ip4/1.2.3.4/tcp/4001"],"meta":{"app":"rpin"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	st := pinning.PinStatus{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, pinning.Pinned, st.Status)

	require.Len(t, p.added, 1)
	args := p.added[0]
	assert.Equal(t, testCid, args.Cid.String())
	assert.Equal(t, "site", args.Name)
	assert.Equal(t, map[string]string{"app": "rpin"}, args.Meta)
	require.Len(t, args.Origins, 1)
	assert.Equal(t, "/ip4/1.2.3.4/tcp/4001", args.Origins[0].String())
}

func TestAdminAddPinBadInput(t *testing.T) {
	p := &fakePinner{status: pinning.Pinned}
	h := newAdmin(p, &fakeService{})

	assert.Equal(t, http.StatusBadRequest, do(h, "POST", "/pins", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, "POST", "/pins", `{"cid":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, "POST", "/pins", `{"cid":"`+testCid+`","origins":["bogus"]}`).Code)
	assert.Empty(t, p.added)
}

func TestAdminReplacePin(t *testing.T) {
	p := &fakePinner{status: pinning.Queued}
	h := newAdmin(p, &fakeService{})

	w := do(h, "POST", "/pins/old-req", `{"cid":"`+testCid+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, p.replaced, 1)
	assert.Equal(t, "old-req", p.replaced[0].RequestID)
}

func TestAdminServiceErrors(t *testing.T) {
	p := &fakePinner{err: &pinning.Error{StatusCode: 404, Reason: "NOT_FOUND"}}
	h := newAdmin(p, &fakeService{})
	assert.Equal(t, http.StatusNotFound, do(h, "POST", "/pins/x", `{"cid":"`+testCid+`"}`).Code)

	p.err = errors.New("connection reset")
	assert.Equal(t, http.StatusBadGateway, do(h, "POST", "/pins", `{"cid":"`+testCid+`"}`).Code)
}

func TestAdminStatusListRemove(t *testing.T) {
	svc := &fakeService{}
	h := newAdmin(&fakePinner{}, svc)

	w := do(h, "GET", "/pins/req-7", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"requestid":"req-7"`)

	w = do(h, "GET", "/pins?status=queued,pinning&limit=3&cid=QmA,QmB", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []pinning.Status{pinning.Queued, pinning.Pinning}, svc.listed.Status)
	assert.Equal(t, 3, svc.listed.Limit)
	assert.Equal(t, []string{"QmA", "QmB"}, svc.listed.Cids)

	assert.Equal(t, http.StatusBadRequest, do(h, "GET", "/pins?limit=many", "").Code)

	w = do(h, "DELETE", "/pins/req-7", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "req-7", svc.removed)
}

func TestAdminID(t *testing.T) {
	h := newAdmin(&fakePinner{}, &fakeService{})

	w := do(h, "GET", "/id", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := idResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, testCid, res.ID)
	assert.Equal(t, []string{"/ip4/1.2.3.4/tcp/4001/p2p/" + testCid}, res.Addresses)
}

func TestAdminAccessToken(t *testing.T) {
	h := newAdmin(&fakePinner{}, &fakeService{}, config.AccessTokens{Name: "ops", Token: "t0k3n"})

	assert.Equal(t, http.StatusUnauthorized, do(h, "GET", "/id", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, "GET", "/id", "", "Token", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(h, "GET", "/id", "", "Token", "t0k3n").Code)
	assert.Equal(t, http.StatusOK, do(h, "GET", "/id", "", "Authorization", "Bearer t0k3n").Code)
}

func TestPinManagerAutoPin(t *testing.T) {
	net := newFakeNet()
	p := &fakePinner{status: pinning.Pinned}
	c := &config.Config{}
	c.Peers.PinFor = []string{"QmTrusted"}
	pm := &PinManager{pinner: p, net: net, c: c, log: testLog()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pm.Run(ctx)

	net.msgs <- &network.PubSubMessage{Kind: network.KindNewObject, From: "QmStranger", Data: []byte(testCid)}
	net.msgs <- &network.PubSubMessage{Kind: "peer_advertisement", From: "QmTrusted", Data: []byte(testCid)}
	net.msgs <- &network.PubSubMessage{Kind: network.KindNewObject, From: "QmTrusted", Data: []byte(testCid)}

	require.Eventually(t, func() bool { return len(net.sentMessages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, p.addCount())
	assert.Equal(t, map[string]string{"announcedBy": "QmTrusted"}, p.added[0].Meta)

	sent := net.sentMessages()[0]
	assert.Equal(t, network.KindPinned, sent.Kind)
	assert.Equal(t, testCid, string(sent.Data))
}

func TestPinManagerConnectsTrustedPeers(t *testing.T) {
	net := newFakeNet()
	c := &config.Config{}
	c.Peers.PinFor = []string{"QmTrusted", "QmOther"}
	pm := &PinManager{pinner: &fakePinner{}, net: net, c: c, log: testLog()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pm.Run(ctx)

	require.Eventually(t, func() bool { return len(net.connectCalls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"QmTrusted", "QmOther"}, net.connectCalls()[0])
}

func TestPinManagerPin(t *testing.T) {
	net := newFakeNet()
	p := &fakePinner{status: pinning.Queued}
	pm := &PinManager{pinner: p, net: net, c: &config.Config{}, log: testLog()}

	st, err := pm.Pin(context.Background(), testCid, "QmTrusted")
	require.NoError(t, err)
	assert.Equal(t, pinning.Queued, st.Status)
	// not confirmed, nothing announced
	assert.Empty(t, net.sentMessages())

	_, err = pm.Pin(context.Background(), "not-a-cid", "QmTrusted")
	assert.Error(t, err)
	assert.Equal(t, 1, p.addCount())

	p.err = errors.New("boom")
	_, err = pm.Pin(context.Background(), testCid, "QmTrusted")
	assert.True(t, strings.Contains(err.Error(), "boom"))
}
