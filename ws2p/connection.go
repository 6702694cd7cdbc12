package ws2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"duniter-core/core"
)

var connLog = logrus.WithField("subsystem", "ws2p")

const (
	// HandshakeTimeout bounds the CONNECT/ACK/OK negotiation (§4.H, §5).
	HandshakeTimeout = 15 * time.Second
	// RequestTimeout bounds a single request/response round trip (§4.H, §5).
	RequestTimeout = 20 * time.Second
	// SpamLimit and SpamInterval implement the anti-spam cooldown (§4.H).
	SpamLimit                     = 30
	SpamIntervalInMilliSeconds    = 1000
	// ExpireTimeout closes a connection idle past this duration (§4.H, §5).
	ExpireTimeout = 60 * time.Second
)

// Identity is this node's own keypair and declared metadata, used to sign
// CONNECT/ACK/OK and HEAD frames.
type Identity struct {
	Currency core.Currency
	PubKey   core.PubKey
	Sign     func([]byte) core.Signature
	NodeID   string
	Software string
	Version  string
}

// pendingRequest tracks one in-flight request awaiting its response.
type pendingRequest struct {
	reply   chan ResponseFrame
	created time.Time
}

// Connection is a single WS2P peer connection: its handshake state
// machine, its request/response table, and its anti-spam counters.
type Connection struct {
	mu    sync.Mutex
	state State
	ws    *websocket.Conn
	self  Identity
	peer  core.PubKey

	localChallenge  string
	remoteChallenge string

	pending map[string]*pendingRequest

	msgTimestamps []time.Time
	lastActivity  time.Time

	// OnBlocks/OnHead/OnPeer feed parsed payloads up to the engine; the
	// connection itself never touches the stores (§5). No push kind is
	// routed to OnDocuments: routePush logs document pushes as unhandled.
	OnBlocks    func(blocks []*core.Block)
	OnHead      func(h HeadRecord)
	OnPeer      func(rec *core.PeerRecord)
	OnDocuments func(docs *core.Identity, ms *core.Membership, cert *core.Certification, rev *core.Revocation, tx *core.Transaction)
}

// NewConnection wraps an already-dialed/accepted websocket in a fresh
// WS2P connection in state NeverTry.
func NewConnection(ws *websocket.Conn, self Identity) *Connection {
	return &Connection{
		state:        NeverTry,
		ws:           ws,
		self:         self,
		pending:      make(map[string]*pendingRequest),
		lastActivity: time.Now(),
	}
}

func randomChallenge() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Handshake drives the outgoing side of the three-message CONNECT/ACK/OK
// negotiation (§4.H). It must complete within HandshakeTimeout or the
// connection is recorded as NegociationTimeout.
func (c *Connection) Handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()
	readFailed := func() {
		if ctx.Err() == context.DeadlineExceeded {
			c.setState(NegociationTimeout)
			return
		}
		c.setState(NoResponse)
	}

	c.setState(TryToOpenWS)
	c.localChallenge = randomChallenge()

	connect := HandshakeFrame{Auth: "CONNECT", Currency: string(c.self.Currency), PubKey: c.self.PubKey.String(), Challenge: c.localChallenge}
	connect.Sign(c.self.Sign)
	if err := c.writeJSON(connect); err != nil {
		c.setState(WSError)
		return fmt.Errorf("ws2p: write CONNECT: %w", err)
	}
	c.setState(WaitingConnectMess)

	remoteConnect, err := c.readHandshake(ctx)
	if err != nil {
		readFailed()
		return err
	}
	if remoteConnect.Auth != "CONNECT" {
		c.setState(Denial)
		return fmt.Errorf("ws2p: expected CONNECT, got %s", remoteConnect.Auth)
	}
	if remoteConnect.Currency != string(c.self.Currency) {
		c.setState(Denial)
		return fmt.Errorf("ws2p: currency mismatch")
	}
	ok, err := remoteConnect.Verify()
	if err != nil || !ok {
		c.setState(Denial)
		return fmt.Errorf("ws2p: CONNECT signature invalid")
	}
	peerPK, err := core.PubKeyFromBase58(remoteConnect.PubKey)
	if err != nil {
		c.setState(Denial)
		return err
	}
	c.peer = peerPK
	c.remoteChallenge = remoteConnect.Challenge
	c.setState(ConnectMessOk)

	ack := HandshakeFrame{Auth: "ACK", Currency: string(c.self.Currency), PubKey: c.self.PubKey.String(), Challenge: c.remoteChallenge}
	ack.Sign(c.self.Sign)
	if err := c.writeJSON(ack); err != nil {
		c.setState(WSError)
		return err
	}
	c.setState(OkMessOkWaitingAckMess)

	remoteAck, err := c.readHandshake(ctx)
	if err != nil {
		readFailed()
		return err
	}
	if remoteAck.Auth != "ACK" {
		c.setState(Denial)
		return fmt.Errorf("ws2p: expected ACK, got %s", remoteAck.Auth)
	}
	if remoteAck.Challenge != c.localChallenge {
		c.setState(Denial)
		return fmt.Errorf("ws2p: ACK does not cover our challenge")
	}
	if ok, err := remoteAck.Verify(); err != nil || !ok {
		c.setState(Denial)
		return fmt.Errorf("ws2p: ACK signature invalid")
	}
	c.setState(AckMessOk)

	okFrame := HandshakeFrame{Auth: "OK", Currency: string(c.self.Currency), PubKey: c.self.PubKey.String(), Challenge: c.remoteChallenge}
	okFrame.Sign(c.self.Sign)
	if err := c.writeJSON(okFrame); err != nil {
		c.setState(WSError)
		return err
	}

	remoteOK, err := c.readHandshake(ctx)
	if err != nil {
		readFailed()
		return err
	}
	if remoteOK.Auth != "OK" || remoteOK.Challenge != c.localChallenge {
		c.setState(Denial)
		return fmt.Errorf("ws2p: invalid OK")
	}
	if ok, err := remoteOK.Verify(); err != nil || !ok {
		c.setState(Denial)
		return fmt.Errorf("ws2p: OK signature invalid")
	}

	c.setState(Established)
	c.touch()
	return nil
}

func (c *Connection) readHandshake(ctx context.Context) (HandshakeFrame, error) {
	type result struct {
		frame HandshakeFrame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		var f HandshakeFrame
		err := c.ws.ReadJSON(&f)
		ch <- result{f, err}
	}()
	select {
	case r := <-ch:
		return r.frame, r.err
	case <-ctx.Done():
		return HandshakeFrame{}, fmt.Errorf("ws2p: handshake timeout: %w", ctx.Err())
	}
}

func (c *Connection) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Idle reports whether the connection has been silent past ExpireTimeout.
func (c *Connection) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity) > ExpireTimeout
}

// spamCheck implements the §4.H anti-spam rule: more than SpamLimit
// messages within SpamIntervalInMilliSeconds triggers a cooldown,
// reported to the caller so it can sleep before processing further input.
func (c *Connection) spamCheck() (cooldown bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	window := now.Add(-time.Duration(SpamIntervalInMilliSeconds) * time.Millisecond)
	kept := c.msgTimestamps[:0:0]
	for _, t := range c.msgTimestamps {
		if t.After(window) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	c.msgTimestamps = kept
	return len(kept) > SpamLimit
}

// SendRequest issues a request frame and blocks (up to RequestTimeout, or
// until ctx is cancelled) for the matching response (§4.H).
func (c *Connection) SendRequest(ctx context.Context, name string, params any) (ResponseFrame, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	reqID := uuid.New().String()[:8]
	var raw json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return ResponseFrame{}, err
		}
		raw = encoded
	}
	reply := make(chan ResponseFrame, 1)
	c.mu.Lock()
	c.pending[reqID] = &pendingRequest{reply: reply, created: time.Now()}
	c.mu.Unlock()

	frame := RequestFrame{ReqID: reqID, Body: RequestBody{Name: name, Params: raw}}
	if err := c.writeJSON(frame); err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return ResponseFrame{}, err
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return ResponseFrame{}, fmt.Errorf("ws2p: request %q timed out: %w", name, ctx.Err())
	}
}

// ReadLoop runs on its own goroutine per §5 ("one reader thread per
// socket"), decoding frames and routing them to pending requests, the
// session callbacks, or logging and dropping unrecognized shapes.
func (c *Connection) ReadLoop(ctx context.Context) {
	for {
		if c.Idle() {
			c.setState(Close)
			return
		}
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.setState(WSError)
			connLog.Warnf("ws2p read error: %v", err)
			return
		}
		c.touch()
		if c.spamCheck() {
			time.Sleep(time.Duration(SpamIntervalInMilliSeconds) * time.Millisecond)
			continue
		}
		c.routeFrame(raw)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Connection) routeFrame(raw []byte) {
	var probe struct {
		ResID string          `json:"resId"`
		ReqID string          `json:"reqId"`
		Body  json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		connLog.Warnf("ws2p: malformed frame: %v", err)
		return
	}
	if probe.ResID != "" {
		var resp ResponseFrame
		if err := json.Unmarshal(raw, &resp); err != nil {
			connLog.Warnf("ws2p: malformed response: %v", err)
			return
		}
		c.mu.Lock()
		pr, ok := c.pending[resp.ResID]
		if ok {
			delete(c.pending, resp.ResID)
		}
		c.mu.Unlock()
		if ok {
			pr.reply <- resp
		}
		return
	}
	if probe.ReqID != "" {
		// Incoming request: request handling is dispatched by the server
		// side (outside this file) since it needs store read access.
		return
	}
	if probe.Body != nil {
		c.routePush(probe.Body)
	}
}

func (c *Connection) routePush(body json.RawMessage) {
	name, err := peekPushName(body)
	if err != nil {
		connLog.Warnf("ws2p: malformed push: %v", err)
		return
	}
	switch name {
	case "HEAD":
		var h HeadRecord
		if err := json.Unmarshal(body, &h); err == nil && c.OnHead != nil {
			c.OnHead(h)
		}
	case "BLOCK":
		var b core.Block
		if err := json.Unmarshal(body, &b); err == nil && c.OnBlocks != nil {
			c.OnBlocks([]*core.Block{&b})
		}
	case "PEER":
		var rec core.PeerRecord
		if err := json.Unmarshal(body, &rec); err == nil && c.OnPeer != nil {
			c.OnPeer(&rec)
		}
	default:
		connLog.Debugf("ws2p: unhandled push kind %q", name)
	}
}
