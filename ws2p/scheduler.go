package ws2p

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"duniter-core/core"
)

var schedulerLog = logrus.WithField("subsystem", "ws2p.scheduler")

// OutcomingInterval is the wave period of the outgoing connection
// scheduler (WS2P_OUTCOMING_INTERVAL, §4.H).
const OutcomingInterval = 30 * time.Second

// Dialer opens a new outgoing connection to an endpoint's host:port; split
// out so tests can substitute a fake without touching real sockets.
type Dialer func(ctx context.Context, url string) (*websocket.Conn, error)

// DefaultDialer dials a real WS2P endpoint over gorilla/websocket.
func DefaultDialer(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

// Scheduler maintains at most Quota established outgoing connections,
// trying unfilled slots every OutcomingInterval, preferring endpoints in
// state NeverTry/Close/Denial before retrying Unreachable (§4.H).
type Scheduler struct {
	Peers  *core.PeerStore
	Self   Identity
	Dial   Dialer
	Quota  int

	active map[core.PubKey]*Connection

	OnEstablished func(pk core.PubKey, conn *Connection)
}

// NewScheduler returns a scheduler with the given outgoing quota.
func NewScheduler(peers *core.PeerStore, self Identity, dial Dialer, quota int) *Scheduler {
	return &Scheduler{Peers: peers, Self: self, Dial: dial, Quota: quota, active: make(map[core.PubKey]*Connection)}
}

// Run drives the wave loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(OutcomingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wave(ctx)
		}
	}
}

func (s *Scheduler) wave(ctx context.Context) {
	slots := s.Quota - len(s.active)
	if slots <= 0 {
		return
	}
	candidates := s.Peers.ByState(core.PeerNeverTry, core.PeerClose, core.PeerDenial)
	candidates = append(candidates, s.Peers.ByState(core.PeerUnreachable)...)

	for _, rec := range candidates {
		if slots <= 0 {
			return
		}
		if _, already := s.active[rec.PubKey]; already {
			continue
		}
		if len(rec.Endpoints) == 0 {
			continue
		}
		ep := rec.Endpoints[0]
		url := endpointURL(ep)
		ws, err := s.Dial(ctx, url)
		if err != nil {
			s.Peers.SetState(rec.PubKey, core.PeerUnreachable, time.Now().Unix())
			schedulerLog.Warnf("ws2p: dial %s failed: %v", url, err)
			continue
		}
		conn := NewConnection(ws, s.Self)
		if err := conn.Handshake(ctx); err != nil {
			s.Peers.SetState(rec.PubKey, core.PeerDenial, time.Now().Unix())
			_ = ws.Close()
			continue
		}
		s.active[rec.PubKey] = conn
		s.Peers.SetState(rec.PubKey, core.PeerUp, time.Now().Unix())
		slots--
		if s.OnEstablished != nil {
			s.OnEstablished(rec.PubKey, conn)
		}
	}
}

// endpointURL builds a ws:// URL from an advertised endpoint, upgrading
// to wss:// for TLS-conventional ports.
func endpointURL(ep core.Endpoint) string {
	scheme := "ws"
	if ep.Port == 443 {
		scheme = "wss"
	}
	path := ep.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + ep.Host + ":" + portString(ep.Port) + path
}

func portString(p uint16) string {
	const digits = "0123456789"
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = digits[p%10]
		p /= 10
	}
	return string(buf[i:])
}
