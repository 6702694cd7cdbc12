package ws2p

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"duniter-core/core"
)

// fakeDial returns a Dialer that hands back the client end of an in-memory
// pipe, while a background goroutine hand-drives the responder side of the
// CONNECT/ACK/OK handshake using peerPK/peerSign.
func fakeDial(t *testing.T, currency string, peerPK core.PubKey, peerSign func([]byte) core.Signature) Dialer {
	t.Helper()
	return func(ctx context.Context, url string) (*websocket.Conn, error) {
		a, b := net.Pipe()
		client := websocket.NewConn(a, false, 4096, 4096)
		peer := websocket.NewConn(b, true, 4096, 4096)

		go func() {
			var connect HandshakeFrame
			if err := peer.ReadJSON(&connect); err != nil {
				return
			}
			reply := HandshakeFrame{Auth: "CONNECT", Currency: currency, PubKey: peerPK.String(), Challenge: "peerchallenge"}
			reply.Sign(peerSign)
			if err := peer.WriteJSON(reply); err != nil {
				return
			}
			var ack HandshakeFrame
			if err := peer.ReadJSON(&ack); err != nil {
				return
			}
			ackBack := HandshakeFrame{Auth: "ACK", Currency: currency, PubKey: peerPK.String(), Challenge: connect.Challenge}
			ackBack.Sign(peerSign)
			if err := peer.WriteJSON(ackBack); err != nil {
				return
			}
			var ok HandshakeFrame
			if err := peer.ReadJSON(&ok); err != nil {
				return
			}
			okBack := HandshakeFrame{Auth: "OK", Currency: currency, PubKey: peerPK.String(), Challenge: connect.Challenge}
			okBack.Sign(peerSign)
			_ = peer.WriteJSON(okBack)
		}()

		return client, nil
	}
}

func TestSchedulerWaveEstablishesWithinQuota(t *testing.T) {
	store, err := core.NewPeerStore(filepath.Join(t.TempDir(), "endpoints.json"))
	if err != nil {
		t.Fatalf("NewPeerStore: %v", err)
	}
	candidate := core.PubKey{}
	candidate[0] = 1
	store.Upsert(&core.PeerRecord{
		PubKey:    candidate,
		State:     core.PeerNeverTry,
		Endpoints: []core.Endpoint{{API: "WS2P", Host: "peer.example.org", Port: 20901}},
	}, true)

	selfPK, selfSign := signerFromSeed(t)
	peerPK, peerSign := signerFromSeed(t)
	self := Identity{Currency: "g1", PubKey: selfPK, Sign: selfSign}
	sched := NewScheduler(store, self, fakeDial(t, "g1", peerPK, peerSign), 5)

	var established core.PubKey
	sched.OnEstablished = func(pk core.PubKey, conn *Connection) { established = pk }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched.wave(ctx)

	if established != candidate {
		t.Fatalf("expected OnEstablished to fire for the candidate pubkey, got %v", established)
	}
	rec, ok := store.Get(candidate)
	if !ok || rec.State != core.PeerUp {
		t.Fatalf("expected candidate peer state to become Up, got %+v", rec)
	}
}

func TestSchedulerWaveRespectsQuota(t *testing.T) {
	store, err := core.NewPeerStore(filepath.Join(t.TempDir(), "endpoints.json"))
	if err != nil {
		t.Fatalf("NewPeerStore: %v", err)
	}
	for i := 0; i < 3; i++ {
		var pk core.PubKey
		pk[0] = byte(i + 1)
		store.Upsert(&core.PeerRecord{
			PubKey:    pk,
			State:     core.PeerNeverTry,
			Endpoints: []core.Endpoint{{API: "WS2P", Host: "peer.example.org", Port: 20901}},
		}, true)
	}

	selfPK, selfSign := signerFromSeed(t)
	peerPK, peerSign := signerFromSeed(t)
	self := Identity{Currency: "g1", PubKey: selfPK, Sign: selfSign}
	sched := NewScheduler(store, self, fakeDial(t, "g1", peerPK, peerSign), 1)

	established := 0
	sched.OnEstablished = func(pk core.PubKey, conn *Connection) { established++ }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched.wave(ctx)

	if established != 1 {
		t.Fatalf("expected exactly 1 connection established within quota=1, got %d", established)
	}
}
