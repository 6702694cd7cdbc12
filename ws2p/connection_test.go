package ws2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// pipeConns returns two *websocket.Conn wired together over an in-memory
// net.Pipe, one acting as the client side of the WS2P handshake and the
// other as a hand-driven peer, without needing an actual HTTP upgrade.
func pipeConns(t *testing.T) (client, peer *websocket.Conn) {
	t.Helper()
	a, b := net.Pipe()
	client = websocket.NewConn(a, false, 4096, 4096)
	peer = websocket.NewConn(b, true, 4096, 4096)
	return client, peer
}

func TestConnectionHandshakeEstablishes(t *testing.T) {
	clientWS, peerWS := pipeConns(t)

	clientPK, clientSign := signerFromSeed(t)
	peerPK, peerSign := signerFromSeed(t)

	client := NewConnection(clientWS, Identity{Currency: "g1", PubKey: clientPK, Sign: clientSign})

	done := make(chan error, 1)
	go func() {
		// Hand-drive the peer side of CONNECT/ACK/OK.
		var connect HandshakeFrame
		if err := peerWS.ReadJSON(&connect); err != nil {
			done <- err
			return
		}
		reply := HandshakeFrame{Auth: "CONNECT", Currency: "g1", PubKey: peerPK.String(), Challenge: "peerchallenge"}
		reply.Sign(peerSign)
		if err := peerWS.WriteJSON(reply); err != nil {
			done <- err
			return
		}

		var ack HandshakeFrame
		if err := peerWS.ReadJSON(&ack); err != nil {
			done <- err
			return
		}
		ackBack := HandshakeFrame{Auth: "ACK", Currency: "g1", PubKey: peerPK.String(), Challenge: connect.Challenge}
		ackBack.Sign(peerSign)
		if err := peerWS.WriteJSON(ackBack); err != nil {
			done <- err
			return
		}

		var ok HandshakeFrame
		if err := peerWS.ReadJSON(&ok); err != nil {
			done <- err
			return
		}
		okBack := HandshakeFrame{Auth: "OK", Currency: "g1", PubKey: peerPK.String(), Challenge: connect.Challenge}
		okBack.Sign(peerSign)
		done <- peerWS.WriteJSON(okBack)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Handshake(ctx); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("peer side: %v", err)
	}
	if client.State() != Established {
		t.Fatalf("expected Established, got %v", client.State())
	}
}

func TestConnectionHandshakeRejectsCurrencyMismatch(t *testing.T) {
	clientWS, peerWS := pipeConns(t)
	clientPK, clientSign := signerFromSeed(t)
	peerPK, peerSign := signerFromSeed(t)

	client := NewConnection(clientWS, Identity{Currency: "g1", PubKey: clientPK, Sign: clientSign})

	go func() {
		var connect HandshakeFrame
		if err := peerWS.ReadJSON(&connect); err != nil {
			return
		}
		reply := HandshakeFrame{Auth: "CONNECT", Currency: "other-currency", PubKey: peerPK.String(), Challenge: "x"}
		reply.Sign(peerSign)
		_ = peerWS.WriteJSON(reply)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Handshake(ctx); err == nil {
		t.Fatalf("expected currency mismatch to abort the handshake")
	}
	if client.State() != Denial {
		t.Fatalf("expected state Denial after currency mismatch, got %v", client.State())
	}
}

func TestStateStringAndTerminal(t *testing.T) {
	if Established.String() != "Established" {
		t.Fatalf("unexpected String(): %s", Established.String())
	}
	if !Denial.terminal() {
		t.Fatalf("expected Denial to be a terminal state")
	}
	if Established.terminal() {
		t.Fatalf("expected Established to not be terminal")
	}
}
