package ws2p

import (
	"encoding/json"
	"fmt"
	"strings"

	"duniter-core/core"
)

// HandshakeFrame is the wire shape of CONNECT/ACK/OK (§4.H, §6):
// {auth, currency, pub, challenge, sig}.
type HandshakeFrame struct {
	Auth      string `json:"auth"` // "CONNECT" | "ACK" | "OK"
	Currency  string `json:"currency"`
	PubKey    string `json:"pub"`
	Challenge string `json:"challenge"`
	Signature string `json:"sig"`
}

// signedString is the text a handshake frame's signature covers: the
// frame's fields joined deterministically, excluding the signature.
func (f HandshakeFrame) signedString() string {
	return strings.Join([]string{f.Auth, f.Currency, f.PubKey, f.Challenge}, ":")
}

// Sign fills in f's signature over its own canonical string.
func (f *HandshakeFrame) Sign(priv func([]byte) core.Signature) {
	sig := priv([]byte(f.signedString()))
	f.Signature = sig.String()
}

// Verify checks f's signature against its claimed pubkey.
func (f HandshakeFrame) Verify() (bool, error) {
	pk, err := core.PubKeyFromBase58(f.PubKey)
	if err != nil {
		return false, fmt.Errorf("ws2p: handshake pubkey: %w", err)
	}
	sig, err := core.SignatureFromBase64(f.Signature)
	if err != nil {
		return false, fmt.Errorf("ws2p: handshake signature: %w", err)
	}
	return core.Verify(pk, []byte(f.signedString()), sig), nil
}

// RequestFrame is an outgoing request: {reqId, body: {name, params}}.
type RequestFrame struct {
	ReqID string          `json:"reqId"`
	Body  RequestBody     `json:"body"`
}

type RequestBody struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame is {resId, body} or {resId, err}.
type ResponseFrame struct {
	ResID string          `json:"resId"`
	Body  json.RawMessage `json:"body,omitempty"`
	Err   *ResponseError  `json:"err,omitempty"`
}

type ResponseError struct {
	Message string `json:"message"`
}

// PushFrame is an unsolicited document push: {body: {name, ...}}.
type PushFrame struct {
	Body json.RawMessage `json:"body"`
}

// pushEnvelope peeks the discriminant field of a push body without fully
// decoding it, matching the teacher's tolerant-decode idiom.
type pushEnvelope struct {
	Name string `json:"name"`
}

func peekPushName(body json.RawMessage) (string, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("ws2p: push envelope: %w", err)
	}
	return env.Name, nil
}

// HeadRecord is the compact HEAD gossip record (§4.H): a peer's
// self-announced position, signed over a canonical colon-joined encoding.
type HeadRecord struct {
	API            string
	Version        int
	PubKey         string
	Blockstamp     string
	NodeID         string
	Software       string
	SoftVersion    string
	Prefix         int
	FreeMemberRoom int
	FreeMirrorRoom int
	Signature      string
	Step           int // flood-radius counter, decremented on each re-propagation
}

func (h HeadRecord) signedString() string {
	return fmt.Sprintf("WS2P:%d:%s:%s:%s:%s:%s:%d:%d:%d",
		h.Version, h.PubKey, h.Blockstamp, h.NodeID, h.Software, h.SoftVersion,
		h.Prefix, h.FreeMemberRoom, h.FreeMirrorRoom)
}

// Verify checks a HEAD record's self-signature.
func (h HeadRecord) Verify() (bool, error) {
	pk, err := core.PubKeyFromBase58(h.PubKey)
	if err != nil {
		return false, err
	}
	sig, err := core.SignatureFromBase64(h.Signature)
	if err != nil {
		return false, err
	}
	return core.Verify(pk, []byte(h.signedString()), sig), nil
}

// ShouldPropagate reports whether this HEAD still has gossip budget left.
func (h HeadRecord) ShouldPropagate() bool { return h.Step > 0 }

// Decremented returns a copy of h with its step counter reduced by one,
// bounding the flood radius (§4.H).
func (h HeadRecord) Decremented() HeadRecord {
	h.Step--
	return h
}
