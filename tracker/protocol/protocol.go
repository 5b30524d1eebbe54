// Package protocol defines the messages exchanged between the tracker and peers.
//
// Both directions are tagged unions encoded as a CBOR map with exactly one key,
// the variant name, whose value holds the variant fields:
//
//	{"Ping": {"address": "abc.onion", "port": 6102}}
package protocol

import (
	"errors"
	"fmt"

	"sentinel/datamodel/mempool"

	"github.com/fxamacker/cbor/v2"
)

var ErrNoVariant = errors.New("message carries no variant")

// Ping announces the tracker's own contact endpoint to a peer.
type Ping struct {
	Address string `cbor:"address"`
	Port    uint16 `cbor:"port"`
}

// Address lists the currently active peers.
type Address struct {
	Addresses []string `cbor:"addresses"`
}

// WatchResponse lists unconfirmed transactions spending a watched outpoint.
type WatchResponse struct {
	MempoolTx []mempool.Tx `cbor:"mempool_tx"`
}

// Pong confirms liveness and declares the peer's own address.
type Pong struct {
	Address string `cbor:"address"`
}

// Post registers a peer with the tracker.
type Post struct {
	Address string `cbor:"address"`
}

// Get asks for the active roster.
type Get struct{}

// Watch asks for mempool transactions spending an outpoint.
type Watch struct {
	Outpoint mempool.Outpoint `cbor:"outpoint"`
}

// ServerMessage is sent by the tracker.
type ServerMessage struct {
	Ping          *Ping          `cbor:"Ping,omitempty"`
	Address       *Address       `cbor:"Address,omitempty"`
	WatchResponse *WatchResponse `cbor:"WatchResponse,omitempty"`
}

// ClientMessage is sent by peers.
type ClientMessage struct {
	Pong  *Pong  `cbor:"Pong,omitempty"`
	Post  *Post  `cbor:"Post,omitempty"`
	Get   *Get   `cbor:"Get,omitempty"`
	Watch *Watch `cbor:"Watch,omitempty"`
}

func NewPing(address string, port uint16) *ServerMessage {
	return &ServerMessage{Ping: &Ping{Address: address, Port: port}}
}

func NewAddress(addresses []string) *ServerMessage {
	return &ServerMessage{Address: &Address{Addresses: addresses}}
}

func NewWatchResponse(txs []mempool.Tx) *ServerMessage {
	return &ServerMessage{WatchResponse: &WatchResponse{MempoolTx: txs}}
}

func NewPong(address string) *ClientMessage {
	return &ClientMessage{Pong: &Pong{Address: address}}
}

func NewPost(address string) *ClientMessage {
	return &ClientMessage{Post: &Post{Address: address}}
}

func NewGet() *ClientMessage {
	return &ClientMessage{Get: &Get{}}
}

func NewWatch(o mempool.Outpoint) *ClientMessage {
	return &ClientMessage{Watch: &Watch{Outpoint: o}}
}

// Kind returns the variant name, or "" when none is set.
func (m *ServerMessage) Kind() string {
	switch {
	case m.Ping != nil:
		return "Ping"
	case m.Address != nil:
		return "Address"
	case m.WatchResponse != nil:
		return "WatchResponse"
	}
	return ""
}

func (m *ServerMessage) Validate() error {
	return exactlyOne(m.Ping != nil, m.Address != nil, m.WatchResponse != nil)
}

// Kind returns the variant name, or "" when none is set.
func (m *ClientMessage) Kind() string {
	switch {
	case m.Pong != nil:
		return "Pong"
	case m.Post != nil:
		return "Post"
	case m.Get != nil:
		return "Get"
	case m.Watch != nil:
		return "Watch"
	}
	return ""
}

// UnmarshalCBOR also accepts a unit variant sent as a bare text string ("Get"),
// the form serde encoders produce for variants without fields.
func (m *ClientMessage) UnmarshalCBOR(data []byte) error {
	var unit string
	if err := cbor.Unmarshal(data, &unit); err == nil {
		if unit != "Get" {
			return fmt.Errorf("unknown unit variant %q", unit)
		}
		*m = ClientMessage{Get: &Get{}}
		return nil
	}

	type plain ClientMessage
	var p plain
	if err := cbor.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = ClientMessage(p)
	return nil
}

func (m *ClientMessage) Validate() error {
	return exactlyOne(m.Pong != nil, m.Post != nil, m.Get != nil, m.Watch != nil)
}

func exactlyOne(set ...bool) error {
	n := 0
	for _, s := range set {
		if s {
			n++
		}
	}
	switch {
	case n == 0:
		return ErrNoVariant
	case n > 1:
		return fmt.Errorf("message carries %d variants, expected one", n)
	}
	return nil
}
