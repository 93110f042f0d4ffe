// internal/bridge/message.go
package bridge

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Message is a cross-chain message after external verification. The core
// trusts this tuple completely: authenticity was proven by the bridge before
// the message ever reaches the settlement processor, and is not re-checked
// here. What remains our job is uniqueness (registry) and binding (payload
// against pool and recipient).
type Message struct {
	EmitterChain   uint16
	EmitterAddress [32]byte
	Sequence       uint64
	Payload        []byte
}

// Identity is the globally unique key of a message. Two messages with the
// same identity are the same message, whatever their payload bytes claim.
type Identity struct {
	EmitterChain   uint16
	EmitterAddress [32]byte
	Sequence       uint64
}

// Identity returns the registry key for this message.
func (m *Message) Identity() Identity {
	return Identity{
		EmitterChain:   m.EmitterChain,
		EmitterAddress: m.EmitterAddress,
		Sequence:       m.Sequence,
	}
}

// String renders the identity as chain/emitter/sequence for logs and storage
// keys. The emitter is base58 like any other 32-byte address on this side.
func (id Identity) String() string {
	return fmt.Sprintf("%d/%s/%d", id.EmitterChain, base58.Encode(id.EmitterAddress[:]), id.Sequence)
}
