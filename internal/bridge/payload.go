// internal/bridge/payload.go
package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/tarlanisaev/poolbridge/internal/ledger"
)

// Operation selector, the first byte of every completion payload.
const (
	OpAddLiquidityCompletion    uint8 = 0
	OpRemoveLiquidityCompletion uint8 = 1
)

// Payload is the closed union of completion instructions a message can carry.
// Unknown selectors are a hard error, never a default branch.
type Payload interface {
	Selector() uint8
	// PoolID and Recipient are the two binding fields every variant carries;
	// the processor checks them against the targeted pool and the
	// caller-supplied recipient before anything moves.
	PoolID() ledger.PoolID
	RecipientAddress() [32]byte

	isPayload()
}

// AddLiquidityCompletion instructs the pool to issue liquidity shares to the
// recipient; the matching reserve increase already happened on the
// originating chain.
type AddLiquidityCompletion struct {
	OriginalPoolID [32]byte
	Recipient      [32]byte
	LpAmountToMint uint64
}

func (p *AddLiquidityCompletion) Selector() uint8            { return OpAddLiquidityCompletion }
func (p *AddLiquidityCompletion) PoolID() ledger.PoolID      { return p.OriginalPoolID }
func (p *AddLiquidityCompletion) RecipientAddress() [32]byte { return p.Recipient }
func (p *AddLiquidityCompletion) isPayload()                 {}

// RemoveLiquidityCompletion instructs the pool to release both reserves to
// the recipient; the share burn already happened on the originating chain.
type RemoveLiquidityCompletion struct {
	OriginalPoolID    [32]byte
	Recipient         [32]byte
	AmountAToTransfer uint64
	AmountBToTransfer uint64
}

func (p *RemoveLiquidityCompletion) Selector() uint8            { return OpRemoveLiquidityCompletion }
func (p *RemoveLiquidityCompletion) PoolID() ledger.PoolID      { return p.OriginalPoolID }
func (p *RemoveLiquidityCompletion) RecipientAddress() [32]byte { return p.Recipient }
func (p *RemoveLiquidityCompletion) isPayload()                 {}

const (
	addCompletionSize    = 32 + 32 + 8
	removeCompletionSize = 32 + 32 + 8 + 8
)

// ParsePayload decodes a raw message payload into its typed variant.
// Admission (non-empty) and selector dispatch happen here; structural decode
// failure of the remaining bytes is ErrInvalidVaaPayload, an unknown selector
// is ErrInvalidBridgeOperation.
func ParsePayload(data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload: %w", ledger.ErrInvalidVaaPayload)
	}

	selector := data[0]
	body := data[1:]

	switch selector {
	case OpAddLiquidityCompletion:
		if len(body) != addCompletionSize {
			return nil, fmt.Errorf("add completion body is %d bytes, want %d: %w",
				len(body), addCompletionSize, ledger.ErrInvalidVaaPayload)
		}
		var p AddLiquidityCompletion
		if err := bin.NewBorshDecoder(body).Decode(&p); err != nil {
			return nil, fmt.Errorf("decode add completion: %w", ledger.ErrInvalidVaaPayload)
		}
		return &p, nil

	case OpRemoveLiquidityCompletion:
		if len(body) != removeCompletionSize {
			return nil, fmt.Errorf("remove completion body is %d bytes, want %d: %w",
				len(body), removeCompletionSize, ledger.ErrInvalidVaaPayload)
		}
		var p RemoveLiquidityCompletion
		if err := bin.NewBorshDecoder(body).Decode(&p); err != nil {
			return nil, fmt.Errorf("decode remove completion: %w", ledger.ErrInvalidVaaPayload)
		}
		return &p, nil

	default:
		return nil, fmt.Errorf("unknown operation selector %d: %w",
			selector, ledger.ErrInvalidBridgeOperation)
	}
}

// EncodePayload serializes a payload the way the originating chain does:
// selector byte, then the little-endian body. Used by tests and by tooling
// that fabricates completions against a local deployment.
func EncodePayload(p Payload) []byte {
	var buf bytes.Buffer
	buf.WriteByte(p.Selector())

	var u64buf [8]byte
	switch v := p.(type) {
	case *AddLiquidityCompletion:
		buf.Write(v.OriginalPoolID[:])
		buf.Write(v.Recipient[:])
		binary.LittleEndian.PutUint64(u64buf[:], v.LpAmountToMint)
		buf.Write(u64buf[:])
	case *RemoveLiquidityCompletion:
		buf.Write(v.OriginalPoolID[:])
		buf.Write(v.Recipient[:])
		binary.LittleEndian.PutUint64(u64buf[:], v.AmountAToTransfer)
		buf.Write(u64buf[:])
		binary.LittleEndian.PutUint64(u64buf[:], v.AmountBToTransfer)
		buf.Write(u64buf[:])
	}
	return buf.Bytes()
}
