// internal/ledger/pool.go
package ledger

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Status is the pool lifecycle state.
type Status uint8

const (
	StatusActive Status = iota
	StatusPaused
)

// PoolID is the 32-byte identifier of a logical pool, stable across chains.
// A completion message minted on the originating chain carries this id and is
// only ever applied to the pool that stores the same one.
type PoolID [32]byte

// Pool is the authoritative record of one asset pair: reserve custody
// accounts, liquidity-share supply, fee accrual and lifecycle state. Reserve
// amounts themselves live on the token ledger as the balances of
// TokenAAccount/TokenBAccount; the record stores the addresses, not the
// numbers.
type Pool struct {
	Address   solana.PublicKey
	Authority solana.PublicKey

	TokenAMint    solana.PublicKey
	TokenBMint    solana.PublicKey
	TokenAAccount solana.PublicKey
	TokenBAccount solana.PublicKey
	LPMint        solana.PublicKey

	FeeBasisPoints       uint64
	TotalLiquidityShares uint64
	ProtocolFeeA         uint64
	ProtocolFeeB         uint64

	PoolID        PoolID
	Status        Status
	LastUpdatedAt int64

	// Derivation indices; every privileged mutation re-derives the
	// authority and reserve addresses from seeds and these bumps instead of
	// trusting caller-supplied ones.
	Bump          uint8
	AuthorityBump uint8
	LPMintBump    uint8
	TokenABump    uint8
	TokenBBump    uint8
}

// RequireActive fails with ErrPoolPaused unless the pool accepts mutations.
func (p *Pool) RequireActive() error {
	switch p.Status {
	case StatusActive:
		return nil
	case StatusPaused:
		return ErrPoolPaused
	default:
		return ErrInvalidPoolStatus
	}
}

// ApplyShareIssue increments the liquidity-share supply. The caller must have
// already moved (or proven) the matching reserve increase; this only records
// the supply side.
func (p *Pool) ApplyShareIssue(amount uint64) error {
	if amount == 0 {
		return ErrZeroLiquidityMinted
	}
	if p.TotalLiquidityShares > ^uint64(0)-amount {
		return ErrOverflow
	}
	p.TotalLiquidityShares += amount
	p.touch()
	return nil
}

// ApplyShareBurn decrements the liquidity-share supply. Whether the burning
// party actually holds the shares is checked by the caller against the token
// ledger; the record only guards the supply arithmetic.
func (p *Pool) ApplyShareBurn(amount uint64) error {
	if amount == 0 {
		return ErrZeroLiquidityBurned
	}
	if amount > p.TotalLiquidityShares {
		return ErrUnderflow
	}
	p.TotalLiquidityShares -= amount
	p.touch()
	return nil
}

// AccrueProtocolFee adds withheld protocol fees to the accrual counters.
func (p *Pool) AccrueProtocolFee(feeA, feeB uint64) error {
	if p.ProtocolFeeA > ^uint64(0)-feeA || p.ProtocolFeeB > ^uint64(0)-feeB {
		return ErrOverflow
	}
	p.ProtocolFeeA += feeA
	p.ProtocolFeeB += feeB
	p.touch()
	return nil
}

// Pause stops all reserve and share mutations until Resume.
func (p *Pool) Pause() {
	p.Status = StatusPaused
	p.touch()
}

// Resume reactivates a paused pool.
func (p *Pool) Resume() {
	p.Status = StatusActive
	p.touch()
}

// Touch records a mutation without changing any accounting field, for
// operations whose balance effects live entirely on the token ledger.
func (p *Pool) Touch() {
	p.touch()
}

// Clone returns an independent copy, used by unit-of-work snapshots.
func (p *Pool) Clone() *Pool {
	c := *p
	return &c
}

func (p *Pool) touch() {
	p.LastUpdatedAt = time.Now().UTC().Unix()
}
