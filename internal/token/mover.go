// internal/token/mover.go
package token

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/tarlanisaev/poolbridge/internal/authority"
	"github.com/tarlanisaev/poolbridge/internal/ledger"
)

// Mover builds the two privileged movements a pool can make: issuing
// liquidity shares and releasing reserves. Every call re-derives the pool
// authority from seeds and refuses any caller-supplied authority that does
// not match; the authority is proven, never trusted.
type Mover struct {
	programID solana.PublicKey
	logger    *zap.Logger
}

// NewMover creates a Mover for one settlement program id.
func NewMover(programID solana.PublicKey, logger *zap.Logger) *Mover {
	return &Mover{
		programID: programID,
		logger:    logger.Named("token_mover"),
	}
}

func (m *Mover) proveAuthority(pool *ledger.Pool, claimed solana.PublicKey) error {
	derived, _, err := authority.DeriveAuthority(m.programID, pool.Address)
	if err != nil {
		return fmt.Errorf("derive authority for %s: %w", pool.Address, err)
	}
	if !claimed.Equals(derived) || !pool.Authority.Equals(derived) {
		return fmt.Errorf("claimed %s, derived %s: %w", claimed, derived, ledger.ErrInvalidAuthority)
	}
	return nil
}

// IssueShares builds the mint of `amount` liquidity shares to `destination`,
// signed by the pool authority. A zero amount is unreachable here by
// contract; callers reject it before building the operation.
func (m *Mover) IssueShares(pool *ledger.Pool, poolAuthority, destination solana.PublicKey, amount uint64) (Operation, error) {
	if err := m.proveAuthority(pool, poolAuthority); err != nil {
		return Operation{}, err
	}
	return Operation{
		Kind:        OpMint,
		Mint:        pool.LPMint,
		Destination: destination,
		Amount:      amount,
		Authority:   poolAuthority,
	}, nil
}

// ReleaseReserve builds the transfer of `amount` units from one of the
// pool's two reserve custody accounts to `destination`. Any other source
// account is ErrInvalidPoolTokenAccount.
func (m *Mover) ReleaseReserve(pool *ledger.Pool, poolAuthority, reserveAccount, destination solana.PublicKey, amount uint64) (Operation, error) {
	if err := m.proveAuthority(pool, poolAuthority); err != nil {
		return Operation{}, err
	}
	if !reserveAccount.Equals(pool.TokenAAccount) && !reserveAccount.Equals(pool.TokenBAccount) {
		return Operation{}, fmt.Errorf("%s is not a reserve of pool %s: %w",
			reserveAccount, pool.Address, ledger.ErrInvalidPoolTokenAccount)
	}
	return Operation{
		Kind:        OpTransfer,
		Source:      reserveAccount,
		Destination: destination,
		Amount:      amount,
		Authority:   poolAuthority,
	}, nil
}

// BurnShares builds the burn of `amount` liquidity shares from a holder's
// account, signed by the holder. Used by the local remove-liquidity path;
// bridge completions never burn locally.
func (m *Mover) BurnShares(pool *ledger.Pool, holderAccount, holder solana.PublicKey, amount uint64) Operation {
	return Operation{
		Kind:      OpBurn,
		Mint:      pool.LPMint,
		Source:    holderAccount,
		Amount:    amount,
		Authority: holder,
	}
}
