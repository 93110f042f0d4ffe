// internal/ledger/errors.go
package ledger

import "errors"

// MaxFeeBasisPoints caps a pool's fee rate at 100%.
const MaxFeeBasisPoints = 10_000

// Error kinds surfaced by the settlement core. The set is closed: every
// rejection maps to exactly one of these, callers classify with errors.Is.
var (
	ErrPoolPaused              = errors.New("the specified pool is paused")
	ErrSlippageExceeded        = errors.New("slippage tolerance exceeded")
	ErrZeroLiquidityMinted     = errors.New("attempted to mint zero liquidity tokens")
	ErrZeroLiquidityBurned     = errors.New("attempted to burn zero liquidity tokens")
	ErrInsufficientLpTokens    = errors.New("insufficient LP tokens")
	ErrPoolEmpty               = errors.New("cannot remove liquidity from an empty pool")
	ErrInvalidPoolTokenAccount = errors.New("invalid pool token account provided")
	ErrInvalidMint             = errors.New("invalid token mint provided")
	ErrInvalidOwner            = errors.New("invalid token account owner")
	ErrInvalidVaaPayload       = errors.New("invalid VAA payload")
	ErrInvalidBridgeOperation  = errors.New("invalid bridge operation type in VAA")
	ErrVaaAlreadyProcessed     = errors.New("this VAA has already been processed")
	ErrPoolIdMismatch          = errors.New("VAA payload does not target this pool")
	ErrRecipientMismatch       = errors.New("VAA payload names a different recipient")
	ErrOverflow                = errors.New("calculation overflow")
	ErrUnderflow               = errors.New("calculation underflow")
	ErrInvalidAuthority        = errors.New("invalid authority")
	ErrInvalidFeeRate          = errors.New("fee rate exceeds 100 percent")
	ErrInvalidPoolStatus       = errors.New("invalid pool status")
	ErrPoolExists              = errors.New("pool already exists for this token pair")
	ErrPoolNotFound            = errors.New("pool not found")
)

// IsRejection reports whether err is one of the settlement error kinds, as
// opposed to an infrastructure failure (storage, transport). Rejections are
// terminal for a given request; resubmitting the same request will fail the
// same way.
func IsRejection(err error) bool {
	for _, kind := range []error{
		ErrPoolPaused, ErrSlippageExceeded,
		ErrZeroLiquidityMinted, ErrZeroLiquidityBurned, ErrInsufficientLpTokens,
		ErrPoolEmpty, ErrInvalidPoolTokenAccount, ErrInvalidMint, ErrInvalidOwner,
		ErrInvalidVaaPayload, ErrInvalidBridgeOperation, ErrVaaAlreadyProcessed,
		ErrPoolIdMismatch, ErrRecipientMismatch,
		ErrOverflow, ErrUnderflow,
		ErrInvalidAuthority, ErrInvalidFeeRate, ErrInvalidPoolStatus, ErrPoolExists,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
