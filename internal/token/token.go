// internal/token/token.go
package token

import (
	"github.com/gagliardetto/solana-go"
)

// OpKind discriminates the three balance movements the settlement core ever
// performs.
type OpKind uint8

const (
	OpMint OpKind = iota
	OpTransfer
	OpBurn
)

// Operation is one balance movement. Operations are validated and applied by
// a Bank in fail-atomic batches; an Operation on its own moves nothing.
type Operation struct {
	Kind        OpKind
	Mint        solana.PublicKey // mint for OpMint/OpBurn
	Source      solana.PublicKey // source account for OpTransfer/OpBurn
	Destination solana.PublicKey // destination account for OpMint/OpTransfer
	Amount      uint64
	// Authority must be the owner of the moved funds: the pool's derived
	// authority for reserve releases and LP mints, the user for deposits
	// and burns.
	Authority solana.PublicKey
}

// Bank is the external token ledger. Apply executes a batch of operations
// all-or-nothing: if any operation cannot be applied, none of them are.
// Idempotence against replay is not the Bank's job; calling Apply twice
// moves value twice.
type Bank interface {
	Apply(ops ...Operation) error
	Balance(account solana.PublicKey) (uint64, error)
}

// AccountManager extends Bank with the administration calls pool creation
// needs: declaring the LP mint and opening the custody accounts.
type AccountManager interface {
	Bank
	RegisterMint(mint, mintAuthority solana.PublicKey)
	CreateAccount(address, mint, owner solana.PublicKey) error
}
