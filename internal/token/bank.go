// internal/token/bank.go
package token

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/tarlanisaev/poolbridge/internal/ledger"
)

// Account is one token account on the in-process bank.
type Account struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64
}

// MemoryBank is the in-process token ledger. It stands in for the external
// token program in single-process deployments and tests: same contract,
// fail-atomic batches, owner- and mint-checked movements.
type MemoryBank struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
	// minters maps each mint to its sole mint authority.
	minters map[solana.PublicKey]solana.PublicKey
}

// NewMemoryBank creates an empty bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		accounts: make(map[solana.PublicKey]*Account),
		minters:  make(map[solana.PublicKey]solana.PublicKey),
	}
}

// RegisterMint declares a mint and the only authority allowed to issue it.
func (b *MemoryBank) RegisterMint(mint, mintAuthority solana.PublicKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minters[mint] = mintAuthority
}

// CreateAccount opens a zero-balance token account.
func (b *MemoryBank) CreateAccount(address, mint, owner solana.PublicKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[address]; ok {
		return fmt.Errorf("account %s already exists", address)
	}
	if _, ok := b.minters[mint]; !ok {
		return fmt.Errorf("account %s: %w", address, ledger.ErrInvalidMint)
	}
	b.accounts[address] = &Account{Address: address, Mint: mint, Owner: owner}
	return nil
}

// Balance returns the current amount on an account.
func (b *MemoryBank) Balance(account solana.PublicKey) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.accounts[account]
	if !ok {
		return 0, fmt.Errorf("account %s: %w", account, ledger.ErrInvalidPoolTokenAccount)
	}
	return acc.Amount, nil
}

// Account returns a copy of an account's current state.
func (b *MemoryBank) Account(address solana.PublicKey) (Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.accounts[address]
	if !ok {
		return Account{}, fmt.Errorf("account %s: %w", address, ledger.ErrInvalidPoolTokenAccount)
	}
	return *acc, nil
}

// Apply validates every operation against a staged view of the touched
// accounts and only then writes the batch back, so a failing second leg
// leaves the first untouched.
func (b *MemoryBank) Apply(ops ...Operation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Stage copies of every account the batch touches.
	staged := make(map[solana.PublicKey]*Account)
	stage := func(address solana.PublicKey) (*Account, error) {
		if acc, ok := staged[address]; ok {
			return acc, nil
		}
		acc, ok := b.accounts[address]
		if !ok {
			return nil, fmt.Errorf("account %s: %w", address, ledger.ErrInvalidPoolTokenAccount)
		}
		c := *acc
		staged[address] = &c
		return &c, nil
	}

	for i, op := range ops {
		if err := b.applyStaged(stage, op); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}

	for address, acc := range staged {
		b.accounts[address] = acc
	}
	return nil
}

func (b *MemoryBank) applyStaged(stage func(solana.PublicKey) (*Account, error), op Operation) error {
	switch op.Kind {
	case OpMint:
		minter, ok := b.minters[op.Mint]
		if !ok {
			return fmt.Errorf("mint %s: %w", op.Mint, ledger.ErrInvalidMint)
		}
		if !minter.Equals(op.Authority) {
			return fmt.Errorf("mint authority %s: %w", op.Authority, ledger.ErrInvalidAuthority)
		}
		dest, err := stage(op.Destination)
		if err != nil {
			return err
		}
		if !dest.Mint.Equals(op.Mint) {
			return fmt.Errorf("destination %s holds %s: %w", op.Destination, dest.Mint, ledger.ErrInvalidMint)
		}
		if dest.Amount > ^uint64(0)-op.Amount {
			return ledger.ErrOverflow
		}
		dest.Amount += op.Amount
		return nil

	case OpTransfer:
		source, err := stage(op.Source)
		if err != nil {
			return err
		}
		dest, err := stage(op.Destination)
		if err != nil {
			return err
		}
		if !source.Owner.Equals(op.Authority) {
			return fmt.Errorf("source %s owned by %s: %w", op.Source, source.Owner, ledger.ErrInvalidOwner)
		}
		if !source.Mint.Equals(dest.Mint) {
			return fmt.Errorf("mint mismatch %s vs %s: %w", source.Mint, dest.Mint, ledger.ErrInvalidMint)
		}
		if op.Amount > source.Amount {
			return fmt.Errorf("transfer %d from balance %d: %w", op.Amount, source.Amount, ledger.ErrUnderflow)
		}
		if dest.Amount > ^uint64(0)-op.Amount {
			return ledger.ErrOverflow
		}
		source.Amount -= op.Amount
		dest.Amount += op.Amount
		return nil

	case OpBurn:
		source, err := stage(op.Source)
		if err != nil {
			return err
		}
		if !source.Owner.Equals(op.Authority) {
			return fmt.Errorf("source %s owned by %s: %w", op.Source, source.Owner, ledger.ErrInvalidOwner)
		}
		if !source.Mint.Equals(op.Mint) {
			return fmt.Errorf("source %s holds %s: %w", op.Source, source.Mint, ledger.ErrInvalidMint)
		}
		if op.Amount > source.Amount {
			return fmt.Errorf("burn %d from balance %d: %w", op.Amount, source.Amount, ledger.ErrUnderflow)
		}
		source.Amount -= op.Amount
		return nil

	default:
		return fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}
