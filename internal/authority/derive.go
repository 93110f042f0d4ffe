// internal/authority/derive.go
package authority

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed tags for the pool's derived accounts. The authority is a capability:
// it exists only as the output of this derivation and never as a held key, so
// any component claiming to act for a pool must reproduce the same address.
var (
	seedPool      = []byte("pool")
	seedAuthority = []byte("authority")
	seedLPMint    = []byte("lp_mint")
	seedTokenA    = []byte("token_a")
	seedTokenB    = []byte("token_b")
)

// Derivation carries every address the settlement program controls for one
// pool, together with the bump indices needed to re-prove them later.
type Derivation struct {
	Pool          solana.PublicKey
	PoolBump      uint8
	Authority     solana.PublicKey
	AuthorityBump uint8
	LPMint        solana.PublicKey
	LPMintBump    uint8
	TokenAAccount solana.PublicKey
	TokenABump    uint8
	TokenBAccount solana.PublicKey
	TokenBBump    uint8
}

// DerivePool yields the pool address for an ordered mint pair. Creating the
// same pair twice collides here, which is what makes duplicate pool creation
// structurally impossible.
func DerivePool(programID, tokenAMint, tokenBMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{seedPool, tokenAMint.Bytes(), tokenBMint.Bytes()},
		programID,
	)
}

// DeriveAuthority yields the pool's signing authority address.
func DeriveAuthority(programID, pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{seedAuthority, pool.Bytes()},
		programID,
	)
}

// Derive computes the full account set for a mint pair.
func Derive(programID, tokenAMint, tokenBMint solana.PublicKey) (*Derivation, error) {
	d := &Derivation{}

	var err error
	if d.Pool, d.PoolBump, err = DerivePool(programID, tokenAMint, tokenBMint); err != nil {
		return nil, fmt.Errorf("derive pool address: %w", err)
	}
	if d.Authority, d.AuthorityBump, err = DeriveAuthority(programID, d.Pool); err != nil {
		return nil, fmt.Errorf("derive authority: %w", err)
	}
	if d.LPMint, d.LPMintBump, err = solana.FindProgramAddress(
		[][]byte{seedLPMint, d.Pool.Bytes()}, programID,
	); err != nil {
		return nil, fmt.Errorf("derive lp mint: %w", err)
	}
	if d.TokenAAccount, d.TokenABump, err = solana.FindProgramAddress(
		[][]byte{seedTokenA, d.Pool.Bytes()}, programID,
	); err != nil {
		return nil, fmt.Errorf("derive token A account: %w", err)
	}
	if d.TokenBAccount, d.TokenBBump, err = solana.FindProgramAddress(
		[][]byte{seedTokenB, d.Pool.Bytes()}, programID,
	); err != nil {
		return nil, fmt.Errorf("derive token B account: %w", err)
	}
	return d, nil
}
