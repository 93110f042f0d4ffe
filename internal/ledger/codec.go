// internal/ledger/codec.go
package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PoolDiscriminator prefixes every serialized pool record
// (sha256("account:Pool")[..8], same as the on-chain account).
var PoolDiscriminator = [8]byte{0xf1, 0x9a, 0x6d, 0x04, 0x11, 0xb1, 0x6d, 0xbc}

// Serialized layout: discriminator, seven 32-byte keys, four u64 accounting
// fields, 32-byte pool id, status byte, i64 timestamp, five bump bytes.
const poolEncodedSize = 8 + 7*32 + 4*8 + 32 + 1 + 8 + 5

// EncodePool serializes a pool record into its fixed little-endian layout.
func EncodePool(p *Pool) []byte {
	data := make([]byte, 0, poolEncodedSize)
	data = append(data, PoolDiscriminator[:]...)

	for _, key := range []solana.PublicKey{
		p.Address, p.Authority,
		p.TokenAMint, p.TokenBMint,
		p.TokenAAccount, p.TokenBAccount,
		p.LPMint,
	} {
		data = append(data, key[:]...)
	}

	var u64buf [8]byte
	for _, v := range []uint64{
		p.FeeBasisPoints, p.TotalLiquidityShares,
		p.ProtocolFeeA, p.ProtocolFeeB,
	} {
		binary.LittleEndian.PutUint64(u64buf[:], v)
		data = append(data, u64buf[:]...)
	}

	data = append(data, p.PoolID[:]...)
	data = append(data, byte(p.Status))
	binary.LittleEndian.PutUint64(u64buf[:], uint64(p.LastUpdatedAt))
	data = append(data, u64buf[:]...)
	data = append(data, p.Bump, p.AuthorityBump, p.LPMintBump, p.TokenABump, p.TokenBBump)

	return data
}

// DecodePool parses a serialized pool record, rejecting any buffer that does
// not carry the discriminator or the exact expected length.
func DecodePool(data []byte) (*Pool, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short for Pool: %d bytes", len(data))
	}
	for i := 0; i < 8; i++ {
		if data[i] != PoolDiscriminator[i] {
			return nil, fmt.Errorf("invalid discriminator for Pool")
		}
	}
	if len(data) != poolEncodedSize {
		return nil, fmt.Errorf("unexpected Pool size: got %d, want %d", len(data), poolEncodedSize)
	}

	pos := 8
	readKey := func() solana.PublicKey {
		key := solana.PublicKeyFromBytes(data[pos : pos+32])
		pos += 32
		return key
	}
	readU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v
	}

	p := &Pool{}
	p.Address = readKey()
	p.Authority = readKey()
	p.TokenAMint = readKey()
	p.TokenBMint = readKey()
	p.TokenAAccount = readKey()
	p.TokenBAccount = readKey()
	p.LPMint = readKey()

	p.FeeBasisPoints = readU64()
	p.TotalLiquidityShares = readU64()
	p.ProtocolFeeA = readU64()
	p.ProtocolFeeB = readU64()

	copy(p.PoolID[:], data[pos:pos+32])
	pos += 32
	p.Status = Status(data[pos])
	pos++
	p.LastUpdatedAt = int64(binary.LittleEndian.Uint64(data[pos : pos+8]))
	pos += 8
	p.Bump = data[pos]
	p.AuthorityBump = data[pos+1]
	p.LPMintBump = data[pos+2]
	p.TokenABump = data[pos+3]
	p.TokenBBump = data[pos+4]

	return p, nil
}
