package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireActive(t *testing.T) {
	p := &Pool{Status: StatusActive}
	assert.NoError(t, p.RequireActive())

	p.Pause()
	assert.ErrorIs(t, p.RequireActive(), ErrPoolPaused)

	p.Resume()
	assert.NoError(t, p.RequireActive())

	p.Status = Status(42)
	assert.ErrorIs(t, p.RequireActive(), ErrInvalidPoolStatus)
}

func TestApplyShareIssue(t *testing.T) {
	p := &Pool{Status: StatusActive}

	require.NoError(t, p.ApplyShareIssue(1000))
	assert.Equal(t, uint64(1000), p.TotalLiquidityShares)

	assert.ErrorIs(t, p.ApplyShareIssue(0), ErrZeroLiquidityMinted)
	assert.Equal(t, uint64(1000), p.TotalLiquidityShares)

	p.TotalLiquidityShares = ^uint64(0) - 5
	assert.ErrorIs(t, p.ApplyShareIssue(6), ErrOverflow)
	assert.Equal(t, ^uint64(0)-5, p.TotalLiquidityShares)

	require.NoError(t, p.ApplyShareIssue(5))
	assert.Equal(t, ^uint64(0), p.TotalLiquidityShares)
}

func TestApplyShareBurn(t *testing.T) {
	p := &Pool{Status: StatusActive, TotalLiquidityShares: 1000}

	require.NoError(t, p.ApplyShareBurn(400))
	assert.Equal(t, uint64(600), p.TotalLiquidityShares)

	assert.ErrorIs(t, p.ApplyShareBurn(0), ErrZeroLiquidityBurned)

	assert.ErrorIs(t, p.ApplyShareBurn(601), ErrUnderflow)
	assert.Equal(t, uint64(600), p.TotalLiquidityShares)

	require.NoError(t, p.ApplyShareBurn(600))
	assert.Zero(t, p.TotalLiquidityShares)
}

func TestAccrueProtocolFee(t *testing.T) {
	p := &Pool{}
	require.NoError(t, p.AccrueProtocolFee(10, 20))
	require.NoError(t, p.AccrueProtocolFee(5, 0))
	assert.Equal(t, uint64(15), p.ProtocolFeeA)
	assert.Equal(t, uint64(20), p.ProtocolFeeB)

	p.ProtocolFeeA = ^uint64(0)
	assert.ErrorIs(t, p.AccrueProtocolFee(1, 0), ErrOverflow)
}

func TestCloneIsIndependent(t *testing.T) {
	p := &Pool{TotalLiquidityShares: 100, Status: StatusActive}
	c := p.Clone()

	require.NoError(t, c.ApplyShareIssue(50))
	c.Pause()

	assert.Equal(t, uint64(100), p.TotalLiquidityShares)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, uint64(150), c.TotalLiquidityShares)
	assert.Equal(t, StatusPaused, c.Status)
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(ErrVaaAlreadyProcessed))
	assert.True(t, IsRejection(ErrPoolIdMismatch))

	// Wrapped rejections still classify.
	wrapped := errors.Join(errors.New("context"), ErrPoolPaused)
	assert.True(t, IsRejection(wrapped))

	assert.False(t, IsRejection(errors.New("connection refused")))
	assert.False(t, IsRejection(nil))
}
