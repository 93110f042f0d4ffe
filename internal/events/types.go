// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Settlement lifecycle
	SettlementCompleted EventType = "settlement.completed"
	SettlementRejected  EventType = "settlement.rejected"

	// Pool lifecycle
	PoolCreated EventType = "pool.created"
	PoolPaused  EventType = "pool.paused"
	PoolResumed EventType = "pool.resumed"

	// Local liquidity operations
	LiquidityAdded   EventType = "liquidity.added"
	LiquidityRemoved EventType = "liquidity.removed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// SettlementCompletedEvent is emitted after a cross-chain completion commits.
type SettlementCompletedEvent struct {
	BaseEvent
	MessageKey  string
	PoolAddress string
	Operation   uint8
	Recipient   string
	LpMinted    uint64
	AmountA     uint64
	AmountB     uint64
}

// SettlementRejectedEvent is emitted when a settlement request fails any of
// the hard preconditions. The message identity stays replayable unless the
// rejection was ErrVaaAlreadyProcessed.
type SettlementRejectedEvent struct {
	BaseEvent
	MessageKey  string
	PoolAddress string
	Error       error
}

// PoolCreatedEvent is emitted when a pool is initialized.
type PoolCreatedEvent struct {
	BaseEvent
	PoolAddress string
	TokenAMint  string
	TokenBMint  string
}

// PoolStatusEvent is emitted on pause/resume.
type PoolStatusEvent struct {
	BaseEvent
	PoolAddress string
}

// LiquidityChangedEvent is emitted by the local add/remove collaborators.
type LiquidityChangedEvent struct {
	BaseEvent
	PoolAddress string
	Provider    string
	Shares      uint64
	AmountA     uint64
	AmountB     uint64
}
