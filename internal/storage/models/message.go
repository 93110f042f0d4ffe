// internal/storage/models/message.go
package models

import "time"

// ProcessedMessage persists one processed-message registry entry. The row is
// keyed by the message identity triple; a unique index keeps double inserts
// structurally impossible even across processes sharing a database.
type ProcessedMessage struct {
	BaseModel
	EmitterChain   uint16 `gorm:"uniqueIndex:idx_message_identity;not null"`
	EmitterAddress string `gorm:"uniqueIndex:idx_message_identity;not null;type:varchar(44)"`
	Sequence       uint64 `gorm:"uniqueIndex:idx_message_identity;not null"`
	Status         uint8  `gorm:"not null"`
	Payload        []byte
	ObservedAt     time.Time `gorm:"not null"`
	AppliedAt      *time.Time
}
