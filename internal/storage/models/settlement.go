// internal/storage/models/settlement.go
package models

// SettlementLog is the audit trail: one row per settlement attempt that
// reached the processor, successful or rejected.
type SettlementLog struct {
	BaseModel
	MessageKey   string `gorm:"index;not null;type:varchar(120)"`
	PoolAddress  string `gorm:"index;not null;type:varchar(44)"`
	Operation    uint8  `gorm:"not null"`
	Recipient    string `gorm:"not null;type:varchar(44)"`
	LpMinted     uint64
	AmountA      uint64
	AmountB      uint64
	Status       string `gorm:"not null;type:varchar(20)"`
	ErrorMessage string `gorm:"type:text"`
}
