// internal/storage/models/pool.go
package models

// PoolRecord persists one pool. The authoritative state is the serialized
// record blob (the same layout as the on-chain account); the indexed columns
// exist for lookups and operator queries only.
type PoolRecord struct {
	BaseModel
	Address    string `gorm:"unique;not null;type:varchar(44)"`
	PoolID     string `gorm:"uniqueIndex;not null;type:varchar(44)"`
	TokenAMint string `gorm:"index;not null;type:varchar(44)"`
	TokenBMint string `gorm:"index;not null;type:varchar(44)"`
	Status     uint8  `gorm:"not null"`
	Data       []byte `gorm:"not null"`
}
