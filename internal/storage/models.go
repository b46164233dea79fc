package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusSuccess   TransactionStatus = "success"
	StatusFailed3DS TransactionStatus = "failed_3ds"
)

type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Transaction is an append-only payment record. The card number is stored
// encrypted; the risk score is the value computed at submission time.
type Transaction struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	EncryptedCard string
	Amount        decimal.Decimal
	Region        string
	RiskScore     float64
	Status        TransactionStatus
	CreatedAt     time.Time
}
