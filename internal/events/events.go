package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentRecorded = "payment.recorded"
	eventVersion             = 1
)

// PaymentRecorded is published after a transaction row is written, whether
// the payment succeeded or failed its 3DS challenge.
type PaymentRecorded struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	Timestamp     time.Time       `json:"timestamp"`
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Region        string          `json:"region"`
	RiskScore     float64         `json:"risk_score"`
	Status        string          `json:"status"`
}

func NewPaymentRecorded(transactionID, userID uuid.UUID, amount decimal.Decimal, region string, riskScore float64, status string) PaymentRecorded {
	return PaymentRecorded{
		EventID:       uuid.NewString(),
		EventType:     EventTypePaymentRecorded,
		EventVersion:  eventVersion,
		Timestamp:     time.Now().UTC(),
		TransactionID: transactionID.String(),
		UserID:        userID.String(),
		Amount:        amount,
		Region:        region,
		RiskScore:     riskScore,
		Status:        status,
	}
}
