// Package risk scores card payments and decides when a 3-D Secure step-up
// challenge is required.
package risk

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	baseScore          = 0.5
	largeAmountPenalty = 0.3
	regionPenalty      = 0.4
	maxScore           = 1.0

	// challengeThreshold is exclusive: a score of exactly 0.8 clears
	// without a challenge.
	challengeThreshold = 0.8
)

var largeAmount = decimal.NewFromInt(5000)

// highRiskRegions is matched case-insensitively against the submitted
// region field.
var highRiskRegions = map[string]struct{}{
	"high risk country": {},
	"nigeria":           {},
	"iran":              {},
}

// Score computes the additive risk score in [0.5, 1.0] for a payment.
func Score(amount decimal.Decimal, region string) float64 {
	score := baseScore
	if amount.GreaterThan(largeAmount) {
		score += largeAmountPenalty
	}
	if _, ok := highRiskRegions[strings.ToLower(region)]; ok {
		score += regionPenalty
	}
	if score > maxScore {
		score = maxScore
	}
	return score
}

// RequiresChallenge reports whether a score is high enough to demand a 3DS
// step-up before the payment completes.
func RequiresChallenge(score float64) bool {
	return score > challengeThreshold
}

// Scanner simulates the upstream transaction-scanning service. It only logs;
// it never blocks a payment.
type Scanner struct {
	logger *slog.Logger
}

func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// Scan reports a clean result for every subject.
func (s *Scanner) Scan(subject string) string {
	s.logger.Info("simulated transaction scan", "subject", subject)
	return "No threats found"
}
