package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const otpDigits = 6

// GenerateOTP returns a uniformly random 6-digit decimal code. Each digit is
// drawn independently so leading zeros are as likely as any other digit.
func GenerateOTP() (string, error) {
	var b strings.Builder
	b.Grow(otpDigits)

	ten := big.NewInt(10)
	for i := 0; i < otpDigits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
