// Package session holds per-browser flow state in Redis, keyed by a session
// ID that travels in a signed cookie. The Session model is deliberately
// typed: flow code goes through the named transition methods below instead
// of poking at free-form keys, so a missing field is a zero value rather
// than a runtime surprise.
package session

import (
	"github.com/shopspring/decimal"
)

type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// PaymentData is the pending payment captured at submission time. It exists
// only between submission and terminal resolution (completed or failed).
type PaymentData struct {
	Card   string          `json:"card"`
	Amount decimal.Decimal `json:"amount"`
	Region string          `json:"region"`
	Risk   float64         `json:"risk"`
}

type Session struct {
	LoggedIn    bool         `json:"logged_in,omitempty"`
	Username    string       `json:"username,omitempty"`
	MFAUsername string       `json:"mfa_username,omitempty"`
	MFAOTP      string       `json:"mfa_otp,omitempty"`
	ThreeDSOTP  string       `json:"threeds_otp,omitempty"`
	Payment     *PaymentData `json:"payment,omitempty"`
	Flashes     []Flash      `json:"flashes,omitempty"`
}

// BeginMFA records a passed password check: the OTP and the claimed
// username wait in the session until the code is verified.
func (s *Session) BeginMFA(username, otp string) {
	s.MFAUsername = username
	s.MFAOTP = otp
}

// MFAPending reports whether a login is waiting on OTP verification.
func (s *Session) MFAPending() bool {
	return s.MFAUsername != ""
}

// CompleteMFA promotes the pending MFA identity to a logged-in user and
// drops the one-time state.
func (s *Session) CompleteMFA() {
	s.LoggedIn = true
	s.Username = s.MFAUsername
	s.MFAUsername = ""
	s.MFAOTP = ""
}

// SetPayment stores the submitted payment while it awaits completion or a
// 3DS challenge.
func (s *Session) SetPayment(p PaymentData) {
	s.Payment = &p
}

func (s *Session) ClearPayment() {
	s.Payment = nil
}

func (s *Session) Begin3DS(code string) {
	s.ThreeDSOTP = code
}

func (s *Session) ThreeDSPending() bool {
	return s.ThreeDSOTP != ""
}

func (s *Session) Clear3DS() {
	s.ThreeDSOTP = ""
}

// Reset wipes the session back to the anonymous state. Used by logout.
func (s *Session) Reset() {
	*s = Session{}
}

func (s *Session) AddFlash(level, message string) {
	s.Flashes = append(s.Flashes, Flash{Level: level, Message: message})
}

// DrainFlashes returns the accumulated flash messages and clears them, the
// way a page render consumes them.
func (s *Session) DrainFlashes() []Flash {
	out := s.Flashes
	s.Flashes = nil
	return out
}
