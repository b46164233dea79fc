// Package handlers sequences the checkout flow: login, OTP verification,
// payment submission, risk evaluation, 3DS step-up, and transaction
// recording. All flow state lives in the session; every failure becomes a
// flash message plus a redirect to the most recent safe page.
package handlers

import (
	"context"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mgurusai/pay-secure/internal/events"
	"github.com/mgurusai/pay-secure/internal/risk"
	"github.com/mgurusai/pay-secure/internal/security"
	"github.com/mgurusai/pay-secure/internal/session"
	"github.com/mgurusai/pay-secure/internal/storage"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// OTPGenerator produces one-time codes for MFA and 3DS challenges.
type OTPGenerator interface {
	Generate() (string, error)
}

type randomOTP struct{}

func (randomOTP) Generate() (string, error) { return security.GenerateOTP() }

// Store is the credential-store surface the flow needs.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*storage.User, error)
	AppendTransaction(ctx context.Context, userID uuid.UUID, encryptedCard string, amount decimal.Decimal, region string, riskScore float64, status storage.TransactionStatus) (uuid.UUID, error)
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]storage.Transaction, error)
}

type FlowHandler struct {
	Store     Store
	Sessions  *session.Store
	Cookies   *session.Codec
	Cipher    *security.Cipher
	Scanner   *risk.Scanner
	Publisher events.Publisher
	Logger    *slog.Logger
	Metrics   *Metrics
	Argon2    security.Argon2Params
	OTP       OTPGenerator
	Clock     Clock

	// DebugCodes echoes generated OTP and 3DS codes (and risk scores)
	// into the log. Demo convenience; off by default.
	DebugCodes bool
}

func NewFlowHandler(store Store, sessions *session.Store, cookies *session.Codec, cph *security.Cipher, scanner *risk.Scanner, logger *slog.Logger, metrics *Metrics, argon2 security.Argon2Params) *FlowHandler {
	return &FlowHandler{
		Store:    store,
		Sessions: sessions,
		Cookies:  cookies,
		Cipher:   cph,
		Scanner:  scanner,
		Logger:   logger,
		Metrics:  metrics,
		Argon2:   argon2,
		OTP:      randomOTP{},
		Clock:    systemClock{},
	}
}

func (h *FlowHandler) RegisterRoutes(r *gin.Engine) {
	g := r.Group("/", h.SessionMiddleware())

	g.GET("/login", h.LoginPage)
	g.POST("/login", h.Login)
	g.GET("/signup", h.SignupPage)
	g.POST("/signup", h.Signup)
	g.GET("/mfa", h.MFAPage)
	g.POST("/mfa", h.VerifyMFA)
	g.GET("/logout", h.Logout)
	g.GET("/success", h.PaymentSuccess)
	g.GET("/failed", h.PaymentFailed)

	authed := g.Group("", h.RequireLogin())
	authed.GET("/", h.PaymentFormPage)
	authed.POST("/pay", h.SubmitPayment)
	authed.GET("/verify-3ds", h.ThreeDSPage)
	authed.POST("/verify-3ds", h.Verify3DS)
	authed.GET("/complete-payment", h.CompletePayment)
	authed.GET("/transactions", h.TransactionHistory)
}
