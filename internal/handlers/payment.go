package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mgurusai/pay-secure/internal/events"
	"github.com/mgurusai/pay-secure/internal/risk"
	"github.com/mgurusai/pay-secure/internal/session"
	"github.com/mgurusai/pay-secure/internal/storage"
)

const (
	msgHighRisk      = "High-risk transaction. Please complete 3D Secure verification."
	msg3DSFailed     = "3D Secure authentication failed."
	msgInvalidAmount = "Invalid payment amount."
)

// Sentinel values for a failed-3DS record whose payment data went missing
// from the session.
const (
	sentinelCard   = "N/A"
	sentinelRegion = "N/A"
)

func (h *FlowHandler) PaymentFormPage(c *gin.Context) {
	st := currentSession(c)
	h.renderPage(c, st, "payment_form", gin.H{"username": st.sess.Username})
}

// SubmitPayment scores the submitted payment and either finalizes it
// directly or diverts through the 3DS challenge. The simulated scan logs
// and never blocks.
func (h *FlowHandler) SubmitPayment(c *gin.Context) {
	st := currentSession(c)

	card := c.PostForm("card_number")
	region := c.PostForm("region")
	amount, err := decimal.NewFromString(c.PostForm("amount"))
	if err != nil {
		h.flashAndRedirect(c, st, flashDanger, msgInvalidAmount, "/")
		return
	}

	h.Scanner.Scan("web_transaction")

	score := risk.Score(amount, region)
	h.observeRisk(score)
	if h.DebugCodes {
		h.Logger.Info("transaction risk scored", "username", st.sess.Username, "risk_score", score)
	}

	st.sess.SetPayment(session.PaymentData{
		Card:   card,
		Amount: amount,
		Region: region,
		Risk:   score,
	})

	if risk.RequiresChallenge(score) {
		code, err := h.OTP.Generate()
		if err != nil {
			h.Logger.Error("3ds code generation failed", "error", err)
			st.sess.ClearPayment()
			h.flashAndRedirect(c, st, flashDanger, msgGenericFailure, "/")
			return
		}
		st.sess.Begin3DS(code)
		h.count3DS("issued")
		if h.DebugCodes {
			h.Logger.Info("3ds challenge issued", "username", st.sess.Username, "code", code)
		}
		h.flashAndRedirect(c, st, flashWarning, msgHighRisk, "/verify-3ds")
		return
	}

	h.saveSession(c, st)
	c.Redirect(http.StatusFound, "/complete-payment")
}

func (h *FlowHandler) ThreeDSPage(c *gin.Context) {
	st := currentSession(c)
	if !st.sess.ThreeDSPending() {
		c.Redirect(http.StatusFound, "/")
		return
	}
	h.renderPage(c, st, "verify_3ds", nil)
}

// Verify3DS settles the step-up challenge. A pass continues to completion;
// a failure records the failed_3ds transaction immediately and ends the
// payment.
func (h *FlowHandler) Verify3DS(c *gin.Context) {
	st := currentSession(c)
	if !st.sess.ThreeDSPending() {
		c.Redirect(http.StatusFound, "/")
		return
	}

	code := c.PostForm("otp")
	if code == st.sess.ThreeDSOTP {
		st.sess.Clear3DS()
		h.count3DS("passed")
		h.saveSession(c, st)
		c.Redirect(http.StatusFound, "/complete-payment")
		return
	}

	h.count3DS("failed")
	h.recordTransaction(c, st.sess, storage.StatusFailed3DS)
	st.sess.ClearPayment()
	st.sess.Clear3DS()
	h.flashAndRedirect(c, st, flashDanger, msg3DSFailed, "/failed")
}

// CompletePayment finalizes a pending payment as successful. A write
// failure while logging the transaction is reported server-side but never
// flips the outcome the user already reached.
func (h *FlowHandler) CompletePayment(c *gin.Context) {
	st := currentSession(c)
	if st.sess.Payment == nil {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	h.recordTransaction(c, st.sess, storage.StatusSuccess)
	st.sess.ClearPayment()
	h.saveSession(c, st)
	c.Redirect(http.StatusFound, "/success")
}

// PaymentSuccess and PaymentFailed are terminal views: idempotent, no
// session mutation.
func (h *FlowHandler) PaymentSuccess(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"page": "success", "status": "success"})
}

func (h *FlowHandler) PaymentFailed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"page": "failed", "status": "failed"})
}

// recordTransaction appends the payment outcome to the store and publishes
// the matching event. It deliberately returns nothing: log-write failures
// are orthogonal to the flow state the caller is about to commit.
func (h *FlowHandler) recordTransaction(c *gin.Context, sess *session.Session, status storage.TransactionStatus) {
	ctx := c.Request.Context()

	card, region := sentinelCard, sentinelRegion
	amount := decimal.Zero
	score := 0.0
	if p := sess.Payment; p != nil {
		card, amount, region, score = p.Card, p.Amount, p.Region, p.Risk
	}

	user, err := h.Store.GetUserByUsername(ctx, sess.Username)
	if err != nil {
		h.Logger.Error("transaction log: user lookup failed", "username", sess.Username, "error", err)
		h.countPayment(string(status), "log_failed")
		return
	}

	encryptedCard, err := h.Cipher.Encrypt(card)
	if err != nil {
		h.Logger.Error("transaction log: card encryption failed", "error", err)
		h.countPayment(string(status), "log_failed")
		return
	}

	txID, err := h.Store.AppendTransaction(ctx, user.ID, encryptedCard, amount, region, score, status)
	if err != nil {
		h.Logger.Error("transaction log failed", "error", err)
		h.countPayment(string(status), "log_failed")
		return
	}
	h.countPayment(string(status), "recorded")

	if h.Publisher != nil {
		event := events.NewPaymentRecorded(txID, user.ID, amount, region, score, string(status))
		if err := h.Publisher.PublishPayment(ctx, event); err != nil {
			h.Logger.Error("payment event publish failed", "error", err)
		}
	}
}

// TransactionHistory lists the logged-in user's recorded payments with the
// card number decrypted just far enough to show the last four digits.
func (h *FlowHandler) TransactionHistory(c *gin.Context) {
	st := currentSession(c)

	user, err := h.Store.GetUserByUsername(c.Request.Context(), st.sess.Username)
	if err != nil {
		h.Logger.Error("history: user lookup failed", "error", err)
		h.flashAndRedirect(c, st, flashDanger, msgGenericFailure, "/")
		return
	}

	txs, err := h.Store.ListTransactionsByUser(c.Request.Context(), user.ID, 50)
	if err != nil {
		h.Logger.Error("history: list failed", "error", err)
		h.flashAndRedirect(c, st, flashDanger, msgGenericFailure, "/")
		return
	}

	type entry struct {
		Card      string  `json:"card"`
		Amount    string  `json:"amount"`
		Region    string  `json:"region"`
		RiskScore float64 `json:"risk_score"`
		Status    string  `json:"status"`
		CreatedAt string  `json:"created_at"`
	}

	out := make([]entry, 0, len(txs))
	for _, tx := range txs {
		out = append(out, entry{
			Card:      h.maskedCard(tx.EncryptedCard),
			Amount:    tx.Amount.String(),
			Region:    tx.Region,
			RiskScore: tx.RiskScore,
			Status:    string(tx.Status),
			CreatedAt: tx.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"page": "transactions", "transactions": out})
}

func (h *FlowHandler) maskedCard(encrypted string) string {
	plain, err := h.Cipher.Decrypt(encrypted)
	if err != nil {
		// Wrong key or tampered row: surface the failure, never a
		// wrong number.
		h.Logger.Error("card decryption failed", "error", err)
		return "unavailable"
	}
	if len(plain) <= 4 {
		return plain
	}
	return "**** **** **** " + plain[len(plain)-4:]
}
