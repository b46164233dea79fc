package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mgurusai/pay-secure/internal/security"
	"github.com/mgurusai/pay-secure/internal/session"
	"github.com/mgurusai/pay-secure/internal/storage"
)

// Flash levels mirror the usual bootstrap-ish categories the UI maps to.
const (
	flashInfo    = "info"
	flashSuccess = "success"
	flashWarning = "warning"
	flashDanger  = "danger"
)

const (
	msgInvalidCredentials = "Invalid username or password."
	msgInvalidOTP         = "Invalid OTP."
	msgOTPSent            = "An OTP has been sent (check the server log)."
	msgPasswordMismatch   = "Passwords do not match."
	msgUsernameTaken      = "Username already exists. Please choose another."
	msgSignupOK           = "Account created successfully! Please log in."
	msgLoggedOut          = "You have been logged out."
	msgGenericFailure     = "Something went wrong. Please try again."
)

// renderPage emits the JSON page state plus any pending flash messages.
// Rendering views is out of scope here; the front end owns the HTML.
func (h *FlowHandler) renderPage(c *gin.Context, st *sessionState, page string, extra gin.H) {
	flashes := st.sess.DrainFlashes()
	if len(flashes) > 0 {
		h.saveSession(c, st)
	}
	payload := gin.H{"page": page}
	if len(flashes) > 0 {
		payload["flashes"] = flashes
	}
	for k, v := range extra {
		payload[k] = v
	}
	c.JSON(http.StatusOK, payload)
}

func (h *FlowHandler) flashAndRedirect(c *gin.Context, st *sessionState, level, message, location string) {
	st.sess.AddFlash(level, message)
	h.saveSession(c, st)
	c.Redirect(http.StatusFound, location)
}

func (h *FlowHandler) LoginPage(c *gin.Context) {
	h.renderPage(c, currentSession(c), "login", nil)
}

// Login checks the password and, on success, parks an OTP in the session
// and sends the user to the MFA step. A missing user and a wrong password
// produce the same message on purpose.
func (h *FlowHandler) Login(c *gin.Context) {
	st := currentSession(c)
	username := c.PostForm("username")
	password := c.PostForm("password")

	user, err := h.Store.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.countLogin("invalid")
			h.flashAndRedirect(c, st, flashDanger, msgInvalidCredentials, "/login")
			return
		}
		h.Logger.Error("login lookup failed", "error", err)
		h.countLogin("error")
		h.flashAndRedirect(c, st, flashDanger, msgGenericFailure, "/login")
		return
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		h.countLogin("invalid")
		h.flashAndRedirect(c, st, flashDanger, msgInvalidCredentials, "/login")
		return
	}

	otp, err := h.OTP.Generate()
	if err != nil {
		h.Logger.Error("otp generation failed", "error", err)
		h.countLogin("error")
		h.flashAndRedirect(c, st, flashDanger, msgGenericFailure, "/login")
		return
	}

	st.sess.BeginMFA(username, otp)
	h.countLogin("password_ok")

	// Delivery is out of scope for the demo: the code only ever reaches
	// the log, and only when explicitly enabled.
	if h.DebugCodes {
		h.Logger.Info("mfa otp issued", "username", username, "otp", otp)
	} else {
		h.Logger.Info("mfa otp issued", "username", username)
	}

	h.flashAndRedirect(c, st, flashInfo, msgOTPSent, "/mfa")
}

func (h *FlowHandler) MFAPage(c *gin.Context) {
	st := currentSession(c)
	if !st.sess.MFAPending() {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	h.renderPage(c, st, "mfa", nil)
}

// VerifyMFA compares the submitted code against the stored OTP. There is no
// expiry, attempt limit, or lockout; a mismatch leaves the OTP valid for
// another try, faithful to the source behavior.
func (h *FlowHandler) VerifyMFA(c *gin.Context) {
	st := currentSession(c)
	if !st.sess.MFAPending() {
		c.Redirect(http.StatusFound, "/login")
		return
	}

	code := c.PostForm("otp")
	if code != st.sess.MFAOTP {
		h.countMFA("mismatch")
		h.flashAndRedirect(c, st, flashDanger, msgInvalidOTP, "/mfa")
		return
	}

	st.sess.CompleteMFA()
	h.countMFA("match")
	h.saveSession(c, st)
	c.Redirect(http.StatusFound, "/")
}

func (h *FlowHandler) SignupPage(c *gin.Context) {
	h.renderPage(c, currentSession(c), "signup", nil)
}

func (h *FlowHandler) Signup(c *gin.Context) {
	st := currentSession(c)
	username := c.PostForm("username")
	password := c.PostForm("password")
	confirm := c.PostForm("confirm_password")

	if password != confirm {
		h.countSignup("password_mismatch")
		h.flashAndRedirect(c, st, flashDanger, msgPasswordMismatch, "/signup")
		return
	}

	hash, err := security.HashPassword(password, h.Argon2)
	if err != nil {
		h.Logger.Error("password hash failed", "error", err)
		h.countSignup("error")
		h.flashAndRedirect(c, st, flashDanger, msgGenericFailure, "/signup")
		return
	}

	if _, err := h.Store.CreateUser(c.Request.Context(), username, hash); err != nil {
		if errors.Is(err, storage.ErrDuplicateUsername) {
			h.countSignup("duplicate")
			h.flashAndRedirect(c, st, flashDanger, msgUsernameTaken, "/signup")
			return
		}
		h.Logger.Error("user creation failed", "error", err)
		h.countSignup("error")
		h.flashAndRedirect(c, st, flashDanger, msgGenericFailure, "/signup")
		return
	}

	h.countSignup("created")
	// Signup never logs the user in; they go through the full flow.
	h.flashAndRedirect(c, st, flashSuccess, msgSignupOK, "/login")
}

// Logout wipes the whole session and returns to the anonymous entry point.
func (h *FlowHandler) Logout(c *gin.Context) {
	st := currentSession(c)
	if err := h.Sessions.Delete(c.Request.Context(), st.sid); err != nil {
		h.Logger.Error("session delete failed", "error", err)
	}
	st.sess.Reset()
	st.sid = session.NewSessionID()
	h.flashAndRedirect(c, st, flashInfo, msgLoggedOut, "/login")
}
