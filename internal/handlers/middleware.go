package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mgurusai/pay-secure/internal/session"
)

const sessionContextKey = "paysecure.session"

// sessionState tracks the session bound to the current request.
type sessionState struct {
	sid  string
	sess *session.Session
}

// SessionMiddleware resolves the request's session from the signed cookie.
// Anything invalid — missing cookie, bad signature, expired token, vanished
// Redis entry — degrades to a fresh anonymous session rather than an error.
func (h *FlowHandler) SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := &sessionState{}

		if cookie, err := c.Cookie(session.CookieName); err == nil && cookie != "" {
			if sid, err := h.Cookies.Parse(cookie); err == nil {
				sess, err := h.Sessions.Load(c.Request.Context(), sid)
				switch {
				case err == nil:
					st.sid = sid
					st.sess = sess
				case errors.Is(err, session.ErrNotFound):
					// expired server-side, fall through to a new one
				default:
					h.Logger.Error("session load failed", "error", err)
				}
			}
		}

		if st.sess == nil {
			st.sid = session.NewSessionID()
			st.sess = &session.Session{}
		}

		c.Set(sessionContextKey, st)
		c.Next()
	}
}

// RequireLogin is the uniform guard for authenticated routes. Anonymous
// requests bounce back to the login entry point.
func (h *FlowHandler) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := currentSession(c)
		if st == nil || !st.sess.LoggedIn {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentSession(c *gin.Context) *sessionState {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	st, ok := v.(*sessionState)
	if !ok {
		return nil
	}
	return st
}

// saveSession flushes session mutations to Redis and re-issues the signed
// cookie, so the cookie lifetime slides in step with the server-side TTL
// and an active user is never bounced to anonymous by a stale expiry.
// Persistence failures are logged; the user keeps the response they
// already earned.
func (h *FlowHandler) saveSession(c *gin.Context, st *sessionState) {
	if err := h.Sessions.Save(c.Request.Context(), st.sid, st.sess); err != nil {
		h.Logger.Error("session save failed", "error", err)
		return
	}

	value, err := h.Cookies.Issue(st.sid, h.Clock.Now())
	if err != nil {
		h.Logger.Error("session cookie issue failed", "error", err)
		return
	}
	c.SetCookie(session.CookieName, value, h.Cookies.TTLSeconds(), "/", "", false, true)
}
