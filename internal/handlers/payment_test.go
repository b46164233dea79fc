package handlers

import (
	"errors"
	"math"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mgurusai/pay-secure/internal/events"
	"github.com/mgurusai/pay-secure/internal/storage"
)

func TestLowRiskPaymentCompletes(t *testing.T) {
	tf := newTestFlow(t)
	tf.addUser(t, "demo_user", "secure_pass")
	cookie := tf.loginSession(t, "demo_user")

	w := tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"100"},
		"region":      {"France"},
	}, cookie)
	wantRedirect(t, w, "/complete-payment")

	sess := tf.loadSession(t, cookie)
	if sess.Payment == nil {
		t.Fatalf("expected pending payment in session")
	}
	if math.Abs(sess.Payment.Risk-0.5) > 1e-9 {
		t.Fatalf("risk = %v, want 0.5", sess.Payment.Risk)
	}
	if sess.ThreeDSPending() {
		t.Fatalf("low-risk payment must not require 3DS")
	}

	w = tf.get(t, "/complete-payment", cookie)
	wantRedirect(t, w, "/success")

	txs := tf.store.transactions()
	if len(txs) != 1 {
		t.Fatalf("expected 1 recorded transaction, got %d", len(txs))
	}
	tx := txs[0]
	if tx.Status != storage.StatusSuccess {
		t.Fatalf("status = %q, want %q", tx.Status, storage.StatusSuccess)
	}
	if !tx.Amount.Equal(decimal.NewFromInt(100)) || tx.Region != "France" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	// The card is stored encrypted, recoverable only with the key.
	if tx.EncryptedCard == "4111111111111111" {
		t.Fatalf("card number stored in plaintext")
	}
	plain, err := tf.cipher.Decrypt(tx.EncryptedCard)
	if err != nil || plain != "4111111111111111" {
		t.Fatalf("decrypt card: %q, %v", plain, err)
	}

	if tf.loadSession(t, cookie).Payment != nil {
		t.Fatalf("payment data must be cleared after completion")
	}
}

func TestHighRiskPaymentFails3DS(t *testing.T) {
	tf := newTestFlow(t)
	tf.addUser(t, "demo_user", "secure_pass")
	cookie := tf.loginSession(t, "demo_user")

	w := tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"6000"},
		"region":      {"Nigeria"},
	}, cookie)
	wantRedirect(t, w, "/verify-3ds")

	sess := tf.loadSession(t, cookie)
	if sess.ThreeDSOTP != "111111" {
		t.Fatalf("expected issued 3DS code, got %+v", sess)
	}
	if sess.Payment == nil || math.Abs(sess.Payment.Risk-1.0) > 1e-9 {
		t.Fatalf("risk should clamp to 1.0, got %+v", sess.Payment)
	}
	if f := lastFlash(t, sess); f.Message != msgHighRisk {
		t.Fatalf("flash = %q, want %q", f.Message, msgHighRisk)
	}

	w = tf.postForm(t, "/verify-3ds", url.Values{"otp": {"999999"}}, cookie)
	wantRedirect(t, w, "/failed")

	txs := tf.store.transactions()
	if len(txs) != 1 {
		t.Fatalf("expected 1 recorded transaction, got %d", len(txs))
	}
	tx := txs[0]
	if tx.Status != storage.StatusFailed3DS {
		t.Fatalf("status = %q, want %q", tx.Status, storage.StatusFailed3DS)
	}
	if !tx.Amount.Equal(decimal.NewFromInt(6000)) || tx.Region != "Nigeria" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if math.Abs(tx.RiskScore-1.0) > 1e-9 {
		t.Fatalf("risk score = %v, want 1.0", tx.RiskScore)
	}

	sess = tf.loadSession(t, cookie)
	if sess.Payment != nil || sess.ThreeDSPending() {
		t.Fatalf("failed challenge must clear payment state, got %+v", sess)
	}
	if f := lastFlash(t, sess); f.Message != msg3DSFailed {
		t.Fatalf("flash = %q, want %q", f.Message, msg3DSFailed)
	}
	if !sess.LoggedIn {
		t.Fatalf("a failed payment must not end the login session")
	}
}

func TestHighRiskPaymentPasses3DS(t *testing.T) {
	tf := newTestFlow(t)
	tf.addUser(t, "demo_user", "secure_pass")
	cookie := tf.loginSession(t, "demo_user")

	tf.postForm(t, "/pay", url.Values{
		"card_number": {"5555555555554444"},
		"amount":      {"6000"},
		"region":      {"Iran"},
	}, cookie)

	w := tf.postForm(t, "/verify-3ds", url.Values{"otp": {"111111"}}, cookie)
	wantRedirect(t, w, "/complete-payment")

	sess := tf.loadSession(t, cookie)
	if sess.ThreeDSPending() {
		t.Fatalf("passed challenge must clear the code")
	}
	if sess.Payment == nil {
		t.Fatalf("passed challenge must keep the payment pending")
	}

	w = tf.get(t, "/complete-payment", cookie)
	wantRedirect(t, w, "/success")

	txs := tf.store.transactions()
	if len(txs) != 1 || txs[0].Status != storage.StatusSuccess {
		t.Fatalf("expected one successful transaction, got %+v", txs)
	}
}

func TestSubmitPaymentInvalidAmount(t *testing.T) {
	tf := newTestFlow(t)
	cookie := tf.loginSession(t, "demo_user")

	w := tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"not-a-number"},
		"region":      {"France"},
	}, cookie)
	wantRedirect(t, w, "/")

	sess := tf.loadSession(t, cookie)
	if sess.Payment != nil {
		t.Fatalf("invalid amount must not stash a payment")
	}
	if f := lastFlash(t, sess); f.Message != msgInvalidAmount {
		t.Fatalf("flash = %q, want %q", f.Message, msgInvalidAmount)
	}
}

func TestPaymentRoutesRequireLogin(t *testing.T) {
	tf := newTestFlow(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{"GET", "/"},
		{"POST", "/pay"},
		{"GET", "/verify-3ds"},
		{"POST", "/verify-3ds"},
		{"GET", "/complete-payment"},
		{"GET", "/transactions"},
	} {
		var w *httptest.ResponseRecorder
		if tc.method == "POST" {
			w = tf.postForm(t, tc.path, url.Values{}, "")
		} else {
			w = tf.get(t, tc.path, "")
		}
		if w.Code != 302 || w.Header().Get("Location") != "/login" {
			t.Fatalf("%s %s: got %d -> %q, want redirect to /login", tc.method, tc.path, w.Code, w.Header().Get("Location"))
		}
	}
}

func TestCompletePaymentWithoutPendingPayment(t *testing.T) {
	tf := newTestFlow(t)
	cookie := tf.loginSession(t, "demo_user")

	w := tf.get(t, "/complete-payment", cookie)
	wantRedirect(t, w, "/login")

	if len(tf.store.transactions()) != 0 {
		t.Fatalf("no transaction should be recorded without payment data")
	}
}

func TestVerify3DSWithoutChallenge(t *testing.T) {
	tf := newTestFlow(t)
	cookie := tf.loginSession(t, "demo_user")

	w := tf.postForm(t, "/verify-3ds", url.Values{"otp": {"111111"}}, cookie)
	wantRedirect(t, w, "/")
}

// A transaction-log write failure is reported server-side only; the user
// still lands on the success page.
func TestLogWriteFailureKeepsOutcome(t *testing.T) {
	tf := newTestFlow(t)
	tf.addUser(t, "demo_user", "secure_pass")
	tf.store.failAppend = true
	cookie := tf.loginSession(t, "demo_user")

	tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"100"},
		"region":      {"France"},
	}, cookie)

	w := tf.get(t, "/complete-payment", cookie)
	wantRedirect(t, w, "/success")

	if len(tf.store.transactions()) != 0 {
		t.Fatalf("append was supposed to fail")
	}
	if tf.loadSession(t, cookie).Payment != nil {
		t.Fatalf("payment data must still be cleared")
	}
}

func TestRecordedPaymentPublishesEvent(t *testing.T) {
	tf := newTestFlow(t)
	tf.addUser(t, "demo_user", "secure_pass")
	pub := &capturingPublisher{}
	tf.h.Publisher = pub
	cookie := tf.loginSession(t, "demo_user")

	tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"100"},
		"region":      {"France"},
	}, cookie)
	w := tf.get(t, "/complete-payment", cookie)
	wantRedirect(t, w, "/success")

	evs := pub.published()
	if len(evs) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.EventType != events.EventTypePaymentRecorded || ev.Status != string(storage.StatusSuccess) {
		t.Fatalf("unexpected event envelope: %+v", ev)
	}

	tx := tf.store.transactions()[0]
	if ev.TransactionID != tx.ID.String() || ev.UserID != tx.UserID.String() {
		t.Fatalf("event ids do not match the recorded transaction: %+v vs %+v", ev, tx)
	}
	if !ev.Amount.Equal(decimal.NewFromInt(100)) || ev.Region != "France" {
		t.Fatalf("event payload mismatch: %+v", ev)
	}
	if math.Abs(ev.RiskScore-0.5) > 1e-9 {
		t.Fatalf("event risk score = %v, want 0.5", ev.RiskScore)
	}
}

func TestFailed3DSPublishesEvent(t *testing.T) {
	tf := newTestFlow(t)
	tf.addUser(t, "demo_user", "secure_pass")
	pub := &capturingPublisher{}
	tf.h.Publisher = pub
	cookie := tf.loginSession(t, "demo_user")

	tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"6000"},
		"region":      {"Nigeria"},
	}, cookie)
	w := tf.postForm(t, "/verify-3ds", url.Values{"otp": {"999999"}}, cookie)
	wantRedirect(t, w, "/failed")

	evs := pub.published()
	if len(evs) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(evs))
	}
	if evs[0].Status != string(storage.StatusFailed3DS) {
		t.Fatalf("event status = %q, want %q", evs[0].Status, storage.StatusFailed3DS)
	}
	if math.Abs(evs[0].RiskScore-1.0) > 1e-9 {
		t.Fatalf("event risk score = %v, want 1.0", evs[0].RiskScore)
	}
}

// A broken broker is an operator problem, not the customer's: the publish
// failure is swallowed after the transaction row is written.
func TestPublishFailureNeverReachesUser(t *testing.T) {
	tf := newTestFlow(t)
	tf.addUser(t, "demo_user", "secure_pass")
	pub := &capturingPublisher{err: errors.New("broker down")}
	tf.h.Publisher = pub
	cookie := tf.loginSession(t, "demo_user")

	tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"100"},
		"region":      {"France"},
	}, cookie)
	w := tf.get(t, "/complete-payment", cookie)
	wantRedirect(t, w, "/success")

	txs := tf.store.transactions()
	if len(txs) != 1 || txs[0].Status != storage.StatusSuccess {
		t.Fatalf("transaction write must survive a publish failure, got %+v", txs)
	}
	if len(pub.published()) != 1 {
		t.Fatalf("expected exactly one publish attempt")
	}
}

// Every save re-issues the signed cookie, so its expiry slides with the
// Redis TTL instead of dying at the first token's ExpiresAt.
func TestSessionCookieSlidesWithActivity(t *testing.T) {
	tf := newTestFlow(t)
	cookie := tf.loginSession(t, "demo_user")

	w := tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"100"},
		"region":      {"France"},
	}, cookie)
	wantRedirect(t, w, "/complete-payment")

	fresh := cookieFrom(t, w, "")
	if fresh == "" {
		t.Fatalf("expected the save to re-issue the session cookie")
	}

	oldSID, err := tf.codec.Parse(cookie)
	if err != nil {
		t.Fatalf("parse original cookie: %v", err)
	}
	newSID, err := tf.codec.Parse(fresh)
	if err != nil {
		t.Fatalf("parse re-issued cookie: %v", err)
	}
	if newSID != oldSID {
		t.Fatalf("re-issued cookie changed the session id: %q vs %q", newSID, oldSID)
	}
}

func TestTransactionHistoryMasksCard(t *testing.T) {
	tf := newTestFlow(t)
	tf.addUser(t, "demo_user", "secure_pass")
	cookie := tf.loginSession(t, "demo_user")

	tf.postForm(t, "/pay", url.Values{
		"card_number": {"4111111111111111"},
		"amount":      {"250.75"},
		"region":      {"Germany"},
	}, cookie)
	tf.get(t, "/complete-payment", cookie)

	w := tf.get(t, "/transactions", cookie)
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "**** **** **** 1111") {
		t.Fatalf("expected masked card in history, got %s", body)
	}
	if strings.Contains(body, "4111111111111111") {
		t.Fatalf("full card number leaked into history: %s", body)
	}
	if !strings.Contains(body, "250.75") || !strings.Contains(body, "Germany") {
		t.Fatalf("expected amount and region in history, got %s", body)
	}
}
