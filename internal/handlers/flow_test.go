package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mgurusai/pay-secure/internal/events"
	"github.com/mgurusai/pay-secure/internal/risk"
	"github.com/mgurusai/pay-secure/internal/security"
	"github.com/mgurusai/pay-secure/internal/session"
	"github.com/mgurusai/pay-secure/internal/storage"
)

// testArgon keeps hashing fast; production strength is irrelevant here.
var testArgon = security.Argon2Params{Memory: 16 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type fixedOTP struct{ code string }

func (f fixedOTP) Generate() (string, error) { return f.code, nil }

// memStore is an in-memory Store double. calls counts every method
// invocation so tests can assert a handler touched the store not at all.
type memStore struct {
	mu         sync.Mutex
	users      map[string]*storage.User
	txs        []storage.Transaction
	failAppend bool
	calls      int
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*storage.User{}}
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	u, ok := m.users[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) CreateUser(_ context.Context, username, passwordHash string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if _, ok := m.users[username]; ok {
		return nil, storage.ErrDuplicateUsername
	}
	u := &storage.User{ID: uuid.New(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	m.users[username] = u
	copied := *u
	return &copied, nil
}

func (m *memStore) AppendTransaction(_ context.Context, userID uuid.UUID, encryptedCard string, amount decimal.Decimal, region string, riskScore float64, status storage.TransactionStatus) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAppend {
		return uuid.Nil, context.DeadlineExceeded
	}
	tx := storage.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		EncryptedCard: encryptedCard,
		Amount:        amount,
		Region:        region,
		RiskScore:     riskScore,
		Status:        status,
		CreatedAt:     time.Now(),
	}
	m.txs = append(m.txs, tx)
	return tx.ID, nil
}

func (m *memStore) ListTransactionsByUser(_ context.Context, userID uuid.UUID, limit int) ([]storage.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []storage.Transaction
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].UserID == userID {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

func (m *memStore) transactions() []storage.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Transaction(nil), m.txs...)
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// capturingPublisher records every publish attempt; err makes each attempt
// fail after recording, so tests can see what the flow tried to send.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.PaymentRecorded
	err    error
}

func (p *capturingPublisher) PublishPayment(_ context.Context, event events.PaymentRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) published() []events.PaymentRecorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.PaymentRecorded(nil), p.events...)
}

type testFlow struct {
	h        *FlowHandler
	store    *memStore
	router   *gin.Engine
	sessions *session.Store
	codec    *session.Codec
	cipher   *security.Cipher
	redis    *miniredis.Miniredis
}

func newTestFlow(t *testing.T) *testFlow {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cph, err := security.NewCipher(bytes.Repeat([]byte{'k'}, 32))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemStore()
	sessions := session.NewStore(client, time.Minute, "")
	codec := session.NewCodec("test-secret", time.Minute)

	h := NewFlowHandler(store, sessions, codec, cph, risk.NewScanner(logger), logger, nil, testArgon)
	h.OTP = fixedOTP{code: "111111"}

	router := gin.New()
	h.RegisterRoutes(router)

	return &testFlow{h: h, store: store, router: router, sessions: sessions, codec: codec, cipher: cph, redis: mr}
}

func (tf *testFlow) addUser(t *testing.T, username, password string) {
	t.Helper()
	hash, err := security.HashPassword(password, testArgon)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := tf.store.CreateUser(context.Background(), username, hash); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	tf.store.mu.Lock()
	tf.store.calls = 0
	tf.store.mu.Unlock()
}

// loginSession fabricates an already-authenticated session and returns its
// cookie value, skipping the login and MFA steps.
func (tf *testFlow) loginSession(t *testing.T, username string) string {
	t.Helper()
	sid := session.NewSessionID()
	sess := &session.Session{LoggedIn: true, Username: username}
	if err := tf.sessions.Save(context.Background(), sid, sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	cookie, err := tf.codec.Issue(sid, time.Now())
	if err != nil {
		t.Fatalf("issue cookie: %v", err)
	}
	return cookie
}

func (tf *testFlow) postForm(t *testing.T, path string, form url.Values, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	tf.router.ServeHTTP(w, req)
	return w
}

func (tf *testFlow) get(t *testing.T, path, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	tf.router.ServeHTTP(w, req)
	return w
}

// cookieFrom pulls the session cookie out of a response, falling back to the
// request cookie the test already holds.
func cookieFrom(t *testing.T, w *httptest.ResponseRecorder, current string) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c.Value
		}
	}
	return current
}

func (tf *testFlow) loadSession(t *testing.T, cookie string) *session.Session {
	t.Helper()
	sid, err := tf.codec.Parse(cookie)
	if err != nil {
		t.Fatalf("parse cookie: %v", err)
	}
	sess, err := tf.sessions.Load(context.Background(), sid)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return sess
}

func wantRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusFound, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Fatalf("redirect to %q, want %q", got, location)
	}
}

func containsFlash(body, message string) bool {
	return strings.Contains(body, message)
}

func lastFlash(t *testing.T, sess *session.Session) session.Flash {
	t.Helper()
	if len(sess.Flashes) == 0 {
		t.Fatalf("expected a flash message, session: %+v", sess)
	}
	return sess.Flashes[len(sess.Flashes)-1]
}
