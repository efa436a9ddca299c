package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"nestmarket/internal/domain"
	"nestmarket/internal/repository"
	"nestmarket/internal/service"
)

type mockAccountRepo struct {
	accountsByID  map[string]domain.Account
	idsByEmail    map[string]string
	idsBySubject  map[string]string
	idsByReferral map[string]string
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{
		accountsByID:  make(map[string]domain.Account),
		idsByEmail:    make(map[string]string),
		idsBySubject:  make(map[string]string),
		idsByReferral: make(map[string]string),
	}
}

func (m *mockAccountRepo) Create(_ context.Context, a domain.Account) error {
	if _, ok := m.idsByEmail[a.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	if _, ok := m.idsByReferral[a.ReferralCode]; ok {
		return repository.ErrDuplicateReferralCode
	}
	m.accountsByID[a.ID] = a
	m.idsByEmail[a.Email] = a.ID
	if a.GoogleSubject != "" {
		m.idsBySubject[a.GoogleSubject] = a.ID
	}
	if a.ReferralCode != "" {
		m.idsByReferral[a.ReferralCode] = a.ID
	}
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (domain.Account, error) {
	a, ok := m.accountsByID[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *mockAccountRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	id, ok := m.idsByEmail[email]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *mockAccountRepo) GetByGoogleSubject(ctx context.Context, subject string) (domain.Account, error) {
	id, ok := m.idsBySubject[subject]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *mockAccountRepo) GetByReferralCode(ctx context.Context, code string) (domain.Account, error) {
	id, ok := m.idsByReferral[code]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *mockAccountRepo) SetPassword(_ context.Context, id, passwordHash string) error {
	a, ok := m.accountsByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.PasswordHash = passwordHash
	m.accountsByID[id] = a
	return nil
}

func (m *mockAccountRepo) LinkGoogle(_ context.Context, id, subject string) error {
	a, ok := m.accountsByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.GoogleSubject = subject
	m.accountsByID[id] = a
	m.idsBySubject[subject] = id
	return nil
}

func (m *mockAccountRepo) UpdateAvatar(_ context.Context, id, avatarURL string) error {
	a, ok := m.accountsByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.AvatarURL = avatarURL
	m.accountsByID[id] = a
	return nil
}

func (m *mockAccountRepo) VerifyEmail(_ context.Context, id string) error {
	a, ok := m.accountsByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.IsEmailVerified = true
	m.accountsByID[id] = a
	return nil
}

func (m *mockAccountRepo) UpdateLoginStats(_ context.Context, id string, dailyCount int, lastLoginAt time.Time, totalLogins int) error {
	a, ok := m.accountsByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Login.DailyLoginCount = dailyCount
	a.Login.LastLoginAt = &lastLoginAt
	a.Login.TotalLogins = totalLogins
	m.accountsByID[id] = a
	return nil
}

func (m *mockAccountRepo) CreditWallet(_ context.Context, id string, amount int) (int, error) {
	a, ok := m.accountsByID[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	a.Wallet.Coins += amount
	a.Wallet.TotalEarned += amount
	m.accountsByID[id] = a
	return a.Wallet.Coins, nil
}

func (m *mockAccountRepo) DebitWallet(_ context.Context, id string, amount int) (int, error) {
	a, ok := m.accountsByID[id]
	if !ok || a.Wallet.Coins < amount {
		return 0, pgx.ErrNoRows
	}
	a.Wallet.Coins -= amount
	a.Wallet.TotalSpent += amount
	m.accountsByID[id] = a
	return a.Wallet.Coins, nil
}

type mockTransactionRepo struct {
	txs []domain.Transaction
}

func (m *mockTransactionRepo) Create(_ context.Context, tx domain.Transaction) error {
	m.txs = append(m.txs, tx)
	return nil
}

func (m *mockTransactionRepo) ListByUser(_ context.Context, userID string, _ int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range m.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type mockNotificationRepo struct {
	items []domain.Notification
}

func (m *mockNotificationRepo) Create(_ context.Context, n domain.Notification) error {
	m.items = append(m.items, n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, _ int) ([]domain.Notification, error) {
	var out []domain.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	for i, n := range m.items {
		if n.ID == id && n.UserID == userID {
			m.items[i].IsRead = true
		}
	}
	return nil
}

type mockEmailSender struct {
	lastTo   string
	lastBody string
	err      error
}

func (m *mockEmailSender) Send(_ context.Context, toEmail, _ string, htmlBody string) error {
	m.lastTo = toEmail
	m.lastBody = htmlBody
	return m.err
}

type fakeGoogleVerifier struct {
	claims service.GoogleClaims
	err    error
}

func (f *fakeGoogleVerifier) Verify(_ context.Context, _ string) (service.GoogleClaims, error) {
	return f.claims, f.err
}

// handlerEnv arma el stack completo de servicios sobre mocks y expone
// el router real, para que los tests cubran rutas y middlewares.
type handlerEnv struct {
	accounts *mockAccountRepo
	txs      *mockTransactionRepo
	notes    *mockNotificationRepo
	sender   *mockEmailSender
	users    *service.UserService
	jwt      *service.JWTService
	router   *gin.Engine
}

func newHandlerEnv(limiter service.OTPRateLimiter, verifier service.GoogleTokenVerifier) *handlerEnv {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	env := &handlerEnv{
		accounts: newMockAccountRepo(),
		txs:      &mockTransactionRepo{},
		notes:    &mockNotificationRepo{},
		sender:   &mockEmailSender{},
	}
	if limiter == nil {
		limiter = service.NewOTPRateLimiter(time.Minute, 100)
	}

	ledger := service.NewLedgerService(logger, env.accounts, env.txs, env.notes)
	engagement := service.NewEngagementService(logger, env.accounts, ledger)
	env.users = service.NewUserService(logger, env.accounts, ledger, engagement)
	otp := service.NewOTPService(logger, env.accounts, env.users, engagement, service.NewMemoryOTPStore(), limiter, env.sender)
	google := service.NewGoogleAuthService(logger, env.accounts, env.users, engagement, verifier)
	env.jwt = service.NewJWTService("test-secret", time.Hour)

	authH := NewAuthHandler(logger, env.users, otp, google, engagement, env.jwt)
	walletH := NewWalletHandler(logger, env.users, ledger, env.txs, env.notes)
	env.router = NewRouter(logger, env.jwt, authH, walletH)
	return env
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	return performAuthedRequest(r, method, path, "", body)
}

func performAuthedRequest(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return body
}

// otpCodeFromEmail saca el código del último correo capturado.
func otpCodeFromEmail(t *testing.T, sender *mockEmailSender) string {
	t.Helper()
	start := strings.Index(sender.lastBody, "<strong>")
	end := strings.Index(sender.lastBody, "</strong>")
	if start == -1 || end == -1 {
		t.Fatalf("no code in email body: %q", sender.lastBody)
	}
	return sender.lastBody[start+len("<strong>") : end]
}

// registerAccount da de alta una cuenta por la API y devuelve el token.
func registerAccount(t *testing.T, env *handlerEnv, email, password string) (map[string]any, string) {
	t.Helper()
	rec := performRequest(env.router, http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d (%s)", email, rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("register response missing token")
	}
	return body, token
}
