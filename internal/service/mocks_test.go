package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"nestmarket/internal/domain"
	"nestmarket/internal/repository"
)

type mockAccountRepo struct {
	mu             sync.Mutex
	accountsByID   map[string]domain.Account
	idsByEmail     map[string]string
	idsBySubject   map[string]string
	idsByReferral  map[string]string
	failCreateWith error
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
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateWith != nil {
		return m.failCreateWith
	}
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
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *mockAccountRepo) getLocked(id string) (domain.Account, error) {
	a, ok := m.accountsByID[id]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idsByEmail[email]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return m.getLocked(id)
}

func (m *mockAccountRepo) GetByGoogleSubject(_ context.Context, subject string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idsBySubject[subject]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return m.getLocked(id)
}

func (m *mockAccountRepo) GetByReferralCode(_ context.Context, code string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idsByReferral[code]
	if !ok {
		return domain.Account{}, pgx.ErrNoRows
	}
	return m.getLocked(id)
}

func (m *mockAccountRepo) SetPassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accountsByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.PasswordHash = passwordHash
	m.accountsByID[id] = a
	return nil
}

func (m *mockAccountRepo) LinkGoogle(_ context.Context, id, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accountsByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.AvatarURL = avatarURL
	m.accountsByID[id] = a
	return nil
}

func (m *mockAccountRepo) VerifyEmail(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accountsByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.IsEmailVerified = true
	m.accountsByID[id] = a
	return nil
}

func (m *mockAccountRepo) UpdateLoginStats(_ context.Context, id string, dailyCount int, lastLoginAt time.Time, totalLogins int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accountsByID[id]
	if !ok || a.Wallet.Coins < amount {
		// Misma señal que el UPDATE condicional sin filas afectadas.
		return 0, pgx.ErrNoRows
	}
	a.Wallet.Coins -= amount
	a.Wallet.TotalSpent += amount
	m.accountsByID[id] = a
	return a.Wallet.Coins, nil
}

type mockTransactionRepo struct {
	mu  sync.Mutex
	txs []domain.Transaction
	err error
}

func newMockTransactionRepo() *mockTransactionRepo {
	return &mockTransactionRepo{}
}

func (m *mockTransactionRepo) Create(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.txs = append(m.txs, tx)
	return nil
}

func (m *mockTransactionRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range m.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockTransactionRepo) byReason(userID string, reason domain.TxReason) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range m.txs {
		if tx.UserID == userID && tx.Reason == reason {
			out = append(out, tx)
		}
	}
	return out
}

type mockNotificationRepo struct {
	mu    sync.Mutex
	items []domain.Notification
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{}
}

func (m *mockNotificationRepo) Create(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.items {
		if n.ID == id && n.UserID == userID {
			m.items[i].IsRead = true
		}
	}
	return nil
}

// serviceStack arma el grafo de servicios sobre los mocks.
type serviceStack struct {
	accounts   *mockAccountRepo
	txs        *mockTransactionRepo
	notes      *mockNotificationRepo
	ledger     *LedgerService
	engagement *EngagementService
	users      *UserService
}

func newServiceStack() *serviceStack {
	s := &serviceStack{
		accounts: newMockAccountRepo(),
		txs:      newMockTransactionRepo(),
		notes:    newMockNotificationRepo(),
	}
	logger := zap.NewNop()
	s.ledger = NewLedgerService(logger, s.accounts, s.txs, s.notes)
	s.engagement = NewEngagementService(logger, s.accounts, s.ledger)
	s.users = NewUserService(logger, s.accounts, s.ledger, s.engagement)
	return s
}

type mockEmailSender struct {
	lastTo      string
	lastSubject string
	lastBody    string
	sendCount   int
	err         error
}

func (m *mockEmailSender) Send(_ context.Context, toEmail, subject, htmlBody string) error {
	m.sendCount++
	m.lastTo = toEmail
	m.lastSubject = subject
	m.lastBody = htmlBody
	return m.err
}
