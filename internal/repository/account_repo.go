package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"nestmarket/internal/domain"
)

// Errores de unicidad que el servicio traduce a conflictos visibles.
var (
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrDuplicateReferralCode = errors.New("referral code already taken")
)

// AccountRepository define el contrato de persistencia para cuentas.
// Las columnas de wallet solo se mutan via CreditWallet/DebitWallet.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByGoogleSubject(ctx context.Context, subject string) (domain.Account, error)
	GetByReferralCode(ctx context.Context, code string) (domain.Account, error)
	SetPassword(ctx context.Context, id, passwordHash string) error
	LinkGoogle(ctx context.Context, id, subject string) error
	UpdateAvatar(ctx context.Context, id, avatarURL string) error
	VerifyEmail(ctx context.Context, id string) error
	UpdateLoginStats(ctx context.Context, id string, dailyCount int, lastLoginAt time.Time, totalLogins int) error
	CreditWallet(ctx context.Context, id string, amount int) (int, error)
	DebitWallet(ctx context.Context, id string, amount int) (int, error)
}

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `
	id, email, phone, full_name, avatar_url, role, password_hash,
	google_subject, is_email_verified, is_active,
	coins, total_earned, total_spent,
	daily_login_count, last_login_at, total_logins,
	referral_code, referred_by, created_at
`

func (r *PgAccountRepository) Create(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NULLIF($18, ''), $19)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.Email,
		a.Phone,
		a.FullName,
		a.AvatarURL,
		a.Role,
		a.PasswordHash,
		a.GoogleSubject,
		a.IsEmailVerified,
		a.IsActive,
		a.Wallet.Coins,
		a.Wallet.TotalEarned,
		a.Wallet.TotalSpent,
		a.Login.DailyLoginCount,
		a.Login.LastLoginAt,
		a.Login.TotalLogins,
		a.ReferralCode,
		a.ReferredBy,
		a.CreatedAt,
	)
	return mapUniqueViolation(err)
}

// mapUniqueViolation traduce violaciones de índice único a errores propios.
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "referral") {
			return ErrDuplicateReferralCode
		}
		return ErrDuplicateEmail
	}
	return err
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanOne(ctx, query, email)
}

func (r *PgAccountRepository) GetByGoogleSubject(ctx context.Context, subject string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE google_subject = $1`
	return r.scanOne(ctx, query, subject)
}

func (r *PgAccountRepository) GetByReferralCode(ctx context.Context, code string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE referral_code = $1`
	return r.scanOne(ctx, query, code)
}

func (r *PgAccountRepository) scanOne(ctx context.Context, query string, arg any) (domain.Account, error) {
	var (
		a          domain.Account
		referredBy *string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID,
		&a.Email,
		&a.Phone,
		&a.FullName,
		&a.AvatarURL,
		&a.Role,
		&a.PasswordHash,
		&a.GoogleSubject,
		&a.IsEmailVerified,
		&a.IsActive,
		&a.Wallet.Coins,
		&a.Wallet.TotalEarned,
		&a.Wallet.TotalSpent,
		&a.Login.DailyLoginCount,
		&a.Login.LastLoginAt,
		&a.Login.TotalLogins,
		&a.ReferralCode,
		&referredBy,
		&a.CreatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	if referredBy != nil {
		a.ReferredBy = *referredBy
	}
	return a, nil
}

func (r *PgAccountRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE accounts SET password_hash = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, passwordHash)
}

func (r *PgAccountRepository) LinkGoogle(ctx context.Context, id, subject string) error {
	const query = `UPDATE accounts SET google_subject = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, subject)
}

func (r *PgAccountRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	const query = `UPDATE accounts SET avatar_url = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, avatarURL)
}

func (r *PgAccountRepository) VerifyEmail(ctx context.Context, id string) error {
	const query = `UPDATE accounts SET is_email_verified = TRUE WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PgAccountRepository) UpdateLoginStats(ctx context.Context, id string, dailyCount int, lastLoginAt time.Time, totalLogins int) error {
	const query = `
		UPDATE accounts
		SET daily_login_count = $2, last_login_at = $3, total_logins = $4
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, dailyCount, lastLoginAt, totalLogins)
}

// CreditWallet suma monedas de forma atómica y devuelve el saldo resultante.
func (r *PgAccountRepository) CreditWallet(ctx context.Context, id string, amount int) (int, error) {
	const query = `
		UPDATE accounts
		SET coins = coins + $2, total_earned = total_earned + $2
		WHERE id = $1
		RETURNING coins
	`
	var balance int
	err := r.pool.QueryRow(ctx, query, id, amount).Scan(&balance)
	return balance, err
}

// DebitWallet descuenta monedas solo si el saldo alcanza; la condición
// coins >= amount viaja en el mismo UPDATE para que dos débitos
// concurrentes no puedan dejar el saldo negativo.
func (r *PgAccountRepository) DebitWallet(ctx context.Context, id string, amount int) (int, error) {
	const query = `
		UPDATE accounts
		SET coins = coins - $2, total_spent = total_spent + $2
		WHERE id = $1 AND coins >= $2
		RETURNING coins
	`
	var balance int
	err := r.pool.QueryRow(ctx, query, id, amount).Scan(&balance)
	return balance, err
}

func (r *PgAccountRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
