package service

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"nestmarket/internal/domain"
	"nestmarket/internal/repository"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidPassword    = errors.New("password too short")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNoPasswordSet      = errors.New("no password set for account")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrReferralExhausted  = errors.New("could not allocate unique referral code")
)

const minPasswordLength = 6

// referralCodeAttempts acota los reintentos contra el índice único.
// Agotarlos indica un espacio de códigos mal dimensionado.
const referralCodeAttempts = 12

// UserService resuelve cuentas: creación con bono inicial y referidos,
// sondeo de capacidades por email, login con contraseña y enrolamiento
// de contraseña para cuentas OTP/Google.
type UserService struct {
	logger     *zap.Logger
	accounts   repository.AccountRepository
	ledger     *LedgerService
	engagement *EngagementService
}

func NewUserService(logger *zap.Logger, accounts repository.AccountRepository, ledger *LedgerService, engagement *EngagementService) *UserService {
	return &UserService{
		logger:     logger,
		accounts:   accounts,
		ledger:     ledger,
		engagement: engagement,
	}
}

type CreateAccountInput struct {
	Email         string
	Phone         string
	FullName      string
	AvatarURL     string
	Role          string
	Password      string
	GoogleSubject string
	// Código de referido del padrino, si el registro trae uno.
	ReferralCode string
	// Solo el registro legado con contraseña deja el email sin verificar.
	EmailVerified bool
}

// CreateAccount crea la cuenta con su bono inicial según rol y aplica
// el bono de referido exactamente una vez, en la creación.
func (s *UserService) CreateAccount(ctx context.Context, input CreateAccountInput) (domain.Account, error) {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" {
		return domain.Account{}, ErrInvalidEmail
	}

	role := strings.ToLower(strings.TrimSpace(input.Role))
	switch role {
	case domain.RoleVendor, domain.RoleAdmin:
	default:
		role = domain.RoleUser
	}

	passwordHash := ""
	if password := strings.TrimSpace(input.Password); password != "" {
		if len(password) < minPasswordLength {
			return domain.Account{}, ErrInvalidPassword
		}
		hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Account{}, err
		}
		passwordHash = string(hashBytes)
	}

	var referrer *domain.Account
	if code := strings.ToUpper(strings.TrimSpace(input.ReferralCode)); code != "" {
		found, err := s.accounts.GetByReferralCode(ctx, code)
		if err == nil {
			referrer = &found
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, err
		}
		// Un código de referido desconocido no bloquea el registro.
	}

	grant := domain.InitialGrant(role)
	account := domain.Account{
		ID:              uuid.NewString(),
		Email:           emailAddr,
		Phone:           strings.TrimSpace(input.Phone),
		FullName:        strings.TrimSpace(input.FullName),
		AvatarURL:       strings.TrimSpace(input.AvatarURL),
		Role:            role,
		PasswordHash:    passwordHash,
		GoogleSubject:   strings.TrimSpace(input.GoogleSubject),
		IsEmailVerified: input.EmailVerified,
		IsActive:        true,
		Wallet: domain.Wallet{
			Coins:       grant,
			TotalEarned: grant,
		},
		CreatedAt: time.Now().UTC(),
	}
	if referrer != nil {
		account.ReferredBy = referrer.ID
	}

	if err := s.createWithReferralCode(ctx, &account); err != nil {
		return domain.Account{}, err
	}

	if _, err := s.ledger.RecordInitialGrant(ctx, account); err != nil {
		s.logger.Error("initial grant record failed", zap.Error(err), zap.String("account_id", account.ID))
	}

	if referrer != nil {
		if _, err := s.ledger.Credit(ctx, referrer.ID, domain.ReferrerBonus, domain.ReasonReferral, account.ID); err != nil {
			s.logger.Error("referrer bonus failed", zap.Error(err), zap.String("referrer_id", referrer.ID))
		}
		if tx, err := s.ledger.Credit(ctx, account.ID, domain.ReferredWelcomeBonus, domain.ReasonReferral, referrer.ID); err != nil {
			s.logger.Error("referred bonus failed", zap.Error(err), zap.String("account_id", account.ID))
		} else {
			account.Wallet.Coins = tx.BalanceAfter
			account.Wallet.TotalEarned += domain.ReferredWelcomeBonus
		}
	}

	return account, nil
}

// createWithReferralCode inserta la cuenta regenerando el código de
// referido si choca con el índice único.
func (s *UserService) createWithReferralCode(ctx context.Context, account *domain.Account) error {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return err
		}
		account.ReferralCode = code
		err = s.accounts.Create(ctx, *account)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrDuplicateReferralCode) {
			continue
		}
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return err
	}
	return ErrReferralExhausted
}

// EmailCheck reporta qué caminos de autenticación ofrece un email.
type EmailCheck struct {
	Exists      bool              `json:"exists"`
	HasPassword bool              `json:"has_password"`
	AuthMethod  domain.AuthMethod `json:"auth_method,omitempty"`
}

// CheckEmail es un sondeo sin efectos: nunca crea la cuenta.
func (s *UserService) CheckEmail(ctx context.Context, emailAddr string) (EmailCheck, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return EmailCheck{}, ErrInvalidEmail
	}
	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EmailCheck{}, nil
		}
		return EmailCheck{}, err
	}
	return EmailCheck{
		Exists:      true,
		HasPassword: account.HasPassword(),
		AuthMethod:  account.CurrentAuthMethod(),
	}, nil
}

// Authenticate valida email y contraseña. Una cuenta sin contraseña
// falla con ErrNoPasswordSet, señal para que el cliente caiga al flujo
// OTP en vez de tratarlo como credenciales malas.
func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.Account, bool, error) {
	emailAddr = normalizeEmail(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return domain.Account{}, false, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, false, ErrAccountNotFound
		}
		return domain.Account{}, false, err
	}
	if !account.IsActive {
		return domain.Account{}, false, ErrAccountNotFound
	}
	if !account.HasPassword() {
		return domain.Account{}, false, ErrNoPasswordSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return domain.Account{}, false, ErrInvalidCredentials
	}

	return s.engagement.RecordLogin(ctx, account)
}

// SetPassword enrola una contraseña para cuentas OTP/Google. La sesión
// ya autenticó a la cuenta, así que no se pide contraseña anterior.
func (s *UserService) SetPassword(ctx context.Context, accountID, password string) error {
	password = strings.TrimSpace(password)
	if len(password) < minPasswordLength {
		return ErrInvalidPassword
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.accounts.SetPassword(ctx, accountID, string(hashBytes)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

// GetAccount carga la cuenta activa detrás de una sesión válida.
func (s *UserService) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, err
	}
	if !account.IsActive {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, nil
}

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateReferralCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = referralAlphabet[int(b)%len(referralAlphabet)]
	}
	return string(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
