package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"nestmarket/internal/domain"
	"nestmarket/internal/email"
	"nestmarket/internal/repository"
)

var (
	ErrOTPNotFound        = errors.New("otp not requested")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPTooManyAttempts = errors.New("otp attempts exceeded")
	ErrOTPInvalid         = errors.New("otp invalid")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrRateLimited        = errors.New("rate limited")
)

// OTPService maneja el camino de autenticación por código al correo.
type OTPService struct {
	logger      *zap.Logger
	accounts    repository.AccountRepository
	users       *UserService
	engagement  *EngagementService
	store       OTPStore
	limiter     OTPRateLimiter
	emailSender email.Sender
}

func NewOTPService(
	logger *zap.Logger,
	accounts repository.AccountRepository,
	users *UserService,
	engagement *EngagementService,
	store OTPStore,
	limiter OTPRateLimiter,
	emailSender email.Sender,
) *OTPService {
	if store == nil {
		store = NewMemoryOTPStore()
	}
	if limiter == nil {
		limiter = NewOTPRateLimiter(otpTTL, 3)
	}
	return &OTPService{
		logger:      logger,
		accounts:    accounts,
		users:       users,
		engagement:  engagement,
		store:       store,
		limiter:     limiter,
		emailSender: emailSender,
	}
}

// Send genera un código de 6 dígitos con TTL fijo y lo despacha por
// correo. Pisa cualquier desafío previo del mismo email y responde
// igual exista o no la cuenta: la existencia no se filtra por acá.
func (s *OTPService) Send(ctx context.Context, emailAddr, purpose string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}
	if s.limiter != nil && !s.limiter.Allow(emailAddr) {
		return ErrRateLimited
	}

	code, err := generateOTPCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().UTC().Add(otpTTL)

	// El desafío queda guardado antes de intentar el envío: un correo
	// fallido no corrompe el estado del OTP.
	if err := s.store.Save(ctx, emailAddr, OTPChallenge{
		CodeHash:  hashOTPCode(code),
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	if err := email.SendLoginOTP(ctx, s.emailSender, emailAddr, code, purpose, expiresAt); err != nil {
		s.logger.Warn("send otp email failed", zap.Error(err), zap.String("email", emailAddr))
		return ErrEmailSendFailure
	}
	return nil
}

type OTPVerifyInput struct {
	Email string
	Code  string
	// Contexto opcional para cuentas creadas desde este camino.
	Role         string
	ReferralCode string
	FullName     string
	Phone        string
}

type OTPVerifyResult struct {
	Account      domain.Account
	IsNewUser    bool
	BonusApplied bool
}

// Verify consume el desafío de forma atómica. Si el email no tiene
// cuenta, la crea recién acá (el sondeo de existencia nunca crea);
// si ya existe, corre el tracker de login diario.
func (s *OTPService) Verify(ctx context.Context, input OTPVerifyInput) (OTPVerifyResult, error) {
	emailAddr := normalizeEmail(input.Email)
	code := strings.TrimSpace(input.Code)
	if emailAddr == "" {
		return OTPVerifyResult{}, ErrInvalidEmail
	}
	if !isValidOTPCode(code) {
		return OTPVerifyResult{}, ErrOTPInvalid
	}

	verdict, err := s.store.Consume(ctx, emailAddr, hashOTPCode(code))
	if err != nil {
		return OTPVerifyResult{}, err
	}
	switch verdict {
	case OTPVerdictNotFound:
		return OTPVerifyResult{}, ErrOTPNotFound
	case OTPVerdictExpired:
		return OTPVerifyResult{}, ErrOTPExpired
	case OTPVerdictTooManyAttempts:
		return OTPVerifyResult{}, ErrOTPTooManyAttempts
	case OTPVerdictMismatch:
		return OTPVerifyResult{}, ErrOTPInvalid
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return OTPVerifyResult{}, err
		}
		created, err := s.users.CreateAccount(ctx, CreateAccountInput{
			Email:         emailAddr,
			Phone:         input.Phone,
			FullName:      input.FullName,
			Role:          input.Role,
			ReferralCode:  input.ReferralCode,
			EmailVerified: true,
		})
		if err != nil {
			return OTPVerifyResult{}, err
		}
		return OTPVerifyResult{Account: created, IsNewUser: true}, nil
	}

	if !account.IsEmailVerified {
		if err := s.accounts.VerifyEmail(ctx, account.ID); err != nil {
			return OTPVerifyResult{}, err
		}
		account.IsEmailVerified = true
	}

	account, bonusApplied, err := s.engagement.RecordLogin(ctx, account)
	if err != nil {
		return OTPVerifyResult{}, err
	}
	return OTPVerifyResult{Account: account, BonusApplied: bonusApplied}, nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func isValidOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
