package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"

	"nestmarket/internal/domain"
	"nestmarket/internal/repository"
)

var ErrGoogleTokenInvalid = errors.New("google token invalid")

// GoogleClaims son los claims verificados que este core consume.
type GoogleClaims struct {
	Subject       string
	Email         string
	GivenName     string
	FamilyName    string
	Picture       string
	EmailVerified bool
}

// GoogleTokenVerifier valida un ID token contra el client id propio.
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (GoogleClaims, error)
}

type googleIDTokenVerifier struct {
	clientID string
}

// NewGoogleTokenVerifier crea el verificador real contra Google.
func NewGoogleTokenVerifier(clientID string) GoogleTokenVerifier {
	return &googleIDTokenVerifier{clientID: clientID}
}

func (v *googleIDTokenVerifier) Verify(ctx context.Context, token string) (GoogleClaims, error) {
	payload, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return GoogleClaims{}, ErrGoogleTokenInvalid
	}
	subject, _ := payload.Claims["sub"].(string)
	emailAddr, _ := payload.Claims["email"].(string)
	givenName, _ := payload.Claims["given_name"].(string)
	familyName, _ := payload.Claims["family_name"].(string)
	picture, _ := payload.Claims["picture"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	return GoogleClaims{
		Subject:       subject,
		Email:         emailAddr,
		GivenName:     givenName,
		FamilyName:    familyName,
		Picture:       picture,
		EmailVerified: emailVerified,
	}, nil
}

// GoogleAuthService resuelve el camino de identidad de Google.
type GoogleAuthService struct {
	logger     *zap.Logger
	accounts   repository.AccountRepository
	users      *UserService
	engagement *EngagementService
	verifier   GoogleTokenVerifier
}

func NewGoogleAuthService(
	logger *zap.Logger,
	accounts repository.AccountRepository,
	users *UserService,
	engagement *EngagementService,
	verifier GoogleTokenVerifier,
) *GoogleAuthService {
	return &GoogleAuthService{
		logger:     logger,
		accounts:   accounts,
		users:      users,
		engagement: engagement,
		verifier:   verifier,
	}
}

type GoogleAuthResult struct {
	Account      domain.Account
	IsNewUser    bool
	BonusApplied bool
}

// Authenticate verifica el ID token, crea la cuenta si no existe y
// rellena datos faltantes si ya existe. Los writes de backfill solo
// ocurren cuando algo cambió de verdad.
func (s *GoogleAuthService) Authenticate(ctx context.Context, token string) (GoogleAuthResult, error) {
	if s.verifier == nil {
		return GoogleAuthResult{}, ErrGoogleTokenInvalid
	}
	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return GoogleAuthResult{}, ErrGoogleTokenInvalid
	}
	if claims.Subject == "" || normalizeEmail(claims.Email) == "" {
		return GoogleAuthResult{}, ErrGoogleTokenInvalid
	}

	account, err := s.lookup(ctx, claims)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return GoogleAuthResult{}, err
		}
		fullName := strings.TrimSpace(claims.GivenName + " " + claims.FamilyName)
		created, err := s.users.CreateAccount(ctx, CreateAccountInput{
			Email:         claims.Email,
			FullName:      fullName,
			AvatarURL:     claims.Picture,
			GoogleSubject: claims.Subject,
			EmailVerified: true,
		})
		if err != nil {
			return GoogleAuthResult{}, err
		}
		return GoogleAuthResult{Account: created, IsNewUser: true}, nil
	}

	if err := s.backfill(ctx, &account, claims); err != nil {
		return GoogleAuthResult{}, err
	}

	account, bonusApplied, err := s.engagement.RecordLogin(ctx, account)
	if err != nil {
		return GoogleAuthResult{}, err
	}
	return GoogleAuthResult{Account: account, BonusApplied: bonusApplied}, nil
}

func (s *GoogleAuthService) lookup(ctx context.Context, claims GoogleClaims) (domain.Account, error) {
	account, err := s.accounts.GetByGoogleSubject(ctx, claims.Subject)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, err
	}
	return s.accounts.GetByEmail(ctx, normalizeEmail(claims.Email))
}

func (s *GoogleAuthService) backfill(ctx context.Context, account *domain.Account, claims GoogleClaims) error {
	if account.GoogleSubject != claims.Subject {
		if err := s.accounts.LinkGoogle(ctx, account.ID, claims.Subject); err != nil {
			return err
		}
		account.GoogleSubject = claims.Subject
	}
	if account.AvatarURL == "" && claims.Picture != "" {
		if err := s.accounts.UpdateAvatar(ctx, account.ID, claims.Picture); err != nil {
			return err
		}
		account.AvatarURL = claims.Picture
	}
	if !account.IsEmailVerified {
		if err := s.accounts.VerifyEmail(ctx, account.ID); err != nil {
			return err
		}
		account.IsEmailVerified = true
	}
	return nil
}
