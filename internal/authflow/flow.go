// Package authflow modela la conversación de acceso que ven los
// clientes: email → contraseña u OTP → alta opcional de contraseña.
package authflow

import (
	"context"
	"errors"
	"time"

	"nestmarket/internal/domain"
	"nestmarket/internal/service"
)

// State es el estado visible del flujo.
type State string

const (
	StateEmail         State = "email"
	StatePasswordLogin State = "password-login"
	StateOTP           State = "otp"
	StatePasswordSetup State = "password-setup"
	StateDone          State = "done"
)

// ResendCooldown es la espera mínima entre reenvíos de código.
const ResendCooldown = 60 * time.Second

var (
	ErrInvalidTransition = errors.New("operation not valid in current state")
	ErrResendCooldown    = errors.New("resend cooldown active")
)

type accountResolver interface {
	CheckEmail(ctx context.Context, email string) (service.EmailCheck, error)
	Authenticate(ctx context.Context, email, password string) (domain.Account, bool, error)
	SetPassword(ctx context.Context, accountID, password string) error
}

type otpAuthenticator interface {
	Send(ctx context.Context, email, purpose string) error
	Verify(ctx context.Context, input service.OTPVerifyInput) (service.OTPVerifyResult, error)
}

type tokenIssuer interface {
	Issue(account domain.Account) (string, error)
}

// Flow es una instancia del flujo para un cliente. No es segura para
// uso concurrente: cada conversación lleva la suya.
type Flow struct {
	users  accountResolver
	otp    otpAuthenticator
	tokens tokenIssuer
	now    func() time.Time

	state      State
	email      string
	account    domain.Account
	token      string
	isNewUser  bool
	lastSentAt time.Time
}

func New(users accountResolver, otp otpAuthenticator, tokens tokenIssuer) *Flow {
	return &Flow{
		users:  users,
		otp:    otp,
		tokens: tokens,
		now:    time.Now,
		state:  StateEmail,
	}
}

func (f *Flow) State() State            { return f.state }
func (f *Flow) Account() domain.Account { return f.account }
func (f *Flow) Token() string           { return f.token }
func (f *Flow) IsNewUser() bool         { return f.isNewUser }

// RemainingCooldown informa cuánto falta para poder reenviar.
func (f *Flow) RemainingCooldown() time.Duration {
	if f.lastSentAt.IsZero() {
		return 0
	}
	remaining := ResendCooldown - f.now().Sub(f.lastSentAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SubmitEmail decide el camino: contraseña si la cuenta existe y tiene
// una; OTP en cualquier otro caso (incluida cuenta inexistente).
func (f *Flow) SubmitEmail(ctx context.Context, email string) (State, error) {
	if f.state != StateEmail {
		return f.state, ErrInvalidTransition
	}
	check, err := f.users.CheckEmail(ctx, email)
	if err != nil {
		return f.state, err
	}
	f.email = email

	if check.Exists && check.HasPassword {
		f.state = StatePasswordLogin
		return f.state, nil
	}

	purpose := "signup"
	if check.Exists {
		purpose = "login"
	}
	if err := f.otp.Send(ctx, email, purpose); err != nil {
		return f.state, err
	}
	f.lastSentAt = f.now()
	f.state = StateOTP
	return f.state, nil
}

// SubmitPassword intenta el login con contraseña. ErrNoPasswordSet es
// recuperable: dispara el OTP y el flujo sigue por ese camino. Otros
// fallos dejan el estado donde estaba.
func (f *Flow) SubmitPassword(ctx context.Context, password string) (State, error) {
	if f.state != StatePasswordLogin {
		return f.state, ErrInvalidTransition
	}
	account, _, err := f.users.Authenticate(ctx, f.email, password)
	if err != nil {
		if errors.Is(err, service.ErrNoPasswordSet) {
			if sendErr := f.otp.Send(ctx, f.email, "login"); sendErr != nil {
				return f.state, sendErr
			}
			f.lastSentAt = f.now()
			f.state = StateOTP
			return f.state, nil
		}
		return f.state, err
	}
	return f.finish(account)
}

// SubmitCode verifica el OTP. Usuarios nuevos o sin contraseña pasan
// por el alta opcional de contraseña antes de terminar.
func (f *Flow) SubmitCode(ctx context.Context, code string) (State, error) {
	if f.state != StateOTP {
		return f.state, ErrInvalidTransition
	}
	result, err := f.otp.Verify(ctx, service.OTPVerifyInput{Email: f.email, Code: code})
	if err != nil {
		return f.state, err
	}
	f.isNewUser = result.IsNewUser

	if result.IsNewUser || !result.Account.HasPassword() {
		f.account = result.Account
		token, err := f.tokens.Issue(result.Account)
		if err != nil {
			return f.state, err
		}
		f.token = token
		f.state = StatePasswordSetup
		return f.state, nil
	}
	return f.finish(result.Account)
}

// Resend reenvía el código respetando el cooldown. No toca la
// semántica de intentos más allá del pisado que ya hace Send.
func (f *Flow) Resend(ctx context.Context) error {
	if f.state != StateOTP {
		return ErrInvalidTransition
	}
	if f.RemainingCooldown() > 0 {
		return ErrResendCooldown
	}
	if err := f.otp.Send(ctx, f.email, "login"); err != nil {
		return err
	}
	f.lastSentAt = f.now()
	return nil
}

// SetupPassword enrola la contraseña elegida y cierra el flujo.
func (f *Flow) SetupPassword(ctx context.Context, password string) (State, error) {
	if f.state != StatePasswordSetup {
		return f.state, ErrInvalidTransition
	}
	if err := f.users.SetPassword(ctx, f.account.ID, password); err != nil {
		return f.state, err
	}
	f.state = StateDone
	return f.state, nil
}

// SkipPasswordSetup cierra el flujo sin enrolar contraseña.
func (f *Flow) SkipPasswordSetup() (State, error) {
	if f.state != StatePasswordSetup {
		return f.state, ErrInvalidTransition
	}
	f.state = StateDone
	return f.state, nil
}

func (f *Flow) finish(account domain.Account) (State, error) {
	token, err := f.tokens.Issue(account)
	if err != nil {
		return f.state, err
	}
	f.account = account
	f.token = token
	f.state = StateDone
	return f.state, nil
}
