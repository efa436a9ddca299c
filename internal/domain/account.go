package domain

import "time"

// Roles soportados. El rol se fija al crear la cuenta.
const (
	RoleUser   = "user"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)

// AuthMethod describe la credencial activa de una cuenta.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodEmailOTP AuthMethod = "email-otp"
	AuthMethodGoogle   AuthMethod = "google"
)

// Wallet agrupa el estado de monedas de una cuenta.
// Invariante: TotalEarned - TotalSpent == Coins y Coins >= 0.
type Wallet struct {
	Coins       int `json:"coins"`
	TotalEarned int `json:"total_earned"`
	TotalSpent  int `json:"total_spent"`
}

// LoginStats acumula historial de logins para el bono diario.
type LoginStats struct {
	DailyLoginCount int        `json:"daily_login_count"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	TotalLogins     int        `json:"total_logins"`
}

type Account struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone,omitempty"`
	FullName        string     `json:"full_name,omitempty"`
	AvatarURL       string     `json:"avatar_url,omitempty"`
	Role            string     `json:"role"`
	PasswordHash    string     `json:"-"`
	GoogleSubject   string     `json:"-"`
	IsEmailVerified bool       `json:"is_email_verified"`
	IsActive        bool       `json:"is_active"`
	Wallet          Wallet     `json:"wallet"`
	Login           LoginStats `json:"login_stats"`
	ReferralCode    string     `json:"referral_code"`
	ReferredBy      string     `json:"referred_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasPassword indica si la cuenta puede autenticarse con contraseña.
func (a Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// CurrentAuthMethod se deriva del estado de credenciales en lugar de
// guardarse como campo separado, para que no pueda quedar desfasado.
func (a Account) CurrentAuthMethod() AuthMethod {
	switch {
	case a.PasswordHash != "":
		return AuthMethodPassword
	case a.GoogleSubject != "":
		return AuthMethodGoogle
	default:
		return AuthMethodEmailOTP
	}
}

// AccountView es la proyección de Account para respuestas HTTP.
type AccountView struct {
	Account
	HasPassword bool       `json:"has_password"`
	AuthMethod  AuthMethod `json:"auth_method"`
}

func (a Account) View() AccountView {
	return AccountView{
		Account:     a,
		HasPassword: a.HasPassword(),
		AuthMethod:  a.CurrentAuthMethod(),
	}
}

// InitialGrant devuelve las monedas iniciales según el rol.
func InitialGrant(role string) int {
	switch role {
	case RoleUser:
		return 40
	case RoleVendor:
		return 50
	default:
		return 100
	}
}

// DailyLoginCap devuelve el máximo de bonos diarios por rol.
func DailyLoginCap(role string) int {
	if role == RoleUser {
		return 3
	}
	return 4
}

// Montos fijos de bonos de monedas.
const (
	DailyLoginBonus      = 5
	ReferrerBonus        = 20
	ReferredWelcomeBonus = 10
)
