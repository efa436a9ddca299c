package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nestmarket/internal/domain"
	"nestmarket/internal/repository"
)

// EngagementService decide si un login califica para el bono diario.
// Corre en cada autenticación exitosa de cuentas existentes; las
// cuentas nuevas reciben su bono de registro y nada más ese request.
type EngagementService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	ledger   *LedgerService
}

func NewEngagementService(logger *zap.Logger, accounts repository.AccountRepository, ledger *LedgerService) *EngagementService {
	return &EngagementService{
		logger:   logger,
		accounts: accounts,
		ledger:   ledger,
	}
}

// RecordLogin actualiza estadísticas de login y aplica el bono diario
// si la cuenta no alcanzó el tope de su rol. Pasarse del tope no es un
// error: el login cuenta para el historial igual.
func (s *EngagementService) RecordLogin(ctx context.Context, account domain.Account) (domain.Account, bool, error) {
	now := time.Now().UTC()

	dailyCount := account.Login.DailyLoginCount
	if account.Login.LastLoginAt == nil || !sameCalendarDay(*account.Login.LastLoginAt, now) {
		// Corte por día calendario, no ventana móvil de 24h.
		dailyCount = 0
	}

	bonusApplied := false
	if dailyCount < domain.DailyLoginCap(account.Role) {
		if _, err := s.ledger.Credit(ctx, account.ID, domain.DailyLoginBonus, domain.ReasonDailyLogin, ""); err != nil {
			return domain.Account{}, false, err
		}
		account.Wallet.Coins += domain.DailyLoginBonus
		account.Wallet.TotalEarned += domain.DailyLoginBonus
		dailyCount++
		bonusApplied = true
	}

	totalLogins := account.Login.TotalLogins + 1
	if err := s.accounts.UpdateLoginStats(ctx, account.ID, dailyCount, now, totalLogins); err != nil {
		return domain.Account{}, false, err
	}

	account.Login.DailyLoginCount = dailyCount
	account.Login.LastLoginAt = &now
	account.Login.TotalLogins = totalLogins
	return account, bonusApplied, nil
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
