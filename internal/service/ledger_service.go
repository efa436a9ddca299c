package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"nestmarket/internal/domain"
	"nestmarket/internal/repository"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient coins")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// LedgerService es el único componente que muta el saldo de monedas.
// Cada movimiento deja una entrada inmutable y una notificación.
type LedgerService struct {
	logger        *zap.Logger
	accounts      repository.AccountRepository
	transactions  repository.TransactionRepository
	notifications repository.NotificationRepository
}

func NewLedgerService(
	logger *zap.Logger,
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	notifications repository.NotificationRepository,
) *LedgerService {
	return &LedgerService{
		logger:        logger,
		accounts:      accounts,
		transactions:  transactions,
		notifications: notifications,
	}
}

// Credit suma monedas al saldo y registra el movimiento.
func (s *LedgerService) Credit(ctx context.Context, userID string, amount int, reason domain.TxReason, referenceID string) (domain.Transaction, error) {
	if amount <= 0 {
		return domain.Transaction{}, ErrInvalidAmount
	}
	balanceAfter, err := s.accounts.CreditWallet(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, ErrAccountNotFound
		}
		return domain.Transaction{}, err
	}
	return s.record(ctx, userID, domain.TxCredit, amount, reason, referenceID, balanceAfter)
}

// Debit descuenta monedas; falla sin mutar nada cuando el saldo no
// alcanza. El chequeo de suficiencia viaja en el mismo UPDATE.
func (s *LedgerService) Debit(ctx context.Context, userID string, amount int, reason domain.TxReason, referenceID string) (domain.Transaction, error) {
	if amount <= 0 {
		return domain.Transaction{}, ErrInvalidAmount
	}
	balanceAfter, err := s.accounts.DebitWallet(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// El UPDATE condicional no distingue cuenta inexistente de
			// saldo insuficiente; una lectura posterior lo resuelve.
			if _, getErr := s.accounts.GetByID(ctx, userID); getErr != nil {
				if errors.Is(getErr, pgx.ErrNoRows) {
					return domain.Transaction{}, ErrAccountNotFound
				}
				return domain.Transaction{}, getErr
			}
			return domain.Transaction{}, ErrInsufficientFunds
		}
		return domain.Transaction{}, err
	}
	return s.record(ctx, userID, domain.TxDebit, amount, reason, referenceID, balanceAfter)
}

// RecordInitialGrant deja constancia del bono de registro. El saldo
// inicial ya viene sembrado en el INSERT de la cuenta, así que aquí
// solo se escribe la entrada del libro y su notificación.
func (s *LedgerService) RecordInitialGrant(ctx context.Context, account domain.Account) (domain.Transaction, error) {
	grant := account.Wallet.Coins
	if grant <= 0 {
		return domain.Transaction{}, ErrInvalidAmount
	}
	tx := domain.Transaction{
		ID:            uuid.NewString(),
		UserID:        account.ID,
		Type:          domain.TxCredit,
		Amount:        grant,
		Reason:        domain.ReasonRegistration,
		BalanceBefore: 0,
		BalanceAfter:  grant,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		s.logger.Error("ledger entry write failed", zap.Error(err), zap.String("user_id", account.ID))
		return domain.Transaction{}, err
	}
	s.notify(ctx, tx)
	return tx, nil
}

func (s *LedgerService) record(ctx context.Context, userID string, txType domain.TxType, amount int, reason domain.TxReason, referenceID string, balanceAfter int) (domain.Transaction, error) {
	balanceBefore := balanceAfter - amount
	if txType == domain.TxDebit {
		balanceBefore = balanceAfter + amount
	}
	tx := domain.Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		Reason:        reason,
		ReferenceID:   referenceID,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.transactions.Create(ctx, tx); err != nil {
		// El saldo ya está aplicado; se pierde detalle de auditoría,
		// no la corrección del saldo.
		s.logger.Error("ledger entry write failed", zap.Error(err), zap.String("user_id", userID))
		return domain.Transaction{}, err
	}
	s.notify(ctx, tx)
	return tx, nil
}

func (s *LedgerService) notify(ctx context.Context, tx domain.Transaction) {
	n := domain.NewLedgerNotification(uuid.NewString(), tx)
	if err := s.notifications.Create(ctx, n); err != nil {
		s.logger.Warn("ledger notification write failed", zap.Error(err), zap.String("user_id", tx.UserID))
	}
}
