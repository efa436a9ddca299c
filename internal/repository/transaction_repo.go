package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"nestmarket/internal/domain"
)

// TransactionRepository persiste entradas del libro de monedas.
// Las filas nunca se actualizan ni se borran.
type TransactionRepository interface {
	Create(ctx context.Context, tx domain.Transaction) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

// PgTransactionRepository implementa TransactionRepository usando pgxpool.
type PgTransactionRepository struct {
	pool *pgxpool.Pool
}

func NewPgTransactionRepository(pool *pgxpool.Pool) *PgTransactionRepository {
	return &PgTransactionRepository{pool: pool}
}

func (r *PgTransactionRepository) Create(ctx context.Context, tx domain.Transaction) error {
	const query = `
		INSERT INTO coin_transactions
			(id, user_id, type, amount, reason, reference_id, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Type,
		tx.Amount,
		tx.Reason,
		tx.ReferenceID,
		tx.BalanceBefore,
		tx.BalanceAfter,
		tx.CreatedAt,
	)
	return err
}

func (r *PgTransactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, user_id, type, amount, reason, reference_id, balance_before, balance_after, created_at
		FROM coin_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Type,
			&tx.Amount,
			&tx.Reason,
			&tx.ReferenceID,
			&tx.BalanceBefore,
			&tx.BalanceAfter,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
