package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/worksuite/worksuite-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// Repository is the Ledger Store. LockByID, UpdateBalances and InsertTransaction are
// only meaningful inside a database.Transactor unit.
type Repository interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByWorkspaceID(ctx context.Context, workspaceID uuid.UUID) (*Wallet, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	UpdateBalances(ctx context.Context, w *Wallet) error
	InsertTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, filter HistoryFilter) ([]Transaction, error)
	SumAmounts(ctx context.Context, walletID uuid.UUID, types []TransactionType) (decimal.Decimal, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the PostgreSQL ledger store.
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const walletColumns = `id, workspace_id, balance, reserved_balance, currency, created_at, updated_at`

func (r *repository) Create(ctx context.Context, w *Wallet) error {
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO wallets (id, workspace_id, balance, reserved_balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workspace_id) DO NOTHING
	`, w.ID, w.WorkspaceID, w.Balance, w.ReservedBalance, w.Currency, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert wallet rows affected: %w", err)
	}
	if rows == 0 {
		return ErrWalletExists
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

func (r *repository) GetByWorkspaceID(ctx context.Context, workspaceID uuid.UUID) (*Wallet, error) {
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE workspace_id = $1`, workspaceID)
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	if !database.InTx(ctx) {
		return nil, errors.New("lock wallet: no open transaction")
	}
	return r.getOne(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) getOne(ctx context.Context, query string, arg interface{}) (*Wallet, error) {
	if !database.InTx(ctx) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, queryTimeout)
		defer cancel()
	}

	var w Wallet
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &w, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

func (r *repository) UpdateBalances(ctx context.Context, w *Wallet) error {
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, `
		UPDATE wallets
		SET balance = $2, reserved_balance = $3, updated_at = $4
		WHERE id = $1
	`, w.ID, w.Balance, w.ReservedBalance, w.UpdatedAt)
	if err != nil {
		if database.IsCheckViolation(err) {
			return fmt.Errorf("update wallet balances: constraint violated: %w", err)
		}
		return fmt.Errorf("update wallet balances: %w", err)
	}
	return nil
}

func (r *repository) InsertTransaction(ctx context.Context, tx *Transaction) error {
	_, err := database.Executor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO wallet_transactions (
			id, wallet_id, type, amount, description, reference_type, reference_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tx.ID, tx.WalletID, string(tx.Type), tx.Amount, tx.Description, tx.ReferenceType, tx.ReferenceID, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, filter HistoryFilter) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, wallet_id, type, amount, description, reference_type, reference_id, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1`
	args := []interface{}{walletID}

	if filter.Type != nil {
		query += ` AND type = $2`
		args = append(args, string(*filter.Type))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	transactions := make([]Transaction, 0)
	if err := sqlx.SelectContext(ctx2, database.Executor(ctx, r.db), &transactions, query, args...); err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return transactions, nil
}

func (r *repository) SumAmounts(ctx context.Context, walletID uuid.UUID, types []TransactionType) (decimal.Decimal, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	var total decimal.Decimal
	err := sqlx.GetContext(ctx2, database.Executor(ctx, r.db), &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_transactions
		WHERE wallet_id = $1 AND type = ANY($2)
	`, walletID, pq.Array(names))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum wallet transactions: %w", err)
	}
	return total, nil
}
