package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/worksuite/worksuite-api/internal/pkg/clock"
	"github.com/worksuite/worksuite-api/internal/pkg/database"
	"github.com/worksuite/worksuite-api/internal/pkg/metrics"
)

const (
	DefaultCurrency = "COIN"

	ReferenceWorkspace = "workspace"
	ReferenceFeature   = "feature"
)

// DefaultOnboardingBonus is credited once when a workspace wallet is opened.
var DefaultOnboardingBonus = decimal.NewFromInt(1000)

type Config struct {
	Currency        string
	OnboardingBonus decimal.Decimal
}

// Service is the wallet ledger.
type Service struct {
	repo  Repository
	tx    database.Transactor
	clock clock.Clock
	cfg   Config
}

func NewService(repo Repository, tx database.Transactor, clk clock.Clock, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{repo: repo, tx: tx, clock: clk, cfg: cfg}
}

// GetBalance returns the wallet balance of a workspace, zero when it has no wallet.
func (s *Service) GetBalance(ctx context.Context, workspaceID uuid.UUID) (decimal.Decimal, error) {
	w, err := s.repo.GetByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return decimal.Zero, err
	}
	if w == nil {
		return decimal.Zero, nil
	}
	return w.Balance, nil
}

// GetAvailableBalance returns max(0, balance - reserved), zero when there is no wallet.
func (s *Service) GetAvailableBalance(ctx context.Context, workspaceID uuid.UUID) (decimal.Decimal, error) {
	w, err := s.repo.GetByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return decimal.Zero, err
	}
	if w == nil {
		return decimal.Zero, nil
	}
	return w.Available(), nil
}

// GetWallet resolves the wallet of a workspace.
func (s *Service) GetWallet(ctx context.Context, workspaceID uuid.UUID) (*Wallet, error) {
	w, err := s.repo.GetByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWalletNotFound
	}
	return w, nil
}

// OpenWallet creates the workspace wallet and credits the onboarding bonus in one unit.
// Opening an already opened wallet returns the existing one unchanged.
func (s *Service) OpenWallet(ctx context.Context, workspaceID uuid.UUID) (*Wallet, error) {
	if workspaceID == uuid.Nil {
		return nil, &ValidationError{Field: "workspace_id", Reason: "is required"}
	}

	var opened *Wallet
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()
		w := &Wallet{
			ID:              uuid.New(),
			WorkspaceID:     workspaceID,
			Balance:         decimal.Zero,
			ReservedBalance: decimal.Zero,
			Currency:        s.cfg.Currency,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Create(ctx, w); err != nil {
			return err
		}

		if s.cfg.OnboardingBonus.IsPositive() {
			ref := &Reference{Type: ReferenceWorkspace, ID: workspaceID.String()}
			if _, err := s.apply(ctx, w.ID, TypeOnboardingBonus, s.cfg.OnboardingBonus, "Workspace onboarding bonus", ref); err != nil {
				return err
			}
		}

		var err error
		opened, err = s.repo.GetByID(ctx, w.ID)
		return err
	})
	if errors.Is(err, ErrWalletExists) {
		return s.GetWallet(ctx, workspaceID)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("workspace_id", workspaceID.String()).
		Str("wallet_id", opened.ID.String()).
		Str("bonus", s.cfg.OnboardingBonus.String()).
		Msg("wallet opened")
	return opened, nil
}

// AddTransaction records a ledger entry and moves the balance by exactly amount.
func (s *Service) AddTransaction(ctx context.Context, walletID uuid.UUID, t TransactionType, amount decimal.Decimal, description string, ref *Reference) (*Transaction, error) {
	if err := validateEntry(walletID, t, amount); err != nil {
		return nil, err
	}

	var recorded *Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		recorded, err = s.apply(ctx, walletID, t, amount, description, ref)
		return err
	})
	if err != nil {
		s.reject(err, walletID, t, amount)
		return nil, err
	}

	log.Info().
		Str("wallet_id", walletID.String()).
		Str("type", string(t)).
		Str("amount", amount.String()).
		Msg("wallet transaction recorded")
	return recorded, nil
}

// Credit resolves the workspace wallet and records a credit entry.
func (s *Service) Credit(ctx context.Context, workspaceID uuid.UUID, t TransactionType, amount decimal.Decimal, description string, ref *Reference) (*Transaction, error) {
	if !t.IsCredit() {
		return nil, &ValidationError{Field: "type", Reason: string(t) + " is not a credit"}
	}
	return s.addByWorkspace(ctx, workspaceID, t, amount, description, ref)
}

// Debit resolves the workspace wallet and records a debit entry.
func (s *Service) Debit(ctx context.Context, workspaceID uuid.UUID, t TransactionType, amount decimal.Decimal, description string, ref *Reference) (*Transaction, error) {
	if !t.IsDebit() {
		return nil, &ValidationError{Field: "type", Reason: string(t) + " is not a debit"}
	}
	return s.addByWorkspace(ctx, workspaceID, t, amount, description, ref)
}

func (s *Service) addByWorkspace(ctx context.Context, workspaceID uuid.UUID, t TransactionType, amount decimal.Decimal, description string, ref *Reference) (*Transaction, error) {
	w, err := s.GetWallet(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			metrics.WalletRejections.WithLabelValues(metrics.ReasonWalletNotFound).Inc()
		}
		return nil, err
	}
	return s.AddTransaction(ctx, w.ID, t, amount, description, ref)
}

// ReserveBalance places a hold on available coins without debiting them.
func (s *Service) ReserveBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (*Wallet, error) {
	return s.adjustReserved(ctx, walletID, amount, nextReserved, "wallet balance reserved")
}

// ReleaseReservedBalance returns previously reserved coins to the available balance.
func (s *Service) ReleaseReservedBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (*Wallet, error) {
	return s.adjustReserved(ctx, walletID, amount, releasedReserved, "wallet reservation released")
}

func (s *Service) adjustReserved(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, next func(*Wallet, decimal.Decimal) (decimal.Decimal, error), msg string) (*Wallet, error) {
	if walletID == uuid.Nil {
		return nil, &ValidationError{Field: "wallet_id", Reason: "is required"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	var updated *Wallet
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.lock(ctx, walletID)
		if err != nil {
			return err
		}

		reserved, err := next(w, amount)
		if err != nil {
			return err
		}

		w.ReservedBalance = reserved
		w.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateBalances(ctx, w); err != nil {
			return err
		}
		updated = w
		return nil
	})
	if err != nil {
		s.reject(err, walletID, "", amount)
		return nil, err
	}

	log.Info().
		Str("wallet_id", walletID.String()).
		Str("amount", amount.String()).
		Str("reserved", updated.ReservedBalance.String()).
		Msg(msg)
	return updated, nil
}

// GetTransactionHistory pages through the workspace ledger, newest first.
func (s *Service) GetTransactionHistory(ctx context.Context, workspaceID uuid.UUID, filter HistoryFilter) ([]Transaction, error) {
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "unrecognized transaction type " + string(*filter.Type)}
	}

	w, err := s.repo.GetByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return []Transaction{}, nil
	}
	return s.repo.ListTransactions(ctx, w.ID, filter.normalize())
}

// GetTotalEarnings sums every credit entry of the workspace wallet.
func (s *Service) GetTotalEarnings(ctx context.Context, workspaceID uuid.UUID) (decimal.Decimal, error) {
	return s.sum(ctx, workspaceID, creditTypes)
}

// GetTotalSpending sums every debit entry of the workspace wallet.
func (s *Service) GetTotalSpending(ctx context.Context, workspaceID uuid.UUID) (decimal.Decimal, error) {
	return s.sum(ctx, workspaceID, debitTypes)
}

func (s *Service) sum(ctx context.Context, workspaceID uuid.UUID, types []TransactionType) (decimal.Decimal, error) {
	w, err := s.repo.GetByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return decimal.Zero, err
	}
	if w == nil {
		return decimal.Zero, nil
	}
	return s.repo.SumAmounts(ctx, w.ID, types)
}

// GetSummary returns balances and ledger totals of the workspace wallet.
func (s *Service) GetSummary(ctx context.Context, workspaceID uuid.UUID) (*Summary, error) {
	w, err := s.GetWallet(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	earnings, err := s.repo.SumAmounts(ctx, w.ID, creditTypes)
	if err != nil {
		return nil, err
	}
	spending, err := s.repo.SumAmounts(ctx, w.ID, debitTypes)
	if err != nil {
		return nil, err
	}

	return &Summary{
		WorkspaceID:     w.WorkspaceID,
		WalletID:        w.ID,
		Currency:        w.Currency,
		Balance:         w.Balance,
		ReservedBalance: w.ReservedBalance,
		Available:       w.Available(),
		TotalEarnings:   earnings,
		TotalSpending:   spending,
	}, nil
}

// apply must run inside a unit of work.
func (s *Service) apply(ctx context.Context, walletID uuid.UUID, t TransactionType, amount decimal.Decimal, description string, ref *Reference) (*Transaction, error) {
	w, err := s.lock(ctx, walletID)
	if err != nil {
		return nil, err
	}

	balance, err := nextBalance(w, t, amount)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	w.Balance = balance
	w.UpdatedAt = now
	if err := s.repo.UpdateBalances(ctx, w); err != nil {
		return nil, err
	}

	entry := &Transaction{
		ID:          uuid.New(),
		WalletID:    walletID,
		Type:        t,
		Amount:      amount,
		Description: description,
		CreatedAt:   now,
	}
	if ref != nil {
		refType, refID := ref.Type, ref.ID
		entry.ReferenceType = &refType
		entry.ReferenceID = &refID
	}
	if err := s.repo.InsertTransaction(ctx, entry); err != nil {
		return nil, err
	}

	metrics.WalletTransactions.WithLabelValues(string(t)).Inc()
	return entry, nil
}

func (s *Service) lock(ctx context.Context, walletID uuid.UUID) (*Wallet, error) {
	w, err := s.repo.LockByID(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet %s: %w", walletID, err)
	}
	if w == nil {
		return nil, ErrWalletNotFound
	}
	return w, nil
}

func (s *Service) reject(err error, walletID uuid.UUID, t TransactionType, amount decimal.Decimal) {
	var reason string
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		reason = metrics.ReasonInsufficientFunds
	case errors.Is(err, ErrOverRelease):
		reason = metrics.ReasonOverRelease
	case errors.Is(err, ErrWalletNotFound):
		reason = metrics.ReasonWalletNotFound
	default:
		return
	}

	metrics.WalletRejections.WithLabelValues(reason).Inc()
	log.Warn().
		Err(err).
		Str("wallet_id", walletID.String()).
		Str("type", string(t)).
		Str("amount", amount.String()).
		Msg("wallet operation rejected")
}

func validateEntry(walletID uuid.UUID, t TransactionType, amount decimal.Decimal) error {
	if walletID == uuid.Nil {
		return &ValidationError{Field: "wallet_id", Reason: "is required"}
	}
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !t.Valid() {
		return &ValidationError{Field: "type", Reason: "unrecognized transaction type " + string(t)}
	}
	return nil
}
