package wallet

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/worksuite/worksuite-api/internal/pkg/database"
)

// memoryRepository keeps wallets and their ledger in process. Every call runs inside
// the shared MemoryTransactor so it can join a caller's unit and be rolled back.
type memoryRepository struct {
	tx           *database.MemoryTransactor
	wallets      map[uuid.UUID]Wallet
	byWorkspace  map[uuid.UUID]uuid.UUID
	transactions []Transaction
}

// NewMemoryRepository creates an in-process ledger store bound to tx.
func NewMemoryRepository(tx *database.MemoryTransactor) Repository {
	return &memoryRepository{
		tx:          tx,
		wallets:     make(map[uuid.UUID]Wallet),
		byWorkspace: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *memoryRepository) Create(ctx context.Context, w *Wallet) error {
	return m.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, exists := m.byWorkspace[w.WorkspaceID]; exists {
			return ErrWalletExists
		}
		m.wallets[w.ID] = *w
		m.byWorkspace[w.WorkspaceID] = w.ID
		database.OnRollback(ctx, func() {
			delete(m.wallets, w.ID)
			delete(m.byWorkspace, w.WorkspaceID)
		})
		return nil
	})
}

func (m *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	var found *Wallet
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		if w, ok := m.wallets[id]; ok {
			found = &w
		}
		return nil
	})
	return found, err
}

func (m *memoryRepository) GetByWorkspaceID(ctx context.Context, workspaceID uuid.UUID) (*Wallet, error) {
	var found *Wallet
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		if id, ok := m.byWorkspace[workspaceID]; ok {
			w := m.wallets[id]
			found = &w
		}
		return nil
	})
	return found, err
}

// LockByID is GetByID; the transactor mutex already serialises the unit.
func (m *memoryRepository) LockByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	return m.GetByID(ctx, id)
}

func (m *memoryRepository) UpdateBalances(ctx context.Context, w *Wallet) error {
	return m.tx.WithinTx(ctx, func(ctx context.Context) error {
		prev, ok := m.wallets[w.ID]
		if !ok {
			return ErrWalletNotFound
		}
		next := prev
		next.Balance = w.Balance
		next.ReservedBalance = w.ReservedBalance
		next.UpdatedAt = w.UpdatedAt
		m.wallets[w.ID] = next
		database.OnRollback(ctx, func() { m.wallets[w.ID] = prev })
		return nil
	})
}

func (m *memoryRepository) InsertTransaction(ctx context.Context, tx *Transaction) error {
	return m.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, ok := m.wallets[tx.WalletID]; !ok {
			return ErrWalletNotFound
		}
		m.transactions = append(m.transactions, *tx)
		n := len(m.transactions)
		database.OnRollback(ctx, func() { m.transactions = m.transactions[:n-1] })
		return nil
	})
}

func (m *memoryRepository) ListTransactions(ctx context.Context, walletID uuid.UUID, filter HistoryFilter) ([]Transaction, error) {
	out := make([]Transaction, 0)
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		type indexed struct {
			seq int
			tx  Transaction
		}
		matched := make([]indexed, 0)
		for i, tx := range m.transactions {
			if tx.WalletID != walletID {
				continue
			}
			if filter.Type != nil && tx.Type != *filter.Type {
				continue
			}
			matched = append(matched, indexed{seq: i, tx: tx})
		}

		sort.SliceStable(matched, func(i, j int) bool {
			if !matched[i].tx.CreatedAt.Equal(matched[j].tx.CreatedAt) {
				return matched[i].tx.CreatedAt.After(matched[j].tx.CreatedAt)
			}
			return matched[i].seq > matched[j].seq
		})

		for i := filter.Offset; i < len(matched) && len(out) < filter.Limit; i++ {
			out = append(out, matched[i].tx)
		}
		return nil
	})
	return out, err
}

func (m *memoryRepository) SumAmounts(ctx context.Context, walletID uuid.UUID, types []TransactionType) (decimal.Decimal, error) {
	total := decimal.Zero
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, tx := range m.transactions {
			if tx.WalletID == walletID && containsType(types, tx.Type) {
				total = total.Add(tx.Amount)
			}
		}
		return nil
	})
	return total, err
}
