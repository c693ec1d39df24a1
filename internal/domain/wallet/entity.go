package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the kind of a ledger entry. Direction is encoded by the type,
// never by the sign of the amount.
type TransactionType string

const (
	// Credits
	TypeOnboardingBonus TransactionType = "onboarding_bonus"
	TypePlanReward      TransactionType = "plan_reward"
	TypePromotion       TransactionType = "promotion"
	TypeManualCredit    TransactionType = "manual_credit"

	// Debits
	TypeFeaturePurchase   TransactionType = "feature_purchase"
	TypeExtensionPurchase TransactionType = "extension_purchase"
	TypeUsage             TransactionType = "usage"
	TypeManualDebit       TransactionType = "manual_debit"
)

var (
	creditTypes = []TransactionType{TypeOnboardingBonus, TypePlanReward, TypePromotion, TypeManualCredit}
	debitTypes  = []TransactionType{TypeFeaturePurchase, TypeExtensionPurchase, TypeUsage, TypeManualDebit}
)

// CreditTypes returns the credit half of the taxonomy.
func CreditTypes() []TransactionType {
	return append([]TransactionType(nil), creditTypes...)
}

// DebitTypes returns the debit half of the taxonomy.
func DebitTypes() []TransactionType {
	return append([]TransactionType(nil), debitTypes...)
}

func (t TransactionType) IsCredit() bool { return containsType(creditTypes, t) }
func (t TransactionType) IsDebit() bool  { return containsType(debitTypes, t) }
func (t TransactionType) Valid() bool    { return t.IsCredit() || t.IsDebit() }

func containsType(set []TransactionType, t TransactionType) bool {
	for _, candidate := range set {
		if candidate == t {
			return true
		}
	}
	return false
}

// Wallet is the per-workspace coin account.
type Wallet struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	WorkspaceID     uuid.UUID       `db:"workspace_id" json:"workspace_id"`
	Balance         decimal.Decimal `db:"balance" json:"balance"`
	ReservedBalance decimal.Decimal `db:"reserved_balance" json:"reserved_balance"`
	Currency        string          `db:"currency" json:"currency"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Available is balance minus reservations, clamped at zero.
func (w *Wallet) Available() decimal.Decimal {
	available := w.Balance.Sub(w.ReservedBalance)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// Reference links a ledger entry to the entity that caused it.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	WalletID      uuid.UUID       `db:"wallet_id" json:"wallet_id"`
	Type          TransactionType `db:"type" json:"type"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Description   string          `db:"description" json:"description"`
	ReferenceType *string         `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID   *string         `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// HistoryFilter pages through a wallet's ledger.
type HistoryFilter struct {
	Limit  int
	Offset int
	Type   *TransactionType
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (f HistoryFilter) normalize() HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Summary is a point-in-time view of a wallet and its ledger totals.
type Summary struct {
	WorkspaceID     uuid.UUID       `json:"workspace_id"`
	WalletID        uuid.UUID       `json:"wallet_id"`
	Currency        string          `json:"currency"`
	Balance         decimal.Decimal `json:"balance"`
	ReservedBalance decimal.Decimal `json:"reserved_balance"`
	Available       decimal.Decimal `json:"available"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
	TotalSpending   decimal.Decimal `json:"total_spending"`
}
