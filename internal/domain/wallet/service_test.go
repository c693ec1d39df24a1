package wallet_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/worksuite/worksuite-api/internal/domain/wallet"
	"github.com/worksuite/worksuite-api/internal/pkg/clock"
	"github.com/worksuite/worksuite-api/internal/pkg/database"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newMemoryLedger(t *testing.T, bonus int64) (*wallet.Service, *clock.Fake) {
	t.Helper()
	tx := database.NewMemoryTransactor()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := wallet.NewService(wallet.NewMemoryRepository(tx), tx, clk, wallet.Config{
		Currency:        "COIN",
		OnboardingBonus: dec(bonus),
	})
	return svc, clk
}

func openWallet(t *testing.T, svc *wallet.Service) *wallet.Wallet {
	t.Helper()
	w, err := svc.OpenWallet(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("open wallet failed: %v", err)
	}
	return w
}

func historyLen(t *testing.T, svc *wallet.Service, workspaceID uuid.UUID) int {
	t.Helper()
	items, err := svc.GetTransactionHistory(context.Background(), workspaceID, wallet.HistoryFilter{Limit: 100})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	return len(items)
}

func TestReserveDebitReleaseScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 1000)
	w := openWallet(t, svc)

	if _, err := svc.ReserveBalance(ctx, w.ID, dec(200)); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	available, _ := svc.GetAvailableBalance(ctx, w.WorkspaceID)
	if !available.Equal(dec(800)) {
		t.Fatalf("expected available 800, got %s", available)
	}

	_, err := svc.AddTransaction(ctx, w.ID, wallet.TypeFeaturePurchase, dec(900), "too much", nil)
	var insufficient *wallet.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if !insufficient.Available.Equal(dec(800)) || !insufficient.Requested.Equal(dec(900)) {
		t.Fatalf("unexpected error amounts: available=%s requested=%s", insufficient.Available, insufficient.Requested)
	}
	balance, _ := svc.GetBalance(ctx, w.WorkspaceID)
	if !balance.Equal(dec(1000)) {
		t.Fatalf("expected balance 1000 after rejected debit, got %s", balance)
	}

	released, err := svc.ReleaseReservedBalance(ctx, w.ID, dec(200))
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !released.ReservedBalance.IsZero() {
		t.Fatalf("expected reserved 0, got %s", released.ReservedBalance)
	}
	available, _ = svc.GetAvailableBalance(ctx, w.WorkspaceID)
	if !available.Equal(dec(1000)) {
		t.Fatalf("expected available 1000, got %s", available)
	}

	entry, err := svc.AddTransaction(ctx, w.ID, wallet.TypeFeaturePurchase, dec(900), "ok", nil)
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if !entry.Amount.Equal(dec(900)) || entry.Type != wallet.TypeFeaturePurchase {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	balance, _ = svc.GetBalance(ctx, w.WorkspaceID)
	if !balance.Equal(dec(100)) {
		t.Fatalf("expected balance 100, got %s", balance)
	}
}

func TestFailedDebitLeavesNoPartialEffects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 50)
	w := openWallet(t, svc)

	if _, err := svc.ReserveBalance(ctx, w.ID, dec(10)); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	before := historyLen(t, svc, w.WorkspaceID)

	if _, err := svc.AddTransaction(ctx, w.ID, wallet.TypeUsage, dec(41), "usage", nil); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, err := svc.GetWallet(ctx, w.WorkspaceID)
	if err != nil {
		t.Fatalf("get wallet failed: %v", err)
	}
	if !got.Balance.Equal(dec(50)) || !got.ReservedBalance.Equal(dec(10)) {
		t.Fatalf("wallet changed after failed debit: balance=%s reserved=%s", got.Balance, got.ReservedBalance)
	}
	if after := historyLen(t, svc, w.WorkspaceID); after != before {
		t.Fatalf("expected %d transactions, got %d", before, after)
	}
}

func TestAddTransactionMovesBalanceByExactAmount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 0)
	w := openWallet(t, svc)

	amount := decimal.RequireFromString("12.3456")
	ref := &wallet.Reference{Type: "promotion", ID: "SPRING"}
	entry, err := svc.AddTransaction(ctx, w.ID, wallet.TypePromotion, amount, "spring promo", ref)
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if entry.ReferenceType == nil || *entry.ReferenceType != "promotion" || *entry.ReferenceID != "SPRING" {
		t.Fatalf("reference not recorded: %+v", entry)
	}

	if _, err := svc.AddTransaction(ctx, w.ID, wallet.TypeUsage, decimal.RequireFromString("0.0456"), "usage", nil); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	balance, _ := svc.GetBalance(ctx, w.WorkspaceID)
	if !balance.Equal(decimal.RequireFromString("12.3")) {
		t.Fatalf("expected balance 12.3, got %s", balance)
	}
	if n := historyLen(t, svc, w.WorkspaceID); n != 2 {
		t.Fatalf("expected 2 transactions, got %d", n)
	}
}

func TestAddTransactionValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 100)
	w := openWallet(t, svc)

	tests := []struct {
		name     string
		walletID uuid.UUID
		typ      wallet.TransactionType
		amount   decimal.Decimal
		want     error
	}{
		{"zero amount", w.ID, wallet.TypeManualCredit, decimal.Zero, wallet.ErrValidation},
		{"negative amount", w.ID, wallet.TypeManualCredit, dec(-5), wallet.ErrValidation},
		{"unknown type", w.ID, wallet.TransactionType("gift"), dec(5), wallet.ErrValidation},
		{"missing wallet id", uuid.Nil, wallet.TypeManualCredit, dec(5), wallet.ErrValidation},
		{"unknown wallet", uuid.New(), wallet.TypeManualCredit, dec(5), wallet.ErrWalletNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddTransaction(ctx, tt.walletID, tt.typ, tt.amount, "x", nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	balance, _ := svc.GetBalance(ctx, w.WorkspaceID)
	if !balance.Equal(dec(100)) {
		t.Fatalf("expected balance untouched at 100, got %s", balance)
	}
}

func TestReservationBounds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 100)
	w := openWallet(t, svc)

	if _, err := svc.ReserveBalance(ctx, w.ID, dec(101)); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if _, err := svc.ReserveBalance(ctx, w.ID, dec(30)); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	_, err := svc.ReleaseReservedBalance(ctx, w.ID, dec(31))
	var over *wallet.OverReleaseError
	if !errors.As(err, &over) {
		t.Fatalf("expected OverReleaseError, got %v", err)
	}
	if !over.Reserved.Equal(dec(30)) {
		t.Fatalf("expected reserved 30 in error, got %s", over.Reserved)
	}

	got, _ := svc.GetWallet(ctx, w.WorkspaceID)
	if !got.ReservedBalance.Equal(dec(30)) {
		t.Fatalf("expected reserved 30 after rejected release, got %s", got.ReservedBalance)
	}

	if _, err := svc.ReserveBalance(ctx, w.ID, decimal.Zero); !errors.Is(err, wallet.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero reserve, got %v", err)
	}
}

func TestReserveThenReleaseRestoresReservation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 500)
	w := openWallet(t, svc)

	if _, err := svc.ReserveBalance(ctx, w.ID, decimal.RequireFromString("12.5")); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	before, _ := svc.GetWallet(ctx, w.WorkspaceID)

	if _, err := svc.ReserveBalance(ctx, w.ID, decimal.RequireFromString("77.25")); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	after, err := svc.ReleaseReservedBalance(ctx, w.ID, decimal.RequireFromString("77.25"))
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !after.ReservedBalance.Equal(before.ReservedBalance) {
		t.Fatalf("expected reserved %s, got %s", before.ReservedBalance, after.ReservedBalance)
	}
}

func TestReadsWithoutWallet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 1000)
	workspaceID := uuid.New()

	balance, err := svc.GetBalance(ctx, workspaceID)
	if err != nil || !balance.IsZero() {
		t.Fatalf("expected zero balance and no error, got %s, %v", balance, err)
	}
	available, err := svc.GetAvailableBalance(ctx, workspaceID)
	if err != nil || !available.IsZero() {
		t.Fatalf("expected zero available and no error, got %s, %v", available, err)
	}
	items, err := svc.GetTransactionHistory(ctx, workspaceID, wallet.HistoryFilter{})
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty history, got %d items, %v", len(items), err)
	}
	if _, err := svc.GetWallet(ctx, workspaceID); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
	if _, err := svc.Debit(ctx, workspaceID, wallet.TypeManualDebit, dec(1), "x", nil); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound from debit, got %v", err)
	}
}

func TestOpenWalletIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 1000)
	workspaceID := uuid.New()

	first, err := svc.OpenWallet(ctx, workspaceID)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !first.Balance.Equal(dec(1000)) || first.Currency != "COIN" {
		t.Fatalf("unexpected opened wallet: balance=%s currency=%s", first.Balance, first.Currency)
	}

	second, err := svc.OpenWallet(ctx, workspaceID)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	if second.ID != first.ID || !second.Balance.Equal(dec(1000)) {
		t.Fatalf("expected the same wallet, got %s balance=%s", second.ID, second.Balance)
	}

	items, _ := svc.GetTransactionHistory(ctx, workspaceID, wallet.HistoryFilter{})
	if len(items) != 1 || items[0].Type != wallet.TypeOnboardingBonus {
		t.Fatalf("expected a single onboarding bonus entry, got %+v", items)
	}
	if items[0].ReferenceID == nil || *items[0].ReferenceID != workspaceID.String() {
		t.Fatalf("onboarding bonus should reference the workspace")
	}
}

func TestTransactionHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, clk := newMemoryLedger(t, 0)
	w := openWallet(t, svc)

	for i := 1; i <= 5; i++ {
		clk.Advance(time.Minute)
		if _, err := svc.AddTransaction(ctx, w.ID, wallet.TypeManualCredit, dec(int64(i)), "credit", nil); err != nil {
			t.Fatalf("credit %d failed: %v", i, err)
		}
	}
	clk.Advance(time.Minute)
	if _, err := svc.AddTransaction(ctx, w.ID, wallet.TypeUsage, dec(2), "usage", nil); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	page, err := svc.GetTransactionHistory(ctx, w.WorkspaceID, wallet.HistoryFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page) != 2 || !page[0].Amount.Equal(dec(5)) || !page[1].Amount.Equal(dec(4)) {
		t.Fatalf("unexpected page: %+v", page)
	}

	usage := wallet.TypeUsage
	filtered, err := svc.GetTransactionHistory(ctx, w.WorkspaceID, wallet.HistoryFilter{Type: &usage})
	if err != nil {
		t.Fatalf("filtered history failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Type != wallet.TypeUsage {
		t.Fatalf("expected one usage entry, got %+v", filtered)
	}

	bogus := wallet.TransactionType("bogus")
	if _, err := svc.GetTransactionHistory(ctx, w.WorkspaceID, wallet.HistoryFilter{Type: &bogus}); !errors.Is(err, wallet.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown filter type, got %v", err)
	}
}

func TestTotalsAndSummary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 1000)
	w := openWallet(t, svc)

	if _, err := svc.Credit(ctx, w.WorkspaceID, wallet.TypePlanReward, dec(250), "plan reward", nil); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if _, err := svc.Debit(ctx, w.WorkspaceID, wallet.TypeFeaturePurchase, dec(300), "feature", nil); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if _, err := svc.Debit(ctx, w.WorkspaceID, wallet.TypeUsage, dec(50), "usage", nil); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if _, err := svc.ReserveBalance(ctx, w.ID, dec(100)); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	earnings, _ := svc.GetTotalEarnings(ctx, w.WorkspaceID)
	spending, _ := svc.GetTotalSpending(ctx, w.WorkspaceID)
	if !earnings.Equal(dec(1250)) || !spending.Equal(dec(350)) {
		t.Fatalf("expected earnings 1250 spending 350, got %s %s", earnings, spending)
	}

	summary, err := svc.GetSummary(ctx, w.WorkspaceID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !summary.Balance.Equal(dec(900)) || !summary.Available.Equal(dec(800)) {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if !summary.Balance.Equal(earnings.Sub(spending)) {
		t.Fatalf("balance %s does not match ledger %s", summary.Balance, earnings.Sub(spending))
	}

	if _, err := svc.Credit(ctx, w.WorkspaceID, wallet.TypeUsage, dec(1), "wrong", nil); !errors.Is(err, wallet.ErrValidation) {
		t.Fatalf("expected ErrValidation for debit type on credit, got %v", err)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryLedger(t, 1000)
	w := openWallet(t, svc)

	const workers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddTransaction(ctx, w.ID, wallet.TypeUsage, dec(30), "usage", nil)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, wallet.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 33 {
		t.Fatalf("expected 33 successful debits, got %d", success)
	}
	balance, _ := svc.GetBalance(ctx, w.WorkspaceID)
	if !balance.Equal(dec(10)) {
		t.Fatalf("expected balance 10, got %s", balance)
	}
}

func TestAvailableIsClampedAtZero(t *testing.T) {
	w := wallet.Wallet{Balance: dec(10), ReservedBalance: dec(25)}
	if got := w.Available(); !got.IsZero() {
		t.Fatalf("expected clamped 0, got %s", got)
	}
}
