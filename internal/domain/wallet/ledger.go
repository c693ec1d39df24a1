package wallet

import "github.com/shopspring/decimal"

// nextBalance classifies t and computes the wallet balance after applying amount.
// Debits are checked against the available balance, not the raw balance, so
// reserved coins cannot be spent twice.
func nextBalance(w *Wallet, t TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case t.IsCredit():
		return w.Balance.Add(amount), nil
	case t.IsDebit():
		available := w.Balance.Sub(w.ReservedBalance)
		if available.LessThan(amount) {
			return decimal.Zero, &InsufficientFundsError{Available: w.Available(), Requested: amount}
		}
		return w.Balance.Sub(amount), nil
	default:
		return decimal.Zero, &ValidationError{Field: "type", Reason: "unrecognized transaction type " + string(t)}
	}
}

func nextReserved(w *Wallet, amount decimal.Decimal) (decimal.Decimal, error) {
	available := w.Balance.Sub(w.ReservedBalance)
	if available.LessThan(amount) {
		return decimal.Zero, &InsufficientFundsError{Available: w.Available(), Requested: amount}
	}
	return w.ReservedBalance.Add(amount), nil
}

func releasedReserved(w *Wallet, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.GreaterThan(w.ReservedBalance) {
		return decimal.Zero, &OverReleaseError{Reserved: w.ReservedBalance, Requested: amount}
	}
	return w.ReservedBalance.Sub(amount), nil
}
