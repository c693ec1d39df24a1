package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/worksuite/worksuite-api/internal/domain/entitlement"
	"github.com/worksuite/worksuite-api/internal/domain/feature"
	"github.com/worksuite/worksuite-api/internal/domain/wallet"
	"github.com/worksuite/worksuite-api/internal/pkg/database"
	"github.com/worksuite/worksuite-api/internal/pkg/metrics"
)

var (
	ErrInvalidPrice = errors.New("price must be greater than zero")
	// ErrNotForSale is returned by a PriceSource that has no price for the feature.
	ErrNotForSale = errors.New("feature is not for sale")
)

// Purchase results recorded in metrics.
const (
	resultSuccess           = "success"
	resultInvalid           = "invalid"
	resultNoWallet          = "no_wallet"
	resultInsufficientFunds = "insufficient_funds"
	resultNotForSale        = "not_for_sale"
	resultActivationFailed  = "activation_failed"
	resultError             = "error"
)

// Ledger is the part of the wallet ledger a purchase needs.
type Ledger interface {
	GetWallet(ctx context.Context, workspaceID uuid.UUID) (*wallet.Wallet, error)
	Debit(ctx context.Context, workspaceID uuid.UUID, t wallet.TransactionType, amount decimal.Decimal, description string, ref *wallet.Reference) (*wallet.Transaction, error)
}

// Entitlements is the part of the entitlement manager a purchase needs. PromoteTrial
// activates permanently and turns a running trial into a permanent grant.
type Entitlements interface {
	PromoteTrial(ctx context.Context, workspaceID uuid.UUID, featureCode string, source entitlement.Source) (*entitlement.WorkspaceFeature, error)
}

// PriceSource quotes the coin price of a feature for a workspace. Pricing is owned by
// the billing side; member-initiated purchases never take a price from the caller.
type PriceSource interface {
	PriceOf(ctx context.Context, workspaceID uuid.UUID, featureCode string) (decimal.Decimal, error)
}

// StaticPrices is a fixed price list keyed by feature code.
type StaticPrices map[string]decimal.Decimal

func (p StaticPrices) PriceOf(_ context.Context, _ uuid.UUID, featureCode string) (decimal.Decimal, error) {
	price, ok := p[normalizeCode(featureCode)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNotForSale, normalizeCode(featureCode))
	}
	return price, nil
}

// Receipt is the outcome of a committed purchase.
type Receipt struct {
	Feature     *entitlement.WorkspaceFeature `json:"feature"`
	Transaction *wallet.Transaction           `json:"transaction"`
}

// Service sells features for wallet coins. The debit and the activation share one
// storage unit, so a failed activation leaves the wallet untouched.
type Service struct {
	ledger       Ledger
	entitlements Entitlements
	prices       PriceSource
	tx           database.Transactor
}

func NewService(ledger Ledger, entitlements Entitlements, prices PriceSource, tx database.Transactor) *Service {
	if prices == nil {
		prices = StaticPrices{}
	}
	return &Service{ledger: ledger, entitlements: entitlements, prices: prices, tx: tx}
}

// PurchaseAtListPrice buys the feature at the price quoted by the PriceSource.
func (s *Service) PurchaseAtListPrice(ctx context.Context, workspaceID uuid.UUID, featureCode string) (*Receipt, error) {
	featureCode = normalizeCode(featureCode)
	price, err := s.prices.PriceOf(ctx, workspaceID, featureCode)
	if err != nil {
		metrics.FeaturePurchases.WithLabelValues(classify(err)).Inc()
		return nil, err
	}
	return s.PurchaseFeatureWithCoins(ctx, workspaceID, featureCode, price)
}

// PurchaseFeatureWithCoins debits price from the workspace wallet and grants the feature
// permanently with source store. A running trial becomes permanent. Buying a feature the
// workspace already holds permanently still charges, as any other purchase.
func (s *Service) PurchaseFeatureWithCoins(ctx context.Context, workspaceID uuid.UUID, featureCode string, price decimal.Decimal) (*Receipt, error) {
	featureCode = normalizeCode(featureCode)
	if !price.IsPositive() {
		metrics.FeaturePurchases.WithLabelValues(resultInvalid).Inc()
		return nil, ErrInvalidPrice
	}

	receipt := &Receipt{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.ledger.GetWallet(ctx, workspaceID)
		if err != nil {
			return err
		}
		if w.Available().LessThan(price) {
			return &wallet.InsufficientFundsError{Available: w.Available(), Requested: price}
		}

		ref := &wallet.Reference{Type: wallet.ReferenceFeature, ID: featureCode}
		receipt.Transaction, err = s.ledger.Debit(ctx, workspaceID, wallet.TypeFeaturePurchase, price, "Feature purchase: "+featureCode, ref)
		if err != nil {
			return err
		}

		receipt.Feature, err = s.entitlements.PromoteTrial(ctx, workspaceID, featureCode, entitlement.SourceStore)
		return err
	})
	if err != nil {
		result := classify(err)
		metrics.FeaturePurchases.WithLabelValues(result).Inc()
		log.Warn().
			Err(err).
			Str("workspace_id", workspaceID.String()).
			Str("feature_code", featureCode).
			Str("price", price.String()).
			Str("result", result).
			Msg("feature purchase failed")
		return nil, err
	}

	metrics.FeaturePurchases.WithLabelValues(resultSuccess).Inc()
	log.Info().
		Str("workspace_id", workspaceID.String()).
		Str("feature_code", featureCode).
		Str("price", price.String()).
		Str("transaction_id", receipt.Transaction.ID.String()).
		Msg("feature purchased")
	return receipt, nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, wallet.ErrWalletNotFound):
		return resultNoWallet
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return resultInsufficientFunds
	case errors.Is(err, ErrNotForSale):
		return resultNotForSale
	case errors.Is(err, wallet.ErrValidation):
		return resultInvalid
	case errors.Is(err, entitlement.ErrUnknownFeature), errors.Is(err, feature.ErrFeatureInactive),
		errors.Is(err, entitlement.ErrVersionConflict):
		return resultActivationFailed
	default:
		return resultError
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
