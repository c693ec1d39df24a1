package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons recorded by the wallet ledger.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonOverRelease       = "over_release"
	ReasonWalletNotFound    = "wallet_not_found"
)

// Expiry paths recorded by the entitlement manager.
const (
	ExpiryLazy  = "lazy"
	ExpirySweep = "sweep"
)

var (
	// WalletTransactions counts committed ledger entries by transaction type.
	WalletTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worksuite_wallet_transactions_total",
		Help: "Ledger entries recorded, by transaction type.",
	}, []string{"type"})

	// WalletRejections counts ledger mutations refused by balance rules.
	WalletRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worksuite_wallet_rejections_total",
		Help: "Ledger mutations refused, by reason.",
	}, []string{"reason"})

	EntitlementActivations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worksuite_entitlement_activations_total",
		Help: "Feature activations, by entitlement source.",
	}, []string{"source"})

	EntitlementExpirations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worksuite_entitlement_expirations_total",
		Help: "Trial entitlements flipped to disabled, by detection path.",
	}, []string{"path"})

	FeaturePurchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worksuite_feature_purchases_total",
		Help: "Coin-funded feature purchases, by result.",
	}, []string{"result"})

	EntitlementCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worksuite_entitlement_cache_lookups_total",
		Help: "Entitlement decision cache lookups, by outcome.",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worksuite_http_request_duration_seconds",
		Help:    "HTTP request latency, by method, route pattern and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
