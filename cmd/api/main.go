package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/worksuite/worksuite-api/internal/config"
	"github.com/worksuite/worksuite-api/internal/domain/entitlement"
	"github.com/worksuite/worksuite-api/internal/domain/feature"
	"github.com/worksuite/worksuite-api/internal/domain/purchase"
	"github.com/worksuite/worksuite-api/internal/domain/wallet"
	"github.com/worksuite/worksuite-api/internal/middleware"
	"github.com/worksuite/worksuite-api/internal/pkg/clock"
	"github.com/worksuite/worksuite-api/internal/pkg/database"
	"github.com/worksuite/worksuite-api/internal/pkg/jwt"
	"github.com/worksuite/worksuite-api/internal/pkg/logger"
	pkgresponse "github.com/worksuite/worksuite-api/internal/pkg/response"
)

// stores groups the repositories of one storage driver.
type stores struct {
	tx           database.Transactor
	wallets      wallet.Repository
	features     feature.Repository
	entitlements entitlement.Repository
	ping         func(ctx context.Context) error
	close        func()
}

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("store", cfg.StoreDriver).
		Msg("Starting WorkSuite API")

	st := openStores(cfg)
	defer st.close()

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	clk := clock.Real()
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Services ----------
	catalog := feature.NewService(st.features, clk, cfg.CatalogCacheTTL)
	var catalogSync *feature.Sync
	if redisClient != nil {
		catalogSync = feature.NewSync(redisClient, catalog)
		catalog.SetNotifier(catalogSync)
	}
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := catalog.Seed(seedCtx, feature.DefaultFeatures()); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed feature catalog")
	}
	cancelSeed()

	ledger := wallet.NewService(st.wallets, st.tx, clk, wallet.Config{
		Currency:        cfg.WalletCurrency,
		OnboardingBonus: cfg.WalletOnboardingBonus,
	})
	manager := entitlement.NewManager(st.entitlements, catalog, st.tx, decisionCache(redisClient, clk), clk, entitlement.Config{
		CacheTTL: cfg.FeatureCacheTTL,
	})
	purchases := purchase.NewService(ledger, manager, purchase.StaticPrices(cfg.FeaturePrices), st.tx)

	// ---------- Handlers ----------
	walletHandler := wallet.NewHandler(ledger)
	featureHandler := feature.NewHandler(catalog)
	entitlementHandler := entitlement.NewHandler(manager, cfg.ExpiryWarningDays)
	purchaseHandler := purchase.NewHandler(purchases)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok", "store": cfg.StoreDriver}
		if err := st.ping(ctx); err != nil {
			pkgresponse.Error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Store is unreachable")
			return
		}
		pkgresponse.OK(w, status)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Mount("/features", featureHandler.Routes())

		r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.Workspace)

			r.Mount("/wallet", walletHandler.Routes())

			r.Route("/features", func(r chi.Router) {
				r.Get("/", entitlementHandler.Active)
				r.Get("/expiring", entitlementHandler.Expiring)
				r.Get("/{code}", entitlementHandler.Status)
				r.With(middleware.RequireFeatureParam(manager, "code")).Get("/{code}/access", entitlementHandler.Access)
				r.Post("/{code}/purchase", purchaseHandler.Purchase)
			})
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin())

		r.Mount("/features", featureHandler.AdminRoutes())

		r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
			r.Use(middleware.Workspace)
			r.Mount("/wallet", walletHandler.AdminRoutes())
			entitlementAdmin := entitlementHandler.AdminRoutes()
			entitlementAdmin.Post("/{code}/purchase", purchaseHandler.PurchaseWithPrice)
			r.Mount("/features", entitlementAdmin)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var expiryWorker *entitlement.ExpiryWorker
	if cfg.ExpirySweepInterval > 0 {
		expiryWorker = entitlement.NewExpiryWorker(manager, cfg.ExpirySweepInterval)
		expiryWorker.Start()
	} else {
		log.Info().Msg("Entitlement expiry sweep disabled, trials expire on access only")
	}

	g, gctx := errgroup.WithContext(ctx)
	if catalogSync != nil {
		g.Go(func() error {
			catalogSync.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if expiryWorker != nil {
			expiryWorker.Stop()
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Server exited properly")
}

func openStores(cfg *config.Config) stores {
	if cfg.UsesMemoryStore() {
		log.Warn().Msg("Using in-memory store, state is lost on restart")
		tx := database.NewMemoryTransactor()
		return stores{
			tx:           tx,
			wallets:      wallet.NewMemoryRepository(tx),
			features:     feature.NewMemoryRepository(),
			entitlements: entitlement.NewMemoryRepository(tx),
			ping:         func(context.Context) error { return nil },
			close:        func() {},
		}
	}

	db, err := database.NewPostgres(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	return stores{
		tx:           database.NewSQLTransactor(db),
		wallets:      wallet.NewRepository(db),
		features:     feature.NewRepository(db),
		entitlements: entitlement.NewRepository(db),
		ping:         db.PingContext,
		close:        func() { database.ClosePostgres(db) },
	}
}

func decisionCache(client *redis.Client, clk clock.Clock) entitlement.Cache {
	if client == nil {
		return entitlement.NewMemoryCache(clk)
	}
	return entitlement.NewRedisCache(client, clk)
}
