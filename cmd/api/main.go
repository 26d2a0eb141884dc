package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forecastlabs/openbook-backend/api/routes"
	"github.com/forecastlabs/openbook-backend/internal/analytics"
	"github.com/forecastlabs/openbook-backend/internal/auth"
	"github.com/forecastlabs/openbook-backend/internal/markets"
	"github.com/forecastlabs/openbook-backend/internal/positions"
	"github.com/forecastlabs/openbook-backend/internal/pricing"
	"github.com/forecastlabs/openbook-backend/internal/settlement"
	"github.com/forecastlabs/openbook-backend/internal/trades"
	"github.com/forecastlabs/openbook-backend/internal/users"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	"github.com/forecastlabs/openbook-backend/pkg/auth/session"
	"github.com/forecastlabs/openbook-backend/pkg/config"
	"github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
	"github.com/forecastlabs/openbook-backend/pkg/metrics"
	"github.com/forecastlabs/openbook-backend/pkg/migrate"
	"github.com/forecastlabs/openbook-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	exchangeMetrics := metrics.NewExchange(prometheus.DefaultRegisterer)

	engine, err := pricing.NewEngine(cfg.Exchange.FeeRate)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing engine", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())
	walletRepo := wallet.NewRepository(dbClient.DB())
	marketRepo := markets.NewRepository(dbClient.DB())
	positionRepo := positions.NewRepository(dbClient.DB())
	tradeRepo := trades.NewRepository(dbClient.DB())

	walletService, err := wallet.NewService(walletRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	positionStore, err := positions.NewStore(positionRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create position store", err)
		os.Exit(1)
	}
	settlementService, err := settlement.NewService(positionRepo, walletService, logg, exchangeMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}
	marketService, err := markets.NewService(markets.ServiceParams{
		Repo:             marketRepo,
		Tx:               dbClient,
		Settlement:       settlementService,
		Logger:           logg,
		Metrics:          exchangeMetrics,
		LiquidityDefault: cfg.Exchange.LiquidityDefault,
		LiquidityMin:     cfg.Exchange.LiquidityMin,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create market service", err)
		os.Exit(1)
	}
	tradeService, err := trades.NewService(trades.ServiceParams{
		Repo:      tradeRepo,
		Markets:   marketRepo,
		Wallets:   walletService,
		Positions: positionStore,
		Engine:    engine,
		Tx:        dbClient,
		Logger:    logg,
		Metrics:   exchangeMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create trade service", err)
		os.Exit(1)
	}
	authService, err := auth.NewService(auth.ServiceParams{
		Users:    userRepo,
		Wallets:  walletService,
		Sessions: sessionManager,
		Tx:       dbClient,
		JWT:      cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}
	userService, err := users.NewService(userRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create user service", err)
		os.Exit(1)
	}
	analyticsService, err := analytics.NewService(dbClient.DB(), cfg.Exchange.Location())
	if err != nil {
		logg.Error(context.Background(), "failed to create analytics service", err)
		os.Exit(1)
	}

	if admin, err := auth.EnsureAdminSeeded(context.Background(), dbClient, userRepo, walletService, cfg.Exchange); err != nil {
		logg.Error(context.Background(), "failed to seed admin user", err)
		os.Exit(1)
	} else if admin != nil {
		ctx := logg.WithUserID(context.Background(), admin.ID.String())
		logg.Info(ctx, "admin user ready")
	}

	addr := ":" + cfg.App.Port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, sessionManager, routes.Services{
			Auth:      authService,
			Users:     userService,
			Wallets:   walletService,
			Markets:   marketService,
			Trades:    tradeService,
			Positions: positionStore,
			Analytics: analyticsService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
