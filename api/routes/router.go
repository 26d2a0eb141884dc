package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forecastlabs/openbook-backend/api/controllers"
	"github.com/forecastlabs/openbook-backend/api/middleware"
	"github.com/forecastlabs/openbook-backend/internal/analytics"
	"github.com/forecastlabs/openbook-backend/internal/auth"
	"github.com/forecastlabs/openbook-backend/internal/markets"
	"github.com/forecastlabs/openbook-backend/internal/positions"
	"github.com/forecastlabs/openbook-backend/internal/trades"
	"github.com/forecastlabs/openbook-backend/internal/users"
	"github.com/forecastlabs/openbook-backend/internal/wallet"
	"github.com/forecastlabs/openbook-backend/pkg/auth/session"
	"github.com/forecastlabs/openbook-backend/pkg/config"
	"github.com/forecastlabs/openbook-backend/pkg/db"
	"github.com/forecastlabs/openbook-backend/pkg/enums"
	"github.com/forecastlabs/openbook-backend/pkg/logger"
	"github.com/forecastlabs/openbook-backend/pkg/redis"
)

// Services bundles everything the router exposes.
type Services struct {
	Auth      auth.Service
	Users     users.Service
	Wallets   wallet.Service
	Markets   markets.Service
	Trades    trades.Service
	Positions *positions.Store
	Analytics analytics.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions session.AccessSessionChecker,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(svcs.Auth, logg))
		r.Post("/login", controllers.AuthLogin(svcs.Auth, logg))
	})

	r.Route("/api/v1/markets", func(r chi.Router) {
		r.Get("/", controllers.MarketsList(svcs.Markets, logg))
		r.Get("/categories", controllers.MarketsCategories(svcs.Markets, logg))
		r.Get("/{marketId}", controllers.MarketsGet(svcs.Markets, logg))
		r.Post("/{marketId}/quote", controllers.TradesQuote(svcs.Trades, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletGet(svcs.Wallets, logg))
			r.Post("/deposit", controllers.WalletDeposit(svcs.Wallets, logg))
			r.Post("/withdraw", controllers.WalletWithdraw(svcs.Wallets, logg))
			r.Get("/transactions", controllers.WalletTransactions(svcs.Wallets, logg))
		})

		r.Route("/trades", func(r chi.Router) {
			r.Post("/", controllers.TradesExecute(svcs.Trades, logg))
			r.Get("/", controllers.TradesListMine(svcs.Trades, logg))
		})
		r.Get("/positions", controllers.PositionsListMine(svcs.Positions, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", controllers.AdminUsersList(svcs.Users, logg))
			r.Patch("/{userId}/role", controllers.AdminUsersSetRole(svcs.Users, logg))
			r.Patch("/{userId}/status", controllers.AdminUsersSetActive(svcs.Users, logg))
		})

		r.Route("/wallets", func(r chi.Router) {
			r.Get("/", controllers.AdminWalletsList(svcs.Wallets, logg))
			r.Post("/{userId}/credit", controllers.AdminWalletsCredit(svcs.Wallets, logg))
			r.Get("/{userId}/audit", controllers.AdminWalletsAudit(svcs.Wallets, logg))
		})

		r.Route("/markets", func(r chi.Router) {
			r.Post("/", controllers.AdminMarketsCreate(svcs.Markets, logg))
			r.Patch("/{marketId}", controllers.AdminMarketsUpdate(svcs.Markets, logg))
			r.Post("/{marketId}/transition", controllers.AdminMarketsTransition(svcs.Markets, logg))
			r.Post("/{marketId}/resolve", controllers.AdminMarketsResolve(svcs.Markets, logg))
		})

		r.Get("/trades", controllers.AdminTradesList(svcs.Trades, logg))

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/overview", controllers.AdminAnalyticsOverview(svcs.Analytics, logg))
			r.Get("/fees", controllers.AdminAnalyticsFees(svcs.Analytics, logg))
			r.Get("/markets-pnl", controllers.AdminAnalyticsMarketsPnL(svcs.Analytics, logg))
			r.Get("/exposure", controllers.AdminAnalyticsExposure(svcs.Analytics, logg))
			r.Get("/top-contributors", controllers.AdminAnalyticsContributors(svcs.Analytics, logg))
		})
	})

	return r
}
