package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/donorledger-backend/api/controllers"
	"github.com/angelmondragon/donorledger-backend/api/middleware"
	"github.com/angelmondragon/donorledger-backend/internal/campaigns"
	"github.com/angelmondragon/donorledger-backend/internal/donations"
	"github.com/angelmondragon/donorledger-backend/internal/ledger"
	"github.com/angelmondragon/donorledger-backend/internal/npos"
	"github.com/angelmondragon/donorledger-backend/internal/users"
	"github.com/angelmondragon/donorledger-backend/pkg/config"
	"github.com/angelmondragon/donorledger-backend/pkg/db"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/donorledger-backend/pkg/redis"
)

// RedisStore is what the HTTP layer needs from Redis: readiness, idempotency
// records and rate limit counters.
type RedisStore interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     RedisStore
	Gatherer  prometheus.Gatherer
	Ledger    ledger.Gateway
	Donations donations.Service
	Campaigns campaigns.Service
	NPOs      npos.Service
	Users     users.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	var idempotencyStore pkgredis.IdempotencyStore
	var redisPinger controllers.Dependency
	donationLimit := func(next http.Handler) http.Handler { return next }
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		redisPinger = controllers.Dependency{Name: "redis", Pinger: deps.Redis}
		policy := middleware.NewRateLimitPolicy("donations", cfg.RateLimit.DonationWindow, cfg.RateLimit.DonationIPLimit)
		donationLimit = middleware.RateLimit(policy, deps.Redis, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "db", Pinger: deps.DB},
			redisPinger,
		))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, cfg.Idempotency, logg))

		r.Route("/donations", func(r chi.Router) {
			r.With(donationLimit).Post("/", controllers.InitiateDonation(deps.Donations, logg))
			r.Get("/", controllers.ListDonations(deps.Donations, logg))
			r.Route("/{donationId}", func(r chi.Router) {
				r.Get("/", controllers.GetDonation(deps.Donations, logg))
				r.Delete("/", controllers.DeleteDonation(deps.Donations, logg))
				r.Post("/escrow/finish", controllers.FinishDonationEscrow(deps.Donations, logg))
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", controllers.RegisterUser(deps.Users, logg))
			r.Get("/{userId}", controllers.GetUser(deps.Users, logg))
			r.Get("/{userId}/donations", controllers.ListUserDonations(deps.Donations, logg))
		})

		r.Route("/npos", func(r chi.Router) {
			r.Post("/", controllers.CreateNPO(deps.NPOs, logg))
			r.Get("/", controllers.ListNPOs(deps.NPOs, logg))
			r.Route("/{npoId}", func(r chi.Router) {
				r.Get("/", controllers.GetNPO(deps.NPOs, logg))
				r.Patch("/", controllers.UpdateNPO(deps.NPOs, logg))
				r.Delete("/", controllers.DeleteNPO(deps.NPOs, logg))
				r.Post("/verify", controllers.VerifyNPO(deps.NPOs, logg))
				r.Get("/campaigns", controllers.ListNPOCampaigns(deps.Campaigns, logg))
			})
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", controllers.CreateCampaign(deps.Campaigns, logg))
			r.Get("/", controllers.ListCampaigns(deps.Campaigns, logg))
			r.Route("/{campaignId}", func(r chi.Router) {
				r.Get("/", controllers.GetCampaign(deps.Campaigns, logg))
				r.Patch("/", controllers.UpdateCampaign(deps.Campaigns, logg))
				r.Delete("/", controllers.DeleteCampaign(deps.Campaigns, logg))
				r.Post("/deactivate", controllers.DeactivateCampaign(deps.Campaigns, logg))
			})
		})

		r.Get("/ledger/accounts/{address}/transactions", controllers.AccountTransactions(deps.Ledger, logg))
	})

	return r
}
