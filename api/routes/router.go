package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvuslabs/credit-oracle-backend/api/controllers"
	"github.com/corvuslabs/credit-oracle-backend/api/middleware"
	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/config"
	"github.com/corvuslabs/credit-oracle-backend/pkg/db"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

// NewRouter wires the credit oracle HTTP surface. The oracle reader and
// settler may be nil when the chain endpoint or signer is not configured;
// the affected routes then answer with NOT_CONFIGURED instead of 404.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	store ledger.Store,
	oracle controllers.OracleReader,
	settler controllers.Settler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/engagement", controllers.RecordEngagement(store, logg))

	r.Route("/credits", func(r chi.Router) {
		r.Post("/calculate", controllers.CalculateCredits(logg))
		r.Post("/calculate-and-store", controllers.CalculateAndStoreCredits(store, logg))
		r.Get("/pending", controllers.PendingSnapshot(store, logg))
		r.Post("/settle", controllers.SettleCredits(settler, logg))
		r.Post("/initial-grant", controllers.InitialGrant(oracle, logg))
	})

	r.Route("/inference", func(r chi.Router) {
		r.Post("/estimate", controllers.InferenceEstimate(logg))
		r.Post("/authorize", controllers.InferenceAuthorize(oracle, logg))
	})

	r.Post("/memory/update", controllers.MemoryUpdate(oracle, logg))

	r.Route("/users/{address}", func(r chi.Router) {
		r.Get("/credits", controllers.UserChainCredits(oracle, logg))
		r.Get("/credits/pending", controllers.UserPendingCredits(store, logg))
		r.Get("/credits/calculated", controllers.UserCalculatedCredits(store, logg))
		r.Get("/subscription", controllers.UserSubscription(oracle, logg))
		r.Get("/has-active-subscription", controllers.UserHasActiveSubscription(oracle, logg))
	})

	return r
}
