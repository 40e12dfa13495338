package controllers

import (
	"net/http"

	"github.com/corvuslabs/credit-oracle-backend/api/responses"
	"github.com/corvuslabs/credit-oracle-backend/pkg/config"
	"github.com/corvuslabs/credit-oracle-backend/pkg/db"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports per-dependency readiness. A nil pinger means the
// dependency is not configured, which is healthy by definition.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		checks := map[string]string{}
		healthy := true

		if dbP == nil {
			checks["db"] = "not_configured"
		} else if err := dbP.Ping(ctx); err != nil {
			checks["db"] = "down"
			healthy = false
			if logg != nil {
				logg.Error(ctx, "readiness: database ping failed", err)
			}
		} else {
			checks["db"] = "up"
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status": map[bool]string{true: "ready", false: "degraded"}[healthy],
			"checks": checks,
		})
	}
}
