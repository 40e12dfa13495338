package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvuslabs/credit-oracle-backend/api/responses"
	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

func addressParam(r *http.Request) (string, error) {
	return ledger.NormalizeAddress(chi.URLParam(r, "address"))
}

// UserPendingCredits returns the off-chain pending view for one user.
func UserPendingCredits(store ledger.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		address, err := addressParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		pending, err := store.PendingForUser(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, pending)
	}
}

type calculatedCreditsResponse struct {
	Address                string `json:"address"`
	TotalCalculatedCredits int64  `json:"totalCalculatedCredits"`
}

// UserCalculatedCredits returns the cumulative calculated-credits total.
func UserCalculatedCredits(store ledger.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		address, err := addressParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		total, err := store.CalculatedCreditsForUser(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, calculatedCreditsResponse{
			Address:                address,
			TotalCalculatedCredits: total,
		})
	}
}

type chainBalanceResponse struct {
	Address string `json:"address"`
	Credits string `json:"credits"`
}

// UserChainCredits reads the authoritative on-chain balance. Balances are
// serialized as decimal strings, never floats.
func UserChainCredits(oracle OracleReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if oracle == nil {
			responses.WriteError(ctx, logg, w, errOracleNotConfigured)
			return
		}

		address, err := addressParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		balance, err := oracle.UserCredits(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, chainBalanceResponse{
			Address: address,
			Credits: balance.String(),
		})
	}
}

type subscriptionResponse struct {
	Address        string `json:"address"`
	PlanID         string `json:"planId"`
	UsedThisWindow string `json:"usedThisWindow"`
	WindowStart    string `json:"windowStart"`
	PlanActive     bool   `json:"planActive"`
	PriceUnits     string `json:"priceUnits,omitempty"`
	MonthlyCap     string `json:"monthlyCap,omitempty"`
}

// UserSubscription reads the user's on-chain subscription state.
func UserSubscription(oracle OracleReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if oracle == nil {
			responses.WriteError(ctx, logg, w, errOracleNotConfigured)
			return
		}

		address, err := addressParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := oracle.UserSubscription(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := subscriptionResponse{
			Address:        address,
			PlanID:         sub.PlanID.String(),
			UsedThisWindow: sub.UsedThisWindow.String(),
			WindowStart:    sub.WindowStart.String(),
			PlanActive:     sub.Plan.Active,
		}
		if sub.Plan.PriceUnits != nil {
			resp.PriceUnits = sub.Plan.PriceUnits.String()
		}
		if sub.Plan.MonthlyCap != nil {
			resp.MonthlyCap = sub.Plan.MonthlyCap.String()
		}
		responses.WriteSuccess(w, resp)
	}
}

type activeSubscriptionResponse struct {
	Address string `json:"address"`
	Active  bool   `json:"active"`
}

// UserHasActiveSubscription reports whether the user holds a live plan.
func UserHasActiveSubscription(oracle OracleReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if oracle == nil {
			responses.WriteError(ctx, logg, w, errOracleNotConfigured)
			return
		}

		address, err := addressParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		active, err := oracle.HasActiveSubscription(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, activeSubscriptionResponse{Address: address, Active: active})
	}
}
