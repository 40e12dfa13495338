package controllers

import (
	"math/big"
	"net/http"

	"github.com/corvuslabs/credit-oracle-backend/api/responses"
	"github.com/corvuslabs/credit-oracle-backend/api/validators"
	"github.com/corvuslabs/credit-oracle-backend/internal/chain"
	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

type inferenceEstimateRequest struct {
	Mode     string `json:"mode" validate:"required"`
	Quantity int64  `json:"quantity"`
}

type inferenceEstimateResponse struct {
	Mode     string `json:"mode"`
	Quantity int64  `json:"quantity"`
	Credits  int64  `json:"credits"`
}

// InferenceEstimate prices an inference request against the mode schedule.
// No address, no chain round-trip.
func InferenceEstimate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req inferenceEstimateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		credits, err := chain.InferenceCost(req.Mode, req.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if req.Quantity <= 0 {
			req.Quantity = 1
		}

		responses.WriteSuccess(w, inferenceEstimateResponse{
			Mode:     req.Mode,
			Quantity: req.Quantity,
			Credits:  credits,
		})
	}
}

type inferenceAuthorizeRequest struct {
	Address  string `json:"address" validate:"required"`
	Mode     string `json:"mode" validate:"required"`
	Quantity int64  `json:"quantity"`
}

type inferenceAuthorizeResponse struct {
	Address    string `json:"address"`
	Mode       string `json:"mode"`
	Quantity   int64  `json:"quantity"`
	Credits    int64  `json:"credits"`
	Authorized bool   `json:"authorized"`
	Method     string `json:"method,omitempty"`
	Balance    string `json:"balance,omitempty"`
}

const (
	authMethodSubscription = "subscription"
	authMethodCredits      = "credits"
)

// InferenceAuthorize prices an inference request and checks on-chain
// whether the user can pay for it: an active subscription authorizes
// outright, otherwise the credit balance must cover the cost.
func InferenceAuthorize(oracle OracleReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if oracle == nil {
			responses.WriteError(ctx, logg, w, errOracleNotConfigured)
			return
		}

		var req inferenceAuthorizeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		address, err := ledger.NormalizeAddress(req.Address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithAddress(ctx, address)

		credits, err := chain.InferenceCost(req.Mode, req.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if req.Quantity <= 0 {
			req.Quantity = 1
		}

		resp := inferenceAuthorizeResponse{
			Address:  address,
			Mode:     req.Mode,
			Quantity: req.Quantity,
			Credits:  credits,
		}

		active, err := oracle.HasActiveSubscription(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if active {
			resp.Authorized = true
			resp.Method = authMethodSubscription
			responses.WriteSuccess(w, resp)
			return
		}

		balance, err := oracle.UserCredits(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		resp.Balance = balance.String()
		if balance.Cmp(big.NewInt(credits)) >= 0 {
			resp.Authorized = true
			resp.Method = authMethodCredits
		}
		responses.WriteSuccess(w, resp)
	}
}
