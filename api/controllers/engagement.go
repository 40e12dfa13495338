package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/corvuslabs/credit-oracle-backend/api/responses"
	"github.com/corvuslabs/credit-oracle-backend/api/validators"
	"github.com/corvuslabs/credit-oracle-backend/internal/chain"
	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

type recordEngagementRequest struct {
	Address  string          `json:"address" validate:"required"`
	Action   string          `json:"action" validate:"required"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type recordEngagementResponse struct {
	Address        string `json:"address"`
	Action         string `json:"action"`
	Credits        int64  `json:"credits"`
	PendingCredits int64  `json:"pendingCredits"`
}

// RecordEngagement prices a flat-rate action from the schedule and appends
// it to the pending ledger. Validation rejects before any state changes.
func RecordEngagement(store ledger.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req recordEngagementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		address, err := ledger.NormalizeAddress(req.Address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// Actions are stored lowercased so "Like" and "like" settle as one
		// batch group.
		action := strings.ToLower(req.Action)
		credits, err := chain.ActionCredit(action)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ctx = logg.WithAddress(ctx, address)
		pending, err := store.RecordEngagement(ctx, ledger.Engagement{
			Address:  address,
			Action:   action,
			Credits:  credits,
			Metadata: req.Metadata,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, recordEngagementResponse{
			Address:        address,
			Action:         action,
			Credits:        credits,
			PendingCredits: pending,
		})
	}
}
