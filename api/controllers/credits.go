package controllers

import (
	"context"
	"math/big"
	"net/http"

	"github.com/corvuslabs/credit-oracle-backend/api/responses"
	"github.com/corvuslabs/credit-oracle-backend/api/validators"
	"github.com/corvuslabs/credit-oracle-backend/internal/chain"
	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/internal/settlement"
	pkgerrors "github.com/corvuslabs/credit-oracle-backend/pkg/errors"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

// OracleReader is the read/calldata surface of the on-chain collaborator.
// Nil when the chain endpoint is not configured.
type OracleReader interface {
	UserCredits(ctx context.Context, address string) (*big.Int, error)
	UserSubscription(ctx context.Context, address string) (chain.Subscription, error)
	HasActiveSubscription(ctx context.Context, address string) (bool, error)
	EncodeAwardCredits(user string, amount *big.Int, reason string) (chain.Calldata, error)
	EncodeMemoryPointerUpdate(user, memoryHash string) (chain.Calldata, error)
}

// Settler runs an on-demand settlement pass.
type Settler interface {
	RunNow(ctx context.Context) (settlement.Result, error)
}

var errOracleNotConfigured = pkgerrors.New(pkgerrors.CodeNotConfigured, "chain endpoint not configured")

type calculateRequest struct {
	Reason    string  `json:"reason" validate:"required"`
	Parameter float64 `json:"parameter"`
}

type calculateResponse struct {
	Reason    string  `json:"reason"`
	Parameter float64 `json:"parameter"`
	Credits   int64   `json:"credits"`
}

// CalculateCredits is the pure estimate: no address, no state change.
func CalculateCredits(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req calculateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		credits, err := chain.CalculateCredits(req.Reason, req.Parameter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, calculateResponse{
			Reason:    req.Reason,
			Parameter: req.Parameter,
			Credits:   credits,
		})
	}
}

type calculateAndStoreRequest struct {
	Address   string  `json:"address" validate:"required"`
	Reason    string  `json:"reason" validate:"required"`
	Parameter float64 `json:"parameter"`
}

type calculateAndStoreResponse struct {
	Address                string `json:"address"`
	Reason                 string `json:"reason"`
	Credits                int64  `json:"credits"`
	TotalCalculatedCredits int64  `json:"totalCalculatedCredits"`
}

// CalculateAndStoreCredits evaluates the formula and records a pending
// calculated credit entry. Zero-credit results are rejected, not stored.
func CalculateAndStoreCredits(store ledger.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req calculateAndStoreRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		address, err := ledger.NormalizeAddress(req.Address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		credits, err := chain.CalculateCredits(req.Reason, req.Parameter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if credits <= 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "calculated credits must be positive"))
			return
		}

		ctx = logg.WithAddress(ctx, address)
		total, err := store.RecordCalculatedCredits(ctx, address, req.Reason, req.Parameter, credits)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, calculateAndStoreResponse{
			Address:                address,
			Reason:                 req.Reason,
			Credits:                credits,
			TotalCalculatedCredits: total,
		})
	}
}

// PendingSnapshot exposes the global pending view for diagnostics.
func PendingSnapshot(store ledger.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		snapshot, err := store.AllPending(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// SettleCredits runs settlement synchronously for an operator call. A run
// already in flight yields a conflict, not a queued second run.
func SettleCredits(settler Settler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		result, err := settler.RunNow(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := http.StatusOK
		if !result.Ok {
			status = http.StatusBadGateway
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

type initialGrantRequest struct {
	Address string `json:"address" validate:"required"`
}

type initialGrantResponse struct {
	Address  string          `json:"address"`
	Eligible bool            `json:"eligible"`
	Reason   string          `json:"reason,omitempty"`
	Credits  int64           `json:"credits,omitempty"`
	Calldata *chain.Calldata `json:"calldata,omitempty"`
}

// InitialGrant checks on-chain eligibility (no credits, no active plan)
// and, when eligible, returns the award calldata for the operator wallet
// to sign. The server never submits this transaction.
func InitialGrant(oracle OracleReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if oracle == nil {
			responses.WriteError(ctx, logg, w, errOracleNotConfigured)
			return
		}

		var req initialGrantRequest
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

		balance, err := oracle.UserCredits(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if balance.Sign() > 0 {
			responses.WriteSuccess(w, initialGrantResponse{
				Address:  address,
				Eligible: false,
				Reason:   "user already has credits",
			})
			return
		}

		active, err := oracle.HasActiveSubscription(ctx, address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if active {
			responses.WriteSuccess(w, initialGrantResponse{
				Address:  address,
				Eligible: false,
				Reason:   "user has an active subscription",
			})
			return
		}

		calldata, err := oracle.EncodeAwardCredits(address, big.NewInt(chain.InitialGrantCredits), chain.InitialGrantReason)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, initialGrantResponse{
			Address:  address,
			Eligible: true,
			Credits:  chain.InitialGrantCredits,
			Calldata: &calldata,
		})
	}
}

type memoryUpdateRequest struct {
	Address    string `json:"address" validate:"required"`
	MemoryHash string `json:"memoryHash" validate:"required"`
}

type memoryUpdateResponse struct {
	Address  string         `json:"address"`
	Calldata chain.Calldata `json:"calldata"`
}

// MemoryUpdate prepares updateUserMemoryPointer calldata for the operator
// wallet to sign in the browser.
func MemoryUpdate(oracle OracleReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if oracle == nil {
			responses.WriteError(ctx, logg, w, errOracleNotConfigured)
			return
		}

		var req memoryUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		address, err := ledger.NormalizeAddress(req.Address)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		calldata, err := oracle.EncodeMemoryPointerUpdate(address, req.MemoryHash)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, memoryUpdateResponse{Address: address, Calldata: calldata})
	}
}
