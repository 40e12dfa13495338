package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	pkgerrors "github.com/corvuslabs/credit-oracle-backend/pkg/errors"
)

// Engagement is the input for recording a flat-rate credit-earning action.
// The address must already be normalized (NormalizeAddress).
type Engagement struct {
	ID        string
	Address   string
	Action    string
	Credits   int64
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// PendingEvent is one not-yet-settled engagement as reported to callers.
type PendingEvent struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Credits   int64           `json:"credits"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// UserPending is the per-user pending view.
type UserPending struct {
	Address        string         `json:"address"`
	PendingCredits int64          `json:"pendingCredits"`
	PendingEvents  []PendingEvent `json:"pendingEvents"`
}

// UserTotal pairs an address with its pending total.
type UserTotal struct {
	Address string `json:"address"`
	Credits int64  `json:"credits"`
}

// SnapshotEvent is one pending engagement in the global diagnostics view.
type SnapshotEvent struct {
	ID        string          `json:"id"`
	Address   string          `json:"address"`
	Action    string          `json:"action"`
	Credits   int64           `json:"credits"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// PendingSnapshot is the global diagnostics view of the ledger.
type PendingSnapshot struct {
	PendingCredits     []UserTotal     `json:"pendingCredits"`
	PendingEngagements []SnapshotEvent `json:"pendingEngagements"`
}

// PendingEngagement is the minimal settlement projection of an engagement.
type PendingEngagement struct {
	ID      string
	Address string
	Action  string
	Credits int64
}

// PendingCalculation is the minimal settlement projection of a calculated
// credit entry.
type PendingCalculation struct {
	ID      string
	Address string
	Reason  string
	Credits int64
}

// Store is the backend contract shared by the durable and in-memory
// ledgers. Unknown addresses read as zero-valued results, never errors.
// Status transitions happen only through the mark-settled operations.
type Store interface {
	RecordEngagement(ctx context.Context, event Engagement) (pendingCredits int64, err error)
	PendingForUser(ctx context.Context, address string) (UserPending, error)
	AllPending(ctx context.Context) (PendingSnapshot, error)
	PendingEngagements(ctx context.Context) ([]PendingEngagement, error)
	MarkEngagementsSettled(ctx context.Context, ids []string, txHash string) error

	RecordCalculatedCredits(ctx context.Context, address, reason string, parameter float64, credits int64) (totalCalculatedCredits int64, err error)
	CalculatedCreditsForUser(ctx context.Context, address string) (int64, error)
	PendingCalculations(ctx context.Context) ([]PendingCalculation, error)
	MarkCalculationsSettled(ctx context.Context, ids []string, txHash string) error
}

// NormalizeAddress checksums a hex address, rejecting malformed input.
// Validation happens at the HTTP boundary; stores assume normalized input.
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", pkgerrors.New(pkgerrors.CodeInvalidAddress, "valid address required")
	}
	return common.HexToAddress(address).Hex(), nil
}
