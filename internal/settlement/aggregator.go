package settlement

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/metrics"
)

// Submitter is the on-chain collaborator the aggregator drives. A nil
// submitter means no signer is configured and settlement must abort.
type Submitter interface {
	AwardCreditsBatch(ctx context.Context, addresses []string, amounts []*big.Int, reason string) (txHash string, err error)
}

// BatchResult summarizes one confirmed on-chain batch.
type BatchResult struct {
	Type         string   `json:"type"`
	Reason       string   `json:"reason"`
	TxHash       string   `json:"txHash"`
	Addresses    int      `json:"addresses"`
	TotalCredits int64    `json:"totalCredits"`
	EventIDs     []string `json:"-"`
}

// Result is the outcome of one settlement run. On failure Reason names the
// batch group that failed and Batches still lists the groups confirmed
// before the failure.
type Result struct {
	Ok      bool          `json:"ok"`
	Trigger string        `json:"trigger"`
	Message string        `json:"message"`
	Reason  string        `json:"reason,omitempty"`
	Batches []BatchResult `json:"batches"`
}

const (
	batchTypeEngagement  = "engagement"
	batchTypeCalculation = "calculation"
)

// Aggregator turns the pending ledger state into the minimum number of
// on-chain batch calls and reconciles the ledger after each confirmation.
type Aggregator struct {
	store     ledger.Store
	submitter Submitter
	logg      *logger.Logger
	met       *metrics.SettlementMetrics
}

func NewAggregator(store ledger.Store, submitter Submitter, logg *logger.Logger, met *metrics.SettlementMetrics) *Aggregator {
	return &Aggregator{store: store, submitter: submitter, logg: logg, met: met}
}

// group is one action/reason batch: per-address summed credits plus the
// contributing record ids.
type group struct {
	label     string
	batchType string
	credits   map[string]int64
	ids       []string
}

func (g *group) add(address string, credits int64, id string) {
	g.credits[address] = g.credits[address] + credits
	g.ids = append(g.ids, id)
}

func (g *group) arrays() ([]string, []*big.Int, int64) {
	addresses := make([]string, 0, len(g.credits))
	for address := range g.credits {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	amounts := make([]*big.Int, len(addresses))
	var total int64
	for i, address := range addresses {
		amounts[i] = big.NewInt(g.credits[address])
		total += g.credits[address]
	}
	return addresses, amounts, total
}

// Run executes one settlement pass. The trigger label ("interval" or
// "manual") is observability-only and never changes behavior.
func (a *Aggregator) Run(ctx context.Context, trigger string) Result {
	ctx = a.logg.WithTrigger(ctx, trigger)
	started := time.Now()
	defer func() {
		a.met.ObserveDuration(trigger, time.Since(started))
	}()

	result := Result{Trigger: trigger, Batches: []BatchResult{}}

	engagements, err := a.store.PendingEngagements(ctx)
	if err != nil {
		return a.fail(ctx, result, "", "fetching pending engagements", err)
	}
	calculations, err := a.store.PendingCalculations(ctx)
	if err != nil {
		return a.fail(ctx, result, "", "fetching pending calculations", err)
	}

	if len(engagements) == 0 && len(calculations) == 0 {
		result.Ok = true
		result.Message = "no pending credits to settle"
		a.met.IncSuccess(trigger)
		return result
	}

	if a.submitter == nil {
		result.Message = "signer not configured"
		a.logg.Warn(ctx, "settlement aborted: signer not configured")
		a.met.IncFailure(trigger)
		return result
	}

	engagementGroups := make(map[string]*group)
	for _, evt := range engagements {
		grp, ok := engagementGroups[evt.Action]
		if !ok {
			grp = &group{label: evt.Action, batchType: batchTypeEngagement, credits: map[string]int64{}}
			engagementGroups[evt.Action] = grp
		}
		grp.add(evt.Address, evt.Credits, evt.ID)
	}

	calculationGroups := make(map[string]*group)
	for _, calc := range calculations {
		grp, ok := calculationGroups[calc.Reason]
		if !ok {
			grp = &group{label: calc.Reason, batchType: batchTypeCalculation, credits: map[string]int64{}}
			calculationGroups[calc.Reason] = grp
		}
		grp.add(calc.Address, calc.Credits, calc.ID)
	}

	for _, grp := range orderedGroups(engagementGroups, calculationGroups) {
		batch, err := a.settleGroup(ctx, grp)
		if err != nil {
			// Fail fast: confirmed groups stay settled, the failing group
			// and everything after it stays pending for the next trigger.
			return a.fail(ctx, result, grp.label, "settling batch group", err)
		}
		result.Batches = append(result.Batches, batch)
		a.met.AddSettled(grp.label, batch.TotalCredits)
	}

	result.Ok = true
	result.Message = "settlement complete"
	a.met.IncSuccess(trigger)
	a.logg.Info(a.logg.WithField(ctx, "batches", len(result.Batches)), "settlement run complete")
	return result
}

func (a *Aggregator) settleGroup(ctx context.Context, grp *group) (BatchResult, error) {
	addresses, amounts, total := grp.arrays()

	ctx = a.logg.WithFields(ctx, map[string]any{
		"batch_type": grp.batchType,
		"reason":     grp.label,
		"addresses":  len(addresses),
		"credits":    total,
	})
	a.logg.Info(ctx, "submitting batch group")

	txHash, err := a.submitter.AwardCreditsBatch(ctx, addresses, amounts, grp.label)
	if err != nil {
		return BatchResult{}, err
	}

	mark := a.store.MarkEngagementsSettled
	if grp.batchType == batchTypeCalculation {
		mark = a.store.MarkCalculationsSettled
	}
	if err := mark(ctx, grp.ids, txHash); err != nil {
		return BatchResult{}, err
	}

	return BatchResult{
		Type:         grp.batchType,
		Reason:       grp.label,
		TxHash:       txHash,
		Addresses:    len(addresses),
		TotalCredits: total,
		EventIDs:     grp.ids,
	}, nil
}

func (a *Aggregator) fail(ctx context.Context, result Result, reason, message string, err error) Result {
	result.Ok = false
	result.Reason = reason
	result.Message = message + ": " + err.Error()
	a.logg.Error(a.logg.WithField(ctx, "batch_reason", reason), message, err)
	a.met.IncFailure(result.Trigger)
	return result
}

// orderedGroups flattens engagement groups first, calculation groups
// second, each sorted by label so runs are deterministic.
func orderedGroups(engagements, calculations map[string]*group) []*group {
	ordered := make([]*group, 0, len(engagements)+len(calculations))
	for _, bucket := range []map[string]*group{engagements, calculations} {
		labels := make([]string, 0, len(bucket))
		for label := range bucket {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			ordered = append(ordered, bucket[label])
		}
	}
	return ordered
}
