package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	pkgerrors "github.com/corvuslabs/credit-oracle-backend/pkg/errors"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
	"github.com/corvuslabs/credit-oracle-backend/pkg/metrics"
)

const (
	addrX = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	addrY = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

type submittedBatch struct {
	addresses []string
	amounts   []*big.Int
	reason    string
}

type fakeSubmitter struct {
	mu         sync.Mutex
	calls      []submittedBatch
	failReason string
	gate       chan struct{}
}

func (f *fakeSubmitter) AwardCreditsBatch(ctx context.Context, addresses []string, amounts []*big.Int, reason string) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if reason == f.failReason {
		return "", errors.New("execution reverted")
	}
	f.calls = append(f.calls, submittedBatch{addresses: addresses, amounts: amounts, reason: reason})
	return fmt.Sprintf("0xtx%d", len(f.calls)), nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newAggregator(store ledger.Store, submitter Submitter) *Aggregator {
	return NewAggregator(store, submitter, testLogger(), metrics.NewSettlementMetrics(nil))
}

func recordEngagement(t *testing.T, store ledger.Store, address, action string, credits int64) {
	t.Helper()
	_, err := store.RecordEngagement(context.Background(), ledger.Engagement{
		Address: address,
		Action:  action,
		Credits: credits,
	})
	require.NoError(t, err)
}

func TestRunGroupsByActionAndSumsPerAddress(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	recordEngagement(t, store, addrX, "like", 10)
	recordEngagement(t, store, addrX, "like", 5)
	recordEngagement(t, store, addrY, "like", 3)

	submitter := &fakeSubmitter{}
	result := newAggregator(store, submitter).Run(ctx, TriggerManual)

	require.True(t, result.Ok)
	require.Len(t, submitter.calls, 1)

	batch := submitter.calls[0]
	require.Equal(t, "like", batch.reason)
	require.Len(t, batch.addresses, 2)

	byAddress := map[string]int64{}
	var total int64
	for i, address := range batch.addresses {
		byAddress[address] = batch.amounts[i].Int64()
		total += batch.amounts[i].Int64()
	}
	require.Equal(t, int64(15), byAddress[addrX])
	require.Equal(t, int64(3), byAddress[addrY])
	require.Equal(t, int64(18), total)

	user, err := store.PendingForUser(ctx, addrX)
	require.NoError(t, err)
	require.Zero(t, user.PendingCredits)
}

func TestRunSettlesCalculationsGroupedByReason(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	_, err := store.RecordCalculatedCredits(ctx, addrX, "referral", 2, 50)
	require.NoError(t, err)
	_, err = store.RecordCalculatedCredits(ctx, addrY, "referral", 1, 25)
	require.NoError(t, err)
	_, err = store.RecordCalculatedCredits(ctx, addrX, "prompt_streak", 3, 6)
	require.NoError(t, err)

	submitter := &fakeSubmitter{}
	result := newAggregator(store, submitter).Run(ctx, TriggerInterval)

	require.True(t, result.Ok)
	require.Len(t, submitter.calls, 2)
	require.Len(t, result.Batches, 2)

	reasons := map[string]int64{}
	for _, batch := range result.Batches {
		reasons[batch.Reason] = batch.TotalCredits
	}
	require.Equal(t, int64(6), reasons["prompt_streak"])
	require.Equal(t, int64(75), reasons["referral"])

	pending, err := store.PendingCalculations(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	// The cumulative total survives settlement.
	total, err := store.CalculatedCreditsForUser(ctx, addrX)
	require.NoError(t, err)
	require.Equal(t, int64(56), total)
}

func TestRunFailsFastAndKeepsConfirmedGroupsSettled(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	// Groups run in label order, so "comment" confirms before "like" fails.
	recordEngagement(t, store, addrX, "comment", 4)
	recordEngagement(t, store, addrX, "like", 10)
	recordEngagement(t, store, addrY, "yap", 5)

	submitter := &fakeSubmitter{failReason: "like"}
	result := newAggregator(store, submitter).Run(ctx, TriggerManual)

	require.False(t, result.Ok)
	require.Equal(t, "like", result.Reason)
	require.Contains(t, result.Message, "execution reverted")

	// Only the group confirmed before the failure was submitted.
	require.Len(t, submitter.calls, 1)
	require.Equal(t, "comment", submitter.calls[0].reason)
	require.Len(t, result.Batches, 1)

	user, err := store.PendingForUser(ctx, addrX)
	require.NoError(t, err)
	require.Equal(t, int64(10), user.PendingCredits)

	// The group after the failure was never attempted and stays pending.
	other, err := store.PendingForUser(ctx, addrY)
	require.NoError(t, err)
	require.Equal(t, int64(5), other.PendingCredits)
}

func TestRunWithNothingPendingIsNoop(t *testing.T) {
	store := ledger.NewMemoryStore()
	submitter := &fakeSubmitter{}

	result := newAggregator(store, submitter).Run(context.Background(), TriggerInterval)

	require.True(t, result.Ok)
	require.Equal(t, "no pending credits to settle", result.Message)
	require.Empty(t, submitter.calls)
}

func TestRunWithoutSignerAbortsBeforeTouchingLedger(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	recordEngagement(t, store, addrX, "like", 10)

	result := newAggregator(store, nil).Run(ctx, TriggerManual)

	require.False(t, result.Ok)
	require.Equal(t, "signer not configured", result.Message)

	user, err := store.PendingForUser(ctx, addrX)
	require.NoError(t, err)
	require.Equal(t, int64(10), user.PendingCredits)
}

func TestTriggerRejectsConcurrentRuns(t *testing.T) {
	store := ledger.NewMemoryStore()
	recordEngagement(t, store, addrX, "like", 10)

	gate := make(chan struct{})
	submitter := &fakeSubmitter{gate: gate}
	trigger := NewTrigger(newAggregator(store, submitter), 0, nil, testLogger())

	started := make(chan struct{})
	done := make(chan Result, 1)
	go func() {
		close(started)
		result, err := trigger.RunNow(context.Background())
		if err == nil {
			done <- result
		}
	}()

	<-started
	// Let the first run reach the blocked submitter.
	require.Eventually(t, func() bool {
		_, err := trigger.RunNow(context.Background())
		typed := pkgerrors.As(err)
		return typed != nil && typed.Code() == pkgerrors.CodeSettlementBusy
	}, time.Second, 5*time.Millisecond)

	close(gate)
	select {
	case result := <-done:
		require.True(t, result.Ok)
	case <-time.After(2 * time.Second):
		t.Fatal("first settlement run did not finish")
	}

	// The lock is free again once the run completes.
	result, err := trigger.RunNow(context.Background())
	require.NoError(t, err)
	require.True(t, result.Ok)
}

func TestTriggerUsesCrossProcessLock(t *testing.T) {
	store := ledger.NewMemoryStore()
	recordEngagement(t, store, addrX, "like", 10)

	lock := &fakeLock{held: true}
	trigger := NewTrigger(newAggregator(store, &fakeSubmitter{}), 0, lock, testLogger())

	_, err := trigger.RunNow(context.Background())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeSettlementBusy, typed.Code())

	lock.held = false
	result, err := trigger.RunNow(context.Background())
	require.NoError(t, err)
	require.True(t, result.Ok)
	require.True(t, lock.released)
}

type fakeLock struct {
	held     bool
	released bool
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) { return !f.held, nil }

func (f *fakeLock) Release(ctx context.Context) error {
	f.released = true
	return nil
}
