package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEngagement struct {
	Engagement
	Status    string
	TxHash    string
	SettledAt time.Time
}

type memoryCalculation struct {
	ID        string
	Address   string
	Reason    string
	Parameter float64
	Credits   int64
	Status    string
	TxHash    string
	SettledAt time.Time
	CreatedAt time.Time
}

// MemoryStore is the process-local fallback used when no durable store is
// configured. State is lost on restart; documented limitation, not a defect.
type MemoryStore struct {
	mu sync.Mutex

	engagements   []*memoryEngagement
	pendingTotals map[string]int64

	calculations     []*memoryCalculation
	calculatedTotals map[string]int64
}

// NewMemoryStore builds an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pendingTotals:    map[string]int64{},
		calculatedTotals: map[string]int64{},
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) RecordEngagement(_ context.Context, event Engagement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.engagements = append(s.engagements, &memoryEngagement{
		Engagement: event,
		Status:     statusPending,
	})
	s.pendingTotals[event.Address] += event.Credits
	return s.pendingTotals[event.Address], nil
}

func (s *MemoryStore) PendingForUser(_ context.Context, address string) (UserPending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := UserPending{
		Address:        address,
		PendingCredits: s.pendingTotals[address],
		PendingEvents:  []PendingEvent{},
	}
	for _, evt := range s.engagements {
		if evt.Address != address || evt.Status != statusPending {
			continue
		}
		result.PendingEvents = append(result.PendingEvents, PendingEvent{
			ID:        evt.ID,
			Action:    evt.Action,
			Credits:   evt.Credits,
			Metadata:  evt.Metadata,
			CreatedAt: evt.CreatedAt,
		})
	}
	return result, nil
}

func (s *MemoryStore) AllPending(_ context.Context) (PendingSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := PendingSnapshot{
		PendingCredits:     []UserTotal{},
		PendingEngagements: []SnapshotEvent{},
	}
	for address, credits := range s.pendingTotals {
		if credits <= 0 {
			continue
		}
		snapshot.PendingCredits = append(snapshot.PendingCredits, UserTotal{Address: address, Credits: credits})
	}
	for _, evt := range s.engagements {
		if evt.Status != statusPending {
			continue
		}
		snapshot.PendingEngagements = append(snapshot.PendingEngagements, SnapshotEvent{
			ID:        evt.ID,
			Address:   evt.Address,
			Action:    evt.Action,
			Credits:   evt.Credits,
			Metadata:  evt.Metadata,
			CreatedAt: evt.CreatedAt,
		})
	}
	return snapshot, nil
}

func (s *MemoryStore) PendingEngagements(_ context.Context) ([]PendingEngagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []PendingEngagement
	for _, evt := range s.engagements {
		if evt.Status != statusPending {
			continue
		}
		pending = append(pending, PendingEngagement{
			ID:      evt.ID,
			Address: evt.Address,
			Action:  evt.Action,
			Credits: evt.Credits,
		})
	}
	return pending, nil
}

func (s *MemoryStore) MarkEngagementsSettled(_ context.Context, ids []string, txHash string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	now := time.Now().UTC()
	touched := map[string]struct{}{}
	for _, evt := range s.engagements {
		if evt.Status != statusPending {
			continue
		}
		if _, ok := idSet[evt.ID]; !ok {
			continue
		}
		evt.Status = statusSettled
		evt.TxHash = txHash
		evt.SettledAt = now
		touched[evt.Address] = struct{}{}
	}

	// Recompute from remaining pending rows rather than decrementing, so
	// recordings racing the settlement fetch stay counted.
	for address := range touched {
		var sum int64
		for _, evt := range s.engagements {
			if evt.Address == address && evt.Status == statusPending {
				sum += evt.Credits
			}
		}
		if sum == 0 {
			delete(s.pendingTotals, address)
		} else {
			s.pendingTotals[address] = sum
		}
	}
	return nil
}

func (s *MemoryStore) RecordCalculatedCredits(_ context.Context, address, reason string, parameter float64, credits int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calculatedTotals[address] += credits
	s.calculations = append(s.calculations, &memoryCalculation{
		ID:        uuid.NewString(),
		Address:   address,
		Reason:    reason,
		Parameter: parameter,
		Credits:   credits,
		Status:    statusPending,
		CreatedAt: time.Now().UTC(),
	})
	return s.calculatedTotals[address], nil
}

func (s *MemoryStore) CalculatedCreditsForUser(_ context.Context, address string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calculatedTotals[address], nil
}

func (s *MemoryStore) PendingCalculations(_ context.Context) ([]PendingCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []PendingCalculation
	for _, calc := range s.calculations {
		if calc.Status != statusPending {
			continue
		}
		pending = append(pending, PendingCalculation{
			ID:      calc.ID,
			Address: calc.Address,
			Reason:  calc.Reason,
			Credits: calc.Credits,
		})
	}
	return pending, nil
}

func (s *MemoryStore) MarkCalculationsSettled(_ context.Context, ids []string, txHash string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	now := time.Now().UTC()
	for _, calc := range s.calculations {
		if calc.Status != statusPending {
			continue
		}
		if _, ok := idSet[calc.ID]; !ok {
			continue
		}
		calc.Status = statusSettled
		calc.TxHash = txHash
		calc.SettledAt = now
	}
	// calculatedTotals is a lifetime counter; settlement never reduces it.
	return nil
}

const (
	statusPending = "pending"
	statusSettled = "settled"
)
