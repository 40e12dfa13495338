package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corvuslabs/credit-oracle-backend/pkg/db"
	"github.com/corvuslabs/credit-oracle-backend/pkg/db/models"
	"github.com/corvuslabs/credit-oracle-backend/pkg/enums"
)

// GormStore is the durable ledger backend. Every multi-step operation runs
// inside a single transaction so cached per-user totals cannot drift from
// the event rows.
type GormStore struct {
	client *db.Client
}

// NewGormStore binds the durable ledger to the shared database client.
func NewGormStore(client *db.Client) *GormStore {
	return &GormStore{client: client}
}

var _ Store = (*GormStore)(nil)

func (s *GormStore) RecordEngagement(ctx context.Context, event Engagement) (int64, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	id, err := uuid.Parse(event.ID)
	if err != nil {
		return 0, err
	}

	var pendingCredits int64
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := ensureUser(tx, event.Address); err != nil {
			return err
		}
		row := models.Engagement{
			ID:          id,
			UserAddress: event.Address,
			Action:      event.Action,
			Credits:     event.Credits,
			Metadata:    event.Metadata,
			Status:      enums.SettlementStatusPending,
			CreatedAt:   event.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).
			Where("address = ?", event.Address).
			Update("pending_credits", gorm.Expr("pending_credits + ?", event.Credits)).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("address = ?", event.Address).
			Select("pending_credits").
			Scan(&pendingCredits).Error
	})
	if err != nil {
		return 0, err
	}
	return pendingCredits, nil
}

func (s *GormStore) PendingForUser(ctx context.Context, address string) (UserPending, error) {
	result := UserPending{Address: address, PendingEvents: []PendingEvent{}}

	var user models.User
	err := s.client.DB().WithContext(ctx).
		Where("address = ?", address).
		First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Absence is not failure: unknown users read as zero.
		return result, nil
	case err != nil:
		return result, err
	}
	result.PendingCredits = user.PendingCredits

	var rows []models.Engagement
	if err := s.client.DB().WithContext(ctx).
		Where("user_address = ? AND status = ?", address, enums.SettlementStatusPending).
		Find(&rows).Error; err != nil {
		return result, err
	}
	for _, row := range rows {
		result.PendingEvents = append(result.PendingEvents, PendingEvent{
			ID:        row.ID.String(),
			Action:    row.Action,
			Credits:   row.Credits,
			Metadata:  row.Metadata,
			CreatedAt: row.CreatedAt,
		})
	}
	return result, nil
}

func (s *GormStore) AllPending(ctx context.Context) (PendingSnapshot, error) {
	snapshot := PendingSnapshot{
		PendingCredits:     []UserTotal{},
		PendingEngagements: []SnapshotEvent{},
	}

	var users []models.User
	if err := s.client.DB().WithContext(ctx).
		Where("pending_credits > 0").
		Find(&users).Error; err != nil {
		return snapshot, err
	}
	for _, user := range users {
		snapshot.PendingCredits = append(snapshot.PendingCredits, UserTotal{
			Address: user.Address,
			Credits: user.PendingCredits,
		})
	}

	var rows []models.Engagement
	if err := s.client.DB().WithContext(ctx).
		Where("status = ?", enums.SettlementStatusPending).
		Find(&rows).Error; err != nil {
		return snapshot, err
	}
	for _, row := range rows {
		snapshot.PendingEngagements = append(snapshot.PendingEngagements, SnapshotEvent{
			ID:        row.ID.String(),
			Address:   row.UserAddress,
			Action:    row.Action,
			Credits:   row.Credits,
			Metadata:  row.Metadata,
			CreatedAt: row.CreatedAt,
		})
	}
	return snapshot, nil
}

func (s *GormStore) PendingEngagements(ctx context.Context) ([]PendingEngagement, error) {
	var rows []models.Engagement
	if err := s.client.DB().WithContext(ctx).
		Where("status = ?", enums.SettlementStatusPending).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	var pending []PendingEngagement
	for _, row := range rows {
		pending = append(pending, PendingEngagement{
			ID:      row.ID.String(),
			Address: row.UserAddress,
			Action:  row.Action,
			Credits: row.Credits,
		})
	}
	return pending, nil
}

func (s *GormStore) MarkEngagementsSettled(ctx context.Context, ids []string, txHash string) error {
	if len(ids) == 0 {
		return nil
	}
	parsed, err := parseIDs(ids)
	if err != nil {
		return err
	}

	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var addresses []string
		if err := tx.Model(&models.Engagement{}).
			Where("id IN ? AND status = ?", parsed, enums.SettlementStatusPending).
			Distinct().
			Pluck("user_address", &addresses).Error; err != nil {
			return err
		}
		if len(addresses) == 0 {
			// Already settled (retry) or unknown ids: nothing to do.
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Engagement{}).
			Where("id IN ? AND status = ?", parsed, enums.SettlementStatusPending).
			Updates(map[string]any{
				"status":     enums.SettlementStatusSettled,
				"tx_hash":    txHash,
				"settled_at": now,
			}).Error; err != nil {
			return err
		}

		// Recompute from the remaining pending rows instead of decrementing,
		// so recordings that landed between fetch and settle stay counted.
		for _, address := range addresses {
			var sum int64
			if err := tx.Model(&models.Engagement{}).
				Where("user_address = ? AND status = ?", address, enums.SettlementStatusPending).
				Select("COALESCE(SUM(credits), 0)").
				Scan(&sum).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.User{}).
				Where("address = ?", address).
				Update("pending_credits", sum).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) RecordCalculatedCredits(ctx context.Context, address, reason string, parameter float64, credits int64) (int64, error) {
	var total int64
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := ensureUser(tx, address); err != nil {
			return err
		}
		row := models.CreditCalculation{
			ID:          uuid.New(),
			UserAddress: address,
			Reason:      reason,
			Parameter:   parameter,
			Credits:     credits,
			Status:      enums.SettlementStatusPending,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).
			Where("address = ?", address).
			Update("calculated_credits", gorm.Expr("calculated_credits + ?", credits)).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("address = ?", address).
			Select("calculated_credits").
			Scan(&total).Error
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *GormStore) CalculatedCreditsForUser(ctx context.Context, address string) (int64, error) {
	var user models.User
	err := s.client.DB().WithContext(ctx).
		Where("address = ?", address).
		First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return user.CalculatedCredits, nil
}

func (s *GormStore) PendingCalculations(ctx context.Context) ([]PendingCalculation, error) {
	var rows []models.CreditCalculation
	if err := s.client.DB().WithContext(ctx).
		Where("status = ?", enums.SettlementStatusPending).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	var pending []PendingCalculation
	for _, row := range rows {
		pending = append(pending, PendingCalculation{
			ID:      row.ID.String(),
			Address: row.UserAddress,
			Reason:  row.Reason,
			Credits: row.Credits,
		})
	}
	return pending, nil
}

func (s *GormStore) MarkCalculationsSettled(ctx context.Context, ids []string, txHash string) error {
	if len(ids) == 0 {
		return nil
	}
	parsed, err := parseIDs(ids)
	if err != nil {
		return err
	}

	// calculated_credits is a lifetime counter, so unlike engagements there
	// is no total to recompute here.
	now := time.Now().UTC()
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.CreditCalculation{}).
			Where("id IN ? AND status = ?", parsed, enums.SettlementStatusPending).
			Updates(map[string]any{
				"status":     enums.SettlementStatusSettled,
				"tx_hash":    txHash,
				"settled_at": now,
			}).Error
	})
}

func ensureUser(tx *gorm.DB, address string) error {
	user := models.User{Address: address}
	return tx.Where(models.User{Address: address}).FirstOrCreate(&user).Error
}

func parseIDs(ids []string) ([]uuid.UUID, error) {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, u)
	}
	return parsed, nil
}
