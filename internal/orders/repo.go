package orders

import (
	"context"

	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/db/models"
	"github.com/fleetops/dispatch-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository owns every order mutation the dispatch core performs. The
// conditional claim is the only cross-workflow serialization point on the
// order table: two concurrent loads can never claim the same row.
type Repository interface {
	// ClaimOrders conditionally assigns the given orders to loadID. Only
	// rows that are unclaimed and NEW pass the guard; the returned result
	// carries the driver-reported affected-row count, which may be
	// RowsAffectedUnknown.
	ClaimOrders(ctx context.Context, loadID string, orderIDs []int64) (db.ExecResult, error)

	// CountClaimed re-queries how many orders carry loadID. This is the
	// explicit recovery path for drivers whose affected-row reporting is
	// unreliable.
	CountClaimed(ctx context.Context, loadID string) (int64, error)

	// ReleaseOrders clears the claim markers on the given orders, making
	// them eligible again. Only rows claimed by loadID are touched, so a
	// concurrent load's claim survives. Idempotent: already-released rows
	// are skipped without error.
	ReleaseOrders(ctx context.Context, loadID string, orderIDs []int64) error

	// FinalizeOrders moves every claimed order in the load to COMPLETED.
	FinalizeOrders(ctx context.Context, loadID string) (int64, error)

	// FindClaimedWithLines loads the claimed orders of a load together
	// with their lines, ordered by id.
	FindClaimedWithLines(ctx context.Context, loadID string) ([]models.Order, error)
}

type repository struct {
	client *db.Client
}

// NewRepository builds an orders repository bound to the core client.
func NewRepository(client *db.Client) Repository {
	return &repository{client: client}
}

func (r *repository) ClaimOrders(ctx context.Context, loadID string, orderIDs []int64) (db.ExecResult, error) {
	result := db.ExecResult{RowsAffected: db.RowsAffectedUnknown}
	if len(orderIDs) == 0 {
		result.RowsAffected = 0
		return result, nil
	}
	err := r.client.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id IN ? AND load_id IS NULL AND process_state = ?", orderIDs, enums.ProcessStateNew).
			Updates(map[string]any{
				"load_id":       loadID,
				"process_state": enums.ProcessStateClaimed,
			})
		if res.Error != nil {
			return res.Error
		}
		result.RowsAffected = res.RowsAffected
		return nil
	})
	return result, err
}

func (r *repository) CountClaimed(ctx context.Context, loadID string) (int64, error) {
	var count int64
	err := r.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.Order{}).
			Where("load_id = ?", loadID).
			Count(&count).Error
	})
	return count, err
}

func (r *repository) ReleaseOrders(ctx context.Context, loadID string, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return r.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.Order{}).
			Where("id IN ? AND load_id = ? AND process_state = ?", orderIDs, loadID, enums.ProcessStateClaimed).
			Updates(map[string]any{
				"load_id":       nil,
				"process_state": enums.ProcessStateNew,
			}).Error
	})
}

func (r *repository) FinalizeOrders(ctx context.Context, loadID string) (int64, error) {
	var affected int64
	err := r.client.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("load_id = ? AND process_state = ?", loadID, enums.ProcessStateClaimed).
			Update("process_state", enums.ProcessStateCompleted)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}

func (r *repository) FindClaimedWithLines(ctx context.Context, loadID string) ([]models.Order, error) {
	var claimed []models.Order
	err := r.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Lines").
			Where("load_id = ? AND process_state = ?", loadID, enums.ProcessStateClaimed).
			Order("id ASC").
			Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
