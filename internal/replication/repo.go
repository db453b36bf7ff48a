package replication

import (
	"context"

	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository is the write-only surface of the replica database. Both
// tables are insert-only: a row's existence means the write succeeded.
type Repository interface {
	InsertReplicatedLines(ctx context.Context, lines []models.ReplicatedOrderLine) error
	InsertConsolidatedLines(ctx context.Context, lines []models.ConsolidatedLoadLine) error
}

type repository struct {
	client *db.Client
}

// NewRepository builds a replication repository bound to the replica client.
func NewRepository(client *db.Client) Repository {
	return &repository{client: client}
}

func (r *repository) InsertReplicatedLines(ctx context.Context, lines []models.ReplicatedOrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Create(&lines).Error
	})
}

func (r *repository) InsertConsolidatedLines(ctx context.Context, lines []models.ConsolidatedLoadLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Create(&lines).Error
	})
}
