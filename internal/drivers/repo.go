package drivers

import (
	"context"
	"errors"

	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/db/models"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"gorm.io/gorm"
)

// Repository reads delivery-person records from the core database.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*models.Driver, error)
}

type repository struct {
	client *db.Client
}

// NewRepository builds a drivers repository bound to the core client.
func NewRepository(client *db.Client) Repository {
	return &repository{client: client}
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Driver, error) {
	var driver models.Driver
	err := r.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Where("code = ?", code).First(&driver).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "driver not found")
		}
		return nil, err
	}
	return &driver, nil
}
