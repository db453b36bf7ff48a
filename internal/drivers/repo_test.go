package drivers

import (
	"context"
	"testing"

	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/db/models"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (Repository, *gorm.DB) {
	t.Helper()
	dsn := "file:drivers_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Driver{}))
	client := db.NewFromGorm(conn, db.Options{Instance: db.InstanceCore})
	return NewRepository(client), conn
}

func TestFindByCode(t *testing.T) {
	t.Parallel()

	repo, conn := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, conn.Create(&models.Driver{
		Code:          "D5",
		Name:          "Driver Five",
		Active:        true,
		WarehouseCode: "02",
	}).Error)

	driver, err := repo.FindByCode(ctx, "D5")
	require.NoError(t, err)
	assert.Equal(t, "D5", driver.Code)
	assert.Equal(t, "02", driver.WarehouseCode)
	assert.True(t, driver.Active)
}

func TestInactiveDriverPersistsAsInactive(t *testing.T) {
	t.Parallel()

	repo, conn := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, conn.Create(&models.Driver{
		Code:          "D6",
		Name:          "Driver Six",
		Active:        false,
		WarehouseCode: "03",
	}).Error)

	driver, err := repo.FindByCode(ctx, "D6")
	require.NoError(t, err)
	assert.False(t, driver.Active, "inactive flag must survive the insert")
}

func TestFindByCodeMissing(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepo(t)
	_, err := repo.FindByCode(context.Background(), "D404")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
