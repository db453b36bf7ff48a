package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/db/models"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/metrics"
	"gorm.io/gorm"
)

// idWidth is the zero-padded numeric width of generated identifiers, e.g.
// TRA000042.
const idWidth = 6

// Allocator issues strictly increasing, collision-free document ids from a
// shared counter row using optimistic concurrency control. Losing the
// conditional write returns SEQUENCE_CONFLICT; the caller retries with a
// fresh read so no value is silently skipped.
type Allocator struct {
	client  *db.Client
	metrics *metrics.DispatchMetrics
}

// NewAllocator builds an allocator bound to the core client.
func NewAllocator(client *db.Client, m *metrics.DispatchMetrics) *Allocator {
	return &Allocator{client: client, metrics: m}
}

// FormatID renders a counter value as a document id for the namespace.
func FormatID(namespace string, value int64) string {
	return fmt.Sprintf("%s%0*d", namespace, idWidth, value)
}

// NextID performs one read-compute-compare-swap round against the counter
// row. The namespace row is created at zero on first use.
func (a *Allocator) NextID(ctx context.Context, namespace string) (string, error) {
	if namespace == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "sequence namespace required")
	}

	current, err := a.readCounter(ctx, namespace)
	if err != nil {
		return "", err
	}
	next := current + 1

	var swapped int64
	err = a.client.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.SequenceCounter{}).
			Where("namespace = ? AND last_value = ?", namespace, current).
			Update("last_value", next)
		if res.Error != nil {
			return res.Error
		}
		swapped = res.RowsAffected
		return nil
	})
	if err != nil {
		return "", err
	}
	if swapped == 0 {
		a.metrics.IncSequenceConflict()
		return "", pkgerrors.New(pkgerrors.CodeSequence,
			fmt.Sprintf("counter %s moved past %d", namespace, current))
	}
	return FormatID(namespace, next), nil
}

// NextIDWithRetry repeats NextID with a fresh read after each lost race,
// up to the given attempt budget.
func (a *Allocator) NextIDWithRetry(ctx context.Context, namespace string, attempts int) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		id, err := a.NextID(ctx, namespace)
		if err == nil {
			return id, nil
		}
		if !pkgerrors.HasCode(err, pkgerrors.CodeSequence) {
			return "", err
		}
		lastErr = err
	}
	return "", pkgerrors.Wrap(pkgerrors.CodeSequence, lastErr,
		fmt.Sprintf("no %s id after %d attempts", namespace, attempts))
}

// EnsureUnused verifies the allocated id is absent from the document table
// before it is used as a key. A hit means the counter and the table have
// diverged, which is a fatal integrity problem, never something to paper
// over by overwriting.
func (a *Allocator) EnsureUnused(ctx context.Context, documentID string) error {
	var count int64
	err := a.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.InventoryDocument{}).
			Where("document_id = ?", documentID).
			Count(&count).Error
	})
	if err != nil {
		return err
	}
	if count > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("document id %s already exists; counter diverged from document table", documentID))
	}
	return nil
}

func (a *Allocator) readCounter(ctx context.Context, namespace string) (int64, error) {
	var counter models.SequenceCounter
	err := a.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Where("namespace = ?", namespace).First(&counter).Error
	})
	if err == nil {
		return counter.LastValue, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	// first use of the namespace: seed the row at zero. A concurrent
	// seeder winning the insert race is fine, the value is identical.
	seedErr := a.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Create(&models.SequenceCounter{Namespace: namespace, LastValue: 0}).Error
	})
	if seedErr != nil && !db.IsUniqueViolation(seedErr, "") {
		return 0, seedErr
	}
	return 0, nil
}
