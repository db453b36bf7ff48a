package loads

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetops/dispatch-backend/internal/drivers"
	"github.com/fleetops/dispatch-backend/internal/inventory"
	"github.com/fleetops/dispatch-backend/internal/orders"
	"github.com/fleetops/dispatch-backend/internal/replication"
	"github.com/fleetops/dispatch-backend/internal/tracker"
	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/db/models"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"github.com/fleetops/dispatch-backend/pkg/metrics"
	"github.com/google/uuid"
)

// Step names recorded on tracking records and error messages.
const (
	StepValidate    = "validate"
	StepTracking    = "tracking"
	StepClaim       = "claim"
	StepTransform   = "transform"
	StepReplication = "replication"
	StepInventory   = "inventory"
	StepFinalize    = "finalize"
)

// Transferrer creates the inventory movement backing a load.
type Transferrer interface {
	Transfer(ctx context.Context, req inventory.TransferRequest) (*inventory.TransferResult, error)
}

// Result reports a completed load run.
type Result struct {
	LoadID     string                  `json:"loadId"`
	DocumentID string                  `json:"documentId"`
	LineStats  LineStats               `json:"lineStats"`
	Failures   []inventory.LineFailure `json:"failures,omitempty"`
}

// LineStats counts how the inventory document's lines fared.
type LineStats struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

// Service runs the order dispatch workflow: claim the requested orders in
// the core database, replicate their transformed lines into the replica
// database, create an inventory transfer, and finalize. The two databases
// share no transaction, so each step either succeeds, compensates by
// releasing the claimed orders, or, once the inventory transfer has begun,
// stops and demands manual recovery.
type Service struct {
	drivers     drivers.Repository
	orders      orders.Repository
	replication replication.Repository
	inventory   Transferrer
	tracker     tracker.Tracker
	logg        *logger.Logger
	metrics     *metrics.DispatchMetrics
	now         func() time.Time
}

// NewService wires the workflow over its collaborators.
func NewService(
	driverRepo drivers.Repository,
	orderRepo orders.Repository,
	replicationRepo replication.Repository,
	transferrer Transferrer,
	trk tracker.Tracker,
	logg *logger.Logger,
	m *metrics.DispatchMetrics,
) *Service {
	return &Service{
		drivers:     driverRepo,
		orders:      orderRepo,
		replication: replicationRepo,
		inventory:   transferrer,
		tracker:     trk,
		logg:        logg,
		metrics:     m,
		now:         time.Now,
	}
}

// NewLoadID builds a load identifier from the current time and a random
// suffix. Uniqueness is by construction; ids are never reused.
func NewLoadID(at time.Time) string {
	return fmt.Sprintf("L%s-%s", at.UTC().Format("20060102150405"), uuid.NewString()[:8])
}

// ProcessLoad runs the full workflow for one driver and one batch of
// orders. On success every order carries the returned load id and state
// COMPLETED, one inventory document exists, and the replica database holds
// the load's replicated and consolidated lines.
func (s *Service) ProcessLoad(ctx context.Context, driverCode string, orderIDs []int64, requesterID string) (*Result, error) {
	started := s.now()

	driver, err := s.validateRequest(ctx, driverCode, orderIDs)
	if err != nil {
		s.finishMetrics(started, "error", StepValidate)
		return nil, err
	}

	loadID := NewLoadID(started)
	ctx = s.logg.WithLoadID(ctx, loadID)
	ctx = s.logg.WithDriverCode(ctx, driverCode)
	s.logg.Info(ctx, fmt.Sprintf("dispatching %d orders", len(orderIDs)))

	// tracking is advisory, a failed write never aborts the run
	if err := s.tracker.Start(ctx, loadID, tracker.StartMeta{
		DriverCode:      driverCode,
		SourceWarehouse: driver.WarehouseCode,
		RequesterID:     requesterID,
		OrderIDs:        orderIDs,
	}); err != nil {
		s.logg.Error(s.logg.WithStep(ctx, StepTracking), "tracking record not created", err)
	}

	if err := s.claimOrders(ctx, loadID, orderIDs); err != nil {
		s.fail(ctx, loadID, StepClaim, err)
		s.finishMetrics(started, "error", StepClaim)
		return nil, err
	}

	claimed, lines, err := s.transform(ctx, loadID)
	if err != nil {
		s.compensate(ctx, loadID, orderIDs)
		s.fail(ctx, loadID, StepTransform, err)
		s.finishMetrics(started, "error", StepTransform)
		return nil, err
	}

	if err := s.replicate(ctx, loadID, lines); err != nil {
		s.compensate(ctx, loadID, orderIDs)
		s.fail(ctx, loadID, StepReplication, err)
		s.finishMetrics(started, "error", StepReplication)
		return nil, err
	}

	// from here on the orders stay claimed on failure; an operator
	// finishes or unwinds the run by hand
	transfer, err := s.transfer(ctx, loadID, driver, claimed)
	if err != nil {
		s.fail(ctx, loadID, StepInventory, err)
		s.finishMetrics(started, "error", StepInventory)
		return nil, err
	}

	if err := s.finalize(ctx, loadID, len(orderIDs)); err != nil {
		s.fail(ctx, loadID, StepFinalize, err)
		s.finishMetrics(started, "error", StepFinalize)
		return nil, err
	}

	if err := s.tracker.Complete(ctx, loadID, tracker.Outcome{
		DocumentID:   transfer.DocumentID,
		SuccessCount: transfer.SuccessCount,
		FailureCount: transfer.FailureCount,
	}); err != nil {
		s.logg.Error(ctx, "tracking record not completed", err)
	}

	s.finishMetrics(started, "completed", "")
	s.logg.Info(ctx, fmt.Sprintf("load completed with document %s", transfer.DocumentID))
	return &Result{
		LoadID:     loadID,
		DocumentID: transfer.DocumentID,
		LineStats: LineStats{
			SuccessCount: transfer.SuccessCount,
			FailureCount: transfer.FailureCount,
		},
		Failures: transfer.Failures,
	}, nil
}

// MarkTransferred flips a completed load's tracking status to transferred.
// Operator-triggered follow-on action, not part of the main flow.
func (s *Service) MarkTransferred(ctx context.Context, loadID string) error {
	return s.tracker.MarkTransferred(ctx, loadID)
}

// GetLoad returns one load's tracking record.
func (s *Service) GetLoad(ctx context.Context, loadID string) (*tracker.Record, error) {
	return s.tracker.Get(ctx, loadID)
}

func (s *Service) validateRequest(ctx context.Context, driverCode string, orderIDs []int64) (*models.Driver, error) {
	if driverCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "driver code required")
	}
	if len(orderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "at least one order required")
	}
	seen := make(map[int64]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodePrecondition,
				fmt.Sprintf("order %d requested more than once", id))
		}
		seen[id] = struct{}{}
	}

	driver, err := s.drivers.FindByCode(ctx, driverCode)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodePrecondition, err,
				fmt.Sprintf("driver %s not found", driverCode))
		}
		return nil, err
	}
	if !driver.Active {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition,
			fmt.Sprintf("driver %s is inactive", driverCode))
	}
	if driver.WarehouseCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition,
			fmt.Sprintf("driver %s has no warehouse assigned", driverCode))
	}
	return driver, nil
}

// claimOrders runs the guarded claim statement and verifies it reached
// every requested order. An unreliable driver-reported count triggers an
// explicit re-count before deciding.
func (s *Service) claimOrders(ctx context.Context, loadID string, orderIDs []int64) error {
	res, err := s.orders.ClaimOrders(ctx, loadID, orderIDs)
	if err != nil {
		return err
	}
	affected := res.RowsAffected
	if affected == db.RowsAffectedUnknown {
		s.logg.Warn(ctx, "claim count unreliable, re-counting")
		affected, err = s.orders.CountClaimed(ctx, loadID)
		if err != nil {
			return err
		}
	}
	if affected == int64(len(orderIDs)) {
		return nil
	}

	// some orders were already claimed or not eligible; the guard kept
	// each row atomic, release whatever this call did claim
	s.compensate(ctx, loadID, orderIDs)
	return pkgerrors.New(pkgerrors.CodePartialClaim,
		fmt.Sprintf("claimed %d of %d requested orders", affected, len(orderIDs)))
}

func (s *Service) transform(ctx context.Context, loadID string) ([]models.Order, []models.ReplicatedOrderLine, error) {
	claimed, err := s.orders.FindClaimedWithLines(ctx, loadID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeTransform, err, "read claimed orders")
	}
	lines, err := transformLines(loadID, claimed)
	if err != nil {
		return nil, nil, err
	}
	return claimed, lines, nil
}

func (s *Service) replicate(ctx context.Context, loadID string, lines []models.ReplicatedOrderLine) error {
	if err := s.replication.InsertReplicatedLines(ctx, lines); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeReplication, err, "insert replicated lines")
	}
	consolidated := replication.Consolidate(loadID, lines)
	if err := s.replication.InsertConsolidatedLines(ctx, consolidated); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeReplication, err, "insert consolidated lines")
	}
	return nil
}

func (s *Service) transfer(ctx context.Context, loadID string, driver *models.Driver, claimed []models.Order) (*inventory.TransferResult, error) {
	source := driver.WarehouseCode
	if len(claimed) > 0 && claimed[0].WarehouseCode != "" {
		source = claimed[0].WarehouseCode
	}
	products := consolidatedProducts(loadID, claimed)
	result, err := s.inventory.Transfer(ctx, inventory.TransferRequest{
		Reference:            loadID,
		SourceWarehouse:      source,
		DestinationWarehouse: driver.WarehouseCode,
		Products:             products,
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeManualRecovery) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeManualRecovery, err,
			"inventory transfer failed, orders remain claimed")
	}
	return result, nil
}

func (s *Service) finalize(ctx context.Context, loadID string, expected int) error {
	finalized, err := s.orders.FinalizeOrders(ctx, loadID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeManualRecovery, err,
			"finalize failed, orders remain claimed")
	}
	if finalized != int64(expected) {
		return pkgerrors.New(pkgerrors.CodeManualRecovery,
			fmt.Sprintf("finalized %d of %d orders", finalized, expected))
	}
	return nil
}

// compensate releases the orders this load claimed. The release is scoped
// to loadID so a concurrent load's claim is never stripped. Idempotent;
// its own failure is logged and never masks the failure that triggered it.
func (s *Service) compensate(ctx context.Context, loadID string, orderIDs []int64) {
	s.metrics.IncCompensation()
	if err := s.orders.ReleaseOrders(ctx, loadID, orderIDs); err != nil {
		s.logg.Error(ctx, "release after failed step did not complete", err)
	}
}

func (s *Service) fail(ctx context.Context, loadID, step string, cause error) {
	ctx = s.logg.WithStep(ctx, step)
	s.logg.Error(ctx, "load failed", cause)
	if err := s.tracker.Fail(ctx, loadID, step, cause); err != nil {
		s.logg.Error(ctx, "tracking record not updated", err)
	}
}

func (s *Service) finishMetrics(started time.Time, status, failedStep string) {
	s.metrics.ObserveDuration(status, s.now().Sub(started))
	s.metrics.IncOutcome(status, failedStep)
}

// consolidatedProducts sums line quantities per product across the claimed
// orders, mirroring the consolidation written to the replica database.
func consolidatedProducts(loadID string, claimed []models.Order) []inventory.ProductQuantity {
	var lines []models.ReplicatedOrderLine
	for _, order := range claimed {
		for _, line := range order.Lines {
			lines = append(lines, models.ReplicatedOrderLine{
				ProductCode: line.ProductCode,
				Quantity:    line.Quantity,
			})
		}
	}
	consolidated := replication.Consolidate(loadID, lines)
	products := make([]inventory.ProductQuantity, 0, len(consolidated))
	for _, row := range consolidated {
		products = append(products, inventory.ProductQuantity{
			ProductCode: row.ProductCode,
			Quantity:    row.Quantity,
		})
	}
	return products
}
