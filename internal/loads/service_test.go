package loads

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/fleetops/dispatch-backend/internal/drivers"
	"github.com/fleetops/dispatch-backend/internal/inventory"
	"github.com/fleetops/dispatch-backend/internal/orders"
	"github.com/fleetops/dispatch-backend/internal/replication"
	"github.com/fleetops/dispatch-backend/internal/sequence"
	"github.com/fleetops/dispatch-backend/internal/tracker"
	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/db/models"
	"github.com/fleetops/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"github.com/fleetops/dispatch-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// memTracker is an in-memory tracker for workflow tests.
type memTracker struct {
	mu      sync.Mutex
	records map[string]*tracker.Record
}

func newMemTracker() *memTracker {
	return &memTracker{records: make(map[string]*tracker.Record)}
}

func (m *memTracker) Start(_ context.Context, loadID string, meta tracker.StartMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[loadID] = &tracker.Record{
		LoadID:          loadID,
		Status:          enums.LoadStatusProcessing,
		DriverCode:      meta.DriverCode,
		SourceWarehouse: meta.SourceWarehouse,
		RequesterID:     meta.RequesterID,
		OrderIDs:        meta.OrderIDs,
	}
	return nil
}

func (m *memTracker) Complete(_ context.Context, loadID string, outcome tracker.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[loadID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no record")
	}
	record.Status = enums.LoadStatusCompleted
	record.DocumentID = outcome.DocumentID
	record.SuccessCount = outcome.SuccessCount
	record.FailureCount = outcome.FailureCount
	return nil
}

func (m *memTracker) Fail(_ context.Context, loadID, step string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[loadID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no record")
	}
	record.Status = enums.LoadStatusError
	record.FailedStep = step
	if cause != nil {
		record.ErrorMessage = cause.Error()
	}
	return nil
}

func (m *memTracker) MarkTransferred(_ context.Context, loadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[loadID]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no record")
	}
	if record.Status != enums.LoadStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "not completed")
	}
	record.Status = enums.LoadStatusTransferred
	return nil
}

func (m *memTracker) Get(_ context.Context, loadID string) (*tracker.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[loadID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no record")
	}
	copied := *record
	return &copied, nil
}

func (m *memTracker) List(context.Context, pagination.Params) ([]tracker.Record, error) {
	return nil, nil
}

func (m *memTracker) only(t *testing.T) *tracker.Record {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) != 1 {
		t.Fatalf("expected exactly one tracking record, got %d", len(m.records))
	}
	for _, record := range m.records {
		return record
	}
	return nil
}

// failingReplication rejects every write.
type failingReplication struct{}

func (failingReplication) InsertReplicatedLines(context.Context, []models.ReplicatedOrderLine) error {
	return errors.New("replica rejected insert")
}

func (failingReplication) InsertConsolidatedLines(context.Context, []models.ConsolidatedLoadLine) error {
	return errors.New("replica rejected insert")
}

// unreliableOrders delegates to a real repository but reports the claim's
// affected-row count as unknown, the way drivers without row counting do.
type unreliableOrders struct {
	orders.Repository
}

func (u unreliableOrders) ClaimOrders(ctx context.Context, loadID string, orderIDs []int64) (db.ExecResult, error) {
	_, err := u.Repository.ClaimOrders(ctx, loadID, orderIDs)
	return db.ExecResult{RowsAffected: db.RowsAffectedUnknown}, err
}

// failingTransferrer rejects every transfer.
type failingTransferrer struct{}

func (failingTransferrer) Transfer(context.Context, inventory.TransferRequest) (*inventory.TransferResult, error) {
	return nil, errors.New("document insert rejected")
}

type fixture struct {
	svc     *Service
	core    *gorm.DB
	replica *gorm.DB
	tracker *memTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	core := openDB(t, "loads_core", &models.Driver{}, &models.Order{}, &models.OrderLine{},
		&models.SequenceCounter{}, &models.InventoryDocument{}, &models.InventoryDocumentLine{})
	replica := openDB(t, "loads_replica", &models.ReplicatedOrderLine{}, &models.ConsolidatedLoadLine{})

	coreClient := db.NewFromGorm(core, db.Options{Instance: db.InstanceCore})
	replicaClient := db.NewFromGorm(replica, db.Options{Instance: db.InstanceReplica})
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	allocator := sequence.NewAllocator(coreClient, nil)
	trk := newMemTracker()
	svc := NewService(
		drivers.NewRepository(coreClient),
		orders.NewRepository(coreClient),
		replication.NewRepository(replicaClient),
		inventory.NewService(coreClient, allocator, "TRA", 3, logg),
		trk,
		logg,
		nil,
	)
	return &fixture{svc: svc, core: core, replica: replica, tracker: trk}
}

func openDB(t *testing.T, name string, tables ...any) *gorm.DB {
	t.Helper()
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	if err := conn.AutoMigrate(tables...); err != nil {
		t.Fatalf("migrate %s: %v", name, err)
	}
	return conn
}

func (f *fixture) seedDriver(t *testing.T, code, warehouse string, active bool) {
	t.Helper()
	driver := models.Driver{Code: code, Name: "Driver " + code, Active: active, WarehouseCode: warehouse}
	if err := f.core.Create(&driver).Error; err != nil {
		t.Fatalf("seed driver: %v", err)
	}
}

func (f *fixture) seedOrder(t *testing.T, id int64, lines ...models.OrderLine) {
	t.Helper()
	order := models.Order{
		ID:            id,
		ClientCode:    "C1",
		SellerCode:    "S1",
		WarehouseCode: "01",
		Subtotal:      decimal.NewFromInt(100),
		TaxTotal:      decimal.NewFromInt(5),
		Total:         decimal.NewFromInt(105),
		DiscountPct:   decimal.NewFromInt(10),
		TaxPct:        decimal.NewFromInt(5),
		ProcessState:  enums.ProcessStateNew,
	}
	if err := f.core.Create(&order).Error; err != nil {
		t.Fatalf("seed order %d: %v", id, err)
	}
	for i := range lines {
		lines[i].OrderID = id
	}
	if len(lines) > 0 {
		if err := f.core.Create(&lines).Error; err != nil {
			t.Fatalf("seed lines for %d: %v", id, err)
		}
	}
}

func line(product string, qty, price int64) models.OrderLine {
	return models.OrderLine{
		ProductCode:   product,
		Quantity:      decimal.NewFromInt(qty),
		UnitPrice:     decimal.NewFromInt(price),
		WarehouseCode: "01",
	}
}

func (f *fixture) orderState(t *testing.T, id int64) (enums.ProcessState, *string) {
	t.Helper()
	var order models.Order
	if err := f.core.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("load order %d: %v", id, err)
	}
	return order.ProcessState, order.LoadID
}

var documentIDPattern = regexp.MustCompile(`^TRA\d{6}$`)

func TestProcessLoadEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedOrder(t, 1001, line("A", 3, 10), line("B", 2, 4))
	f.seedOrder(t, 1002, line("A", 5, 10))

	result, err := f.svc.ProcessLoad(ctx, "D5", []int64{1001, 1002}, "u1")
	if err != nil {
		t.Fatalf("process load: %v", err)
	}
	if result.LoadID == "" {
		t.Fatal("expected a load id")
	}
	if !documentIDPattern.MatchString(result.DocumentID) {
		t.Fatalf("unexpected document id %q", result.DocumentID)
	}
	if result.LineStats.SuccessCount != 2 || result.LineStats.FailureCount != 0 {
		t.Fatalf("unexpected line stats: %+v", result.LineStats)
	}

	for _, id := range []int64{1001, 1002} {
		state, loadID := f.orderState(t, id)
		if state != enums.ProcessStateCompleted {
			t.Fatalf("order %d: expected COMPLETED, got %s", id, state)
		}
		if loadID == nil || *loadID != result.LoadID {
			t.Fatalf("order %d: load id not set to %s", id, result.LoadID)
		}
	}

	var document models.InventoryDocument
	if err := f.core.Preload("Lines").First(&document, "document_id = ?", result.DocumentID).Error; err != nil {
		t.Fatalf("load document: %v", err)
	}
	if document.Reference != result.LoadID {
		t.Fatalf("document reference %q, want %q", document.Reference, result.LoadID)
	}
	if len(document.Lines) != 2 {
		t.Fatalf("expected 2 document lines, got %d", len(document.Lines))
	}

	var replicated []models.ReplicatedOrderLine
	if err := f.replica.Order("line_seq ASC").Find(&replicated, "load_id = ?", result.LoadID).Error; err != nil {
		t.Fatalf("load replicated lines: %v", err)
	}
	if len(replicated) != 3 {
		t.Fatalf("expected 3 replicated lines, got %d", len(replicated))
	}
	for i, row := range replicated {
		if row.LineSeq != i+1 {
			t.Fatalf("line %d has seq %d", i, row.LineSeq)
		}
	}
	// order 1001 line A: gross 30, 10% discount, 5% tax on the remainder
	if !replicated[0].DiscountAmount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected discount %s", replicated[0].DiscountAmount)
	}
	if !replicated[0].TaxAmount.Equal(decimal.NewFromFloat(1.35)) {
		t.Fatalf("unexpected tax %s", replicated[0].TaxAmount)
	}

	var consolidated []models.ConsolidatedLoadLine
	if err := f.replica.Order("product_code ASC").Find(&consolidated, "load_id = ?", result.LoadID).Error; err != nil {
		t.Fatalf("load consolidated lines: %v", err)
	}
	if len(consolidated) != 2 {
		t.Fatalf("expected 2 consolidated rows, got %d", len(consolidated))
	}
	if !consolidated[0].Quantity.Equal(decimal.NewFromInt(8)) || !consolidated[1].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected consolidated quantities: %+v", consolidated)
	}

	record := f.tracker.only(t)
	if record.Status != enums.LoadStatusCompleted || record.DocumentID != result.DocumentID {
		t.Fatalf("unexpected tracking record: %+v", record)
	}
}

func TestProcessLoadReplicationFailureReleasesOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.svc.replication = failingReplication{}
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedOrder(t, 1001, line("A", 3, 10))
	f.seedOrder(t, 1002, line("A", 5, 10))

	_, err := f.svc.ProcessLoad(ctx, "D5", []int64{1001, 1002}, "u1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeReplication) {
		t.Fatalf("expected REPLICATION_FAILURE, got %v", err)
	}

	for _, id := range []int64{1001, 1002} {
		state, loadID := f.orderState(t, id)
		if state != enums.ProcessStateNew || loadID != nil {
			t.Fatalf("order %d not released: state=%s loadID=%v", id, state, loadID)
		}
	}

	record := f.tracker.only(t)
	if record.Status != enums.LoadStatusError || record.FailedStep != StepReplication {
		t.Fatalf("unexpected tracking record: %+v", record)
	}
}

func TestProcessLoadPartialClaim(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedOrder(t, 1001, line("A", 3, 10))

	other := "L-other"
	blocked := models.Order{
		ID:            1002,
		ClientCode:    "C1",
		SellerCode:    "S1",
		WarehouseCode: "01",
		Subtotal:      decimal.NewFromInt(100),
		TaxTotal:      decimal.NewFromInt(5),
		Total:         decimal.NewFromInt(105),
		ProcessState:  enums.ProcessStateClaimed,
		LoadID:        &other,
	}
	if err := f.core.Create(&blocked).Error; err != nil {
		t.Fatalf("seed blocked order: %v", err)
	}

	_, err := f.svc.ProcessLoad(ctx, "D5", []int64{1001, 1002}, "u1")
	if !pkgerrors.HasCode(err, pkgerrors.CodePartialClaim) {
		t.Fatalf("expected PARTIAL_CLAIM, got %v", err)
	}

	state, loadID := f.orderState(t, 1001)
	if state != enums.ProcessStateNew || loadID != nil {
		t.Fatalf("eligible order left claimed: state=%s loadID=%v", state, loadID)
	}
	state, loadID = f.orderState(t, 1002)
	if state != enums.ProcessStateClaimed || loadID == nil || *loadID != other {
		t.Fatalf("foreign claim disturbed: state=%s loadID=%v", state, loadID)
	}
}

func TestProcessLoadRecountsWhenAffectedRowsUnknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.svc.orders = unreliableOrders{Repository: f.svc.orders}
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedOrder(t, 1001, line("A", 3, 10))
	f.seedOrder(t, 1002, line("B", 2, 4))

	result, err := f.svc.ProcessLoad(ctx, "D5", []int64{1001, 1002}, "u1")
	if err != nil {
		t.Fatalf("re-count should confirm the full claim: %v", err)
	}
	for _, id := range []int64{1001, 1002} {
		state, loadID := f.orderState(t, id)
		if state != enums.ProcessStateCompleted || loadID == nil || *loadID != result.LoadID {
			t.Fatalf("order %d: state=%s loadID=%v", id, state, loadID)
		}
	}
}

func TestProcessLoadRecountDetectsPartialClaim(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.svc.orders = unreliableOrders{Repository: f.svc.orders}
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedOrder(t, 1001, line("A", 3, 10))

	other := "L-other"
	blocked := models.Order{
		ID:            1002,
		ClientCode:    "C1",
		SellerCode:    "S1",
		WarehouseCode: "01",
		Subtotal:      decimal.NewFromInt(100),
		TaxTotal:      decimal.NewFromInt(5),
		Total:         decimal.NewFromInt(105),
		ProcessState:  enums.ProcessStateClaimed,
		LoadID:        &other,
	}
	if err := f.core.Create(&blocked).Error; err != nil {
		t.Fatalf("seed blocked order: %v", err)
	}

	_, err := f.svc.ProcessLoad(ctx, "D5", []int64{1001, 1002}, "u1")
	if !pkgerrors.HasCode(err, pkgerrors.CodePartialClaim) {
		t.Fatalf("expected PARTIAL_CLAIM, got %v", err)
	}

	state, loadID := f.orderState(t, 1001)
	if state != enums.ProcessStateNew || loadID != nil {
		t.Fatalf("eligible order left claimed: state=%s loadID=%v", state, loadID)
	}
	state, loadID = f.orderState(t, 1002)
	if state != enums.ProcessStateClaimed || loadID == nil || *loadID != other {
		t.Fatalf("foreign claim disturbed: state=%s loadID=%v", state, loadID)
	}
}

func TestProcessLoadInventoryFailureKeepsOrdersClaimed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.svc.inventory = failingTransferrer{}
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedOrder(t, 1001, line("A", 3, 10))

	_, err := f.svc.ProcessLoad(ctx, "D5", []int64{1001}, "u1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeManualRecovery) {
		t.Fatalf("expected MANUAL_RECOVERY_REQUIRED, got %v", err)
	}

	state, loadID := f.orderState(t, 1001)
	if state != enums.ProcessStateClaimed || loadID == nil {
		t.Fatalf("order should stay claimed: state=%s loadID=%v", state, loadID)
	}

	record := f.tracker.only(t)
	if record.Status != enums.LoadStatusError || record.FailedStep != StepInventory {
		t.Fatalf("unexpected tracking record: %+v", record)
	}
}

func TestProcessLoadPreconditions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedDriver(t, "D6", "02", false)
	f.seedDriver(t, "D7", "", true)

	cases := []struct {
		name     string
		driver   string
		orderIDs []int64
	}{
		{"missing driver code", "", []int64{1001}},
		{"unknown driver", "D404", []int64{1001}},
		{"inactive driver", "D6", []int64{1001}},
		{"driver without warehouse", "D7", []int64{1001}},
		{"no orders", "D5", nil},
		{"duplicate order ids", "D5", []int64{1001, 1001}},
	}
	for _, tc := range cases {
		_, err := f.svc.ProcessLoad(ctx, tc.driver, tc.orderIDs, "u1")
		if !pkgerrors.HasCode(err, pkgerrors.CodePrecondition) {
			t.Fatalf("%s: expected PRECONDITION_FAILED, got %v", tc.name, err)
		}
	}
	if len(f.tracker.records) != 0 {
		t.Fatalf("precondition failures must not create tracking records")
	}
}

func TestProcessLoadTransformFailureReleasesOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedOrder(t, 1001) // no lines

	_, err := f.svc.ProcessLoad(ctx, "D5", []int64{1001}, "u1")
	if !pkgerrors.HasCode(err, pkgerrors.CodeTransform) {
		t.Fatalf("expected TRANSFORM_FAILURE, got %v", err)
	}

	state, loadID := f.orderState(t, 1001)
	if state != enums.ProcessStateNew || loadID != nil {
		t.Fatalf("order not released: state=%s loadID=%v", state, loadID)
	}

	record := f.tracker.only(t)
	if record.FailedStep != StepTransform {
		t.Fatalf("unexpected failed step %q", record.FailedStep)
	}
}

func TestMarkTransferredAfterCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedDriver(t, "D5", "02", true)
	f.seedOrder(t, 1001, line("A", 1, 10))

	result, err := f.svc.ProcessLoad(ctx, "D5", []int64{1001}, "u1")
	if err != nil {
		t.Fatalf("process load: %v", err)
	}
	if err := f.svc.MarkTransferred(ctx, result.LoadID); err != nil {
		t.Fatalf("mark transferred: %v", err)
	}
	record, err := f.svc.GetLoad(ctx, result.LoadID)
	if err != nil {
		t.Fatalf("get load: %v", err)
	}
	if record.Status != enums.LoadStatusTransferred {
		t.Fatalf("expected transferred, got %s", record.Status)
	}
}

func TestNewLoadIDShape(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^L\d{14}-[0-9a-f]{8}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id := NewLoadID(timeNowFixed())
		if !pattern.MatchString(id) {
			t.Fatalf("unexpected load id %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate load id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func timeNowFixed() time.Time {
	return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}
