package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetops/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/pagination"
	"github.com/fleetops/dispatch-backend/pkg/redis"
)

// Record is the tracking document kept per load. It is advisory: the
// relational databases are the source of truth and the record only
// reports what the workflow last said about itself.
type Record struct {
	LoadID          string           `json:"loadId"`
	Status          enums.LoadStatus `json:"status"`
	DriverCode      string           `json:"driverCode"`
	SourceWarehouse string           `json:"sourceWarehouse,omitempty"`
	RequesterID     string           `json:"requesterId,omitempty"`
	OrderIDs        []int64          `json:"orderIds"`
	FailedStep      string           `json:"failedStep,omitempty"`
	ErrorMessage    string           `json:"errorMessage,omitempty"`
	DocumentID      string           `json:"documentId,omitempty"`
	SuccessCount    int              `json:"successCount"`
	FailureCount    int              `json:"failureCount"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// StartMeta carries the fields known when a load begins.
type StartMeta struct {
	DriverCode      string
	SourceWarehouse string
	RequesterID     string
	OrderIDs        []int64
}

// Outcome carries the fields known when a load completes.
type Outcome struct {
	DocumentID   string
	SuccessCount int
	FailureCount int
}

// Tracker persists load tracking records. Every write is advisory; the
// orchestrator logs failures and moves on.
type Tracker interface {
	Start(ctx context.Context, loadID string, meta StartMeta) error
	Complete(ctx context.Context, loadID string, outcome Outcome) error
	Fail(ctx context.Context, loadID, step string, cause error) error
	MarkTransferred(ctx context.Context, loadID string) error
	Get(ctx context.Context, loadID string) (*Record, error)
	List(ctx context.Context, page pagination.Params) ([]Record, error)
}

type redisTracker struct {
	client *redis.Client
	now    func() time.Time
}

// New builds a tracker on the shared redis client.
func New(client *redis.Client) Tracker {
	return &redisTracker{client: client, now: time.Now}
}

func (t *redisTracker) Start(ctx context.Context, loadID string, meta StartMeta) error {
	now := t.now().UTC()
	record := Record{
		LoadID:          loadID,
		Status:          enums.LoadStatusProcessing,
		DriverCode:      meta.DriverCode,
		SourceWarehouse: meta.SourceWarehouse,
		RequesterID:     meta.RequesterID,
		OrderIDs:        meta.OrderIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := t.write(ctx, record); err != nil {
		return err
	}
	return t.client.ZAdd(ctx, t.client.LoadIndexKey(), float64(now.UnixNano()), loadID)
}

func (t *redisTracker) Complete(ctx context.Context, loadID string, outcome Outcome) error {
	return t.update(ctx, loadID, func(record *Record) {
		record.Status = enums.LoadStatusCompleted
		record.DocumentID = outcome.DocumentID
		record.SuccessCount = outcome.SuccessCount
		record.FailureCount = outcome.FailureCount
		record.FailedStep = ""
		record.ErrorMessage = ""
	})
}

func (t *redisTracker) Fail(ctx context.Context, loadID, step string, cause error) error {
	return t.update(ctx, loadID, func(record *Record) {
		record.Status = enums.LoadStatusError
		record.FailedStep = step
		if cause != nil {
			record.ErrorMessage = cause.Error()
		}
	})
}

// MarkTransferred flips a completed load to transferred. Any other
// current status is a caller mistake, so the transition is guarded.
func (t *redisTracker) MarkTransferred(ctx context.Context, loadID string) error {
	record, err := t.Get(ctx, loadID)
	if err != nil {
		return err
	}
	if record.Status != enums.LoadStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("load %s is %s, only completed loads can be transferred", loadID, record.Status))
	}
	record.Status = enums.LoadStatusTransferred
	record.UpdatedAt = t.now().UTC()
	return t.write(ctx, *record)
}

func (t *redisTracker) Get(ctx context.Context, loadID string) (*Record, error) {
	raw, err := t.client.Get(ctx, t.client.LoadKey(loadID))
	if err != nil {
		if redis.IsNil(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("no tracking record for load %s", loadID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read tracking record")
	}
	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode tracking record")
	}
	return &record, nil
}

// List returns records newest first. Loads whose document vanished while
// listing are skipped rather than failing the page.
func (t *redisTracker) List(ctx context.Context, page pagination.Params) ([]Record, error) {
	page = page.Normalize()
	start := int64(page.Offset)
	stop := int64(page.Offset + page.Limit - 1)
	loadIDs, err := t.client.ZRevRange(ctx, t.client.LoadIndexKey(), start, stop)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read load index")
	}
	records := make([]Record, 0, len(loadIDs))
	for _, loadID := range loadIDs {
		record, err := t.Get(ctx, loadID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

func (t *redisTracker) update(ctx context.Context, loadID string, mutate func(*Record)) error {
	record, err := t.Get(ctx, loadID)
	if err != nil {
		return err
	}
	mutate(record)
	record.UpdatedAt = t.now().UTC()
	return t.write(ctx, *record)
}

func (t *redisTracker) write(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode tracking record")
	}
	if err := t.client.Set(ctx, t.client.LoadKey(record.LoadID), string(payload), 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write tracking record")
	}
	return nil
}
