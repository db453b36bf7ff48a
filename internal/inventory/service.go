package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetops/dispatch-backend/internal/sequence"
	"github.com/fleetops/dispatch-backend/pkg/db"
	"github.com/fleetops/dispatch-backend/pkg/db/models"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/fleetops/dispatch-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// ProductQuantity is one product to move between warehouses.
type ProductQuantity struct {
	ProductCode string
	Quantity    decimal.Decimal
}

// TransferRequest describes a warehouse-to-warehouse movement. Reference
// ties the resulting document back to the business process that asked
// for it.
type TransferRequest struct {
	Reference            string
	SourceWarehouse      string
	DestinationWarehouse string
	Products             []ProductQuantity
}

// LineFailure records a single product line that could not be written.
type LineFailure struct {
	ProductCode string `json:"productCode"`
	Reason      string `json:"reason"`
}

// TransferResult reports the created document and how its lines fared.
// FailureCount > 0 with a nil error means a partial transfer: the header
// and the successful lines exist and the failures need operator review.
type TransferResult struct {
	DocumentID   string        `json:"documentId"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	Failures     []LineFailure `json:"failures,omitempty"`
}

// Service creates inventory transfer documents. The header and each line
// are separate writes: a line failing never rolls back its siblings.
type Service struct {
	client    *db.Client
	allocator *sequence.Allocator
	namespace string
	attempts  int
	logg      *logger.Logger
}

// NewService builds a transfer service bound to the core client.
func NewService(client *db.Client, allocator *sequence.Allocator, namespace string, attempts int, logg *logger.Logger) *Service {
	if namespace == "" {
		namespace = "TRA"
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &Service{
		client:    client,
		allocator: allocator,
		namespace: namespace,
		attempts:  attempts,
		logg:      logg,
	}
}

// Transfer allocates a document id, writes the header, then writes every
// product line independently. Line errors are collected, not fatal, unless
// every line fails; then the orphan header is removed and the combined
// error is returned.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	documentID, err := s.allocator.NextIDWithRetry(ctx, s.namespace, s.attempts)
	if err != nil {
		return nil, err
	}
	if err := s.allocator.EnsureUnused(ctx, documentID); err != nil {
		return nil, err
	}

	header := models.InventoryDocument{
		DocumentID:           documentID,
		Reference:            req.Reference,
		SourceWarehouse:      req.SourceWarehouse,
		DestinationWarehouse: req.DestinationWarehouse,
		DocumentDate:         time.Now().UTC(),
	}
	err = s.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Create(&header).Error
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeManualRecovery, err,
			fmt.Sprintf("insert transfer document %s", documentID))
	}

	result := &TransferResult{DocumentID: documentID}
	var lineErrs error
	for _, product := range req.Products {
		line := models.InventoryDocumentLine{
			DocumentID:           documentID,
			ProductCode:          product.ProductCode,
			Quantity:             product.Quantity,
			SourceWarehouse:      req.SourceWarehouse,
			DestinationWarehouse: req.DestinationWarehouse,
		}
		insertErr := s.client.Do(ctx, func(tx *gorm.DB) error {
			return tx.Create(&line).Error
		})
		if insertErr != nil {
			result.FailureCount++
			result.Failures = append(result.Failures, LineFailure{
				ProductCode: product.ProductCode,
				Reason:      insertErr.Error(),
			})
			lineErrs = multierr.Append(lineErrs, fmt.Errorf("product %s: %w", product.ProductCode, insertErr))
			s.logg.Error(ctx, "transfer line failed", insertErr)
			continue
		}
		result.SuccessCount++
	}

	if result.SuccessCount == 0 {
		s.deleteOrphanHeader(ctx, documentID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeLineFailure, lineErrs,
			fmt.Sprintf("all %d lines of document %s failed", len(req.Products), documentID))
	}
	if result.FailureCount > 0 {
		s.logg.Warn(ctx, fmt.Sprintf("document %s created with %d of %d lines",
			documentID, result.SuccessCount, len(req.Products)))
	}
	return result, nil
}

// deleteOrphanHeader removes a header whose lines all failed. The header
// lives alone in the core database so this is ordinary cleanup, not
// cross-database compensation; a failed delete is logged and left for
// operators.
func (s *Service) deleteOrphanHeader(ctx context.Context, documentID string) {
	err := s.client.Do(ctx, func(tx *gorm.DB) error {
		return tx.Where("document_id = ?", documentID).
			Delete(&models.InventoryDocument{}).Error
	})
	if err != nil {
		s.logg.Error(ctx, fmt.Sprintf("orphan document %s left behind", documentID), err)
	}
}

func validateRequest(req TransferRequest) error {
	if req.SourceWarehouse == "" || req.DestinationWarehouse == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "source and destination warehouses required")
	}
	if len(req.Products) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer requires at least one product")
	}
	for _, product := range req.Products {
		if product.ProductCode == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "product code required on every line")
		}
		if !product.Quantity.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("product %s quantity must be positive", product.ProductCode))
		}
	}
	return nil
}
