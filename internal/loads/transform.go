package loads

import (
	"fmt"

	"github.com/fleetops/dispatch-backend/pkg/db/models"
	pkgerrors "github.com/fleetops/dispatch-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// transformLines denormalizes the claimed orders' lines into the
// replication shape. Discount and tax are computed from the order's
// percentages against the line gross, and each line gets a monotonic
// per-load sequence number.
func transformLines(loadID string, orders []models.Order) ([]models.ReplicatedOrderLine, error) {
	var lines []models.ReplicatedOrderLine
	seq := 0
	for _, order := range orders {
		if len(order.Lines) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeTransform,
				fmt.Sprintf("order %d has no lines to replicate", order.ID))
		}
		for _, line := range order.Lines {
			if !line.Quantity.IsPositive() {
				return nil, pkgerrors.New(pkgerrors.CodeTransform,
					fmt.Sprintf("order %d line %d has non-positive quantity", order.ID, line.ID))
			}
			seq++
			gross := line.Quantity.Mul(line.UnitPrice)
			discount := gross.Mul(order.DiscountPct).Div(hundred).Round(2)
			tax := gross.Sub(discount).Mul(order.TaxPct).Div(hundred).Round(2)
			warehouse := line.WarehouseCode
			if warehouse == "" {
				warehouse = order.WarehouseCode
			}
			lines = append(lines, models.ReplicatedOrderLine{
				LoadID:         loadID,
				OrderID:        order.ID,
				LineSeq:        seq,
				ProductCode:    line.ProductCode,
				Quantity:       line.Quantity,
				UnitPrice:      line.UnitPrice,
				DiscountAmount: discount,
				TaxAmount:      tax,
				SellerCode:     order.SellerCode,
				WarehouseCode:  warehouse,
			})
		}
	}
	return lines, nil
}
