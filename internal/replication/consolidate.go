package replication

import (
	"sort"

	"github.com/fleetops/dispatch-backend/pkg/db/models"
	"github.com/shopspring/decimal"
)

// Consolidate sums replicated line quantities per distinct product. The
// result is order-independent and sorted by product code so repeated runs
// over the same input produce identical rows.
func Consolidate(loadID string, lines []models.ReplicatedOrderLine) []models.ConsolidatedLoadLine {
	totals := make(map[string]decimal.Decimal, len(lines))
	for _, line := range lines {
		totals[line.ProductCode] = totals[line.ProductCode].Add(line.Quantity)
	}

	products := make([]string, 0, len(totals))
	for product := range totals {
		products = append(products, product)
	}
	sort.Strings(products)

	consolidated := make([]models.ConsolidatedLoadLine, 0, len(products))
	for _, product := range products {
		consolidated = append(consolidated, models.ConsolidatedLoadLine{
			LoadID:      loadID,
			ProductCode: product,
			Quantity:    totals[product],
		})
	}
	return consolidated
}
