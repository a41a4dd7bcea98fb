/*
report.go - Project usage and cost report

ALGORITHM:
  1. Load the project (NotFound if absent)
  2. Load its transactions joined with materials
  3. Walk them oldest first, seeding one accumulator per material on first sight
  4. WITHDRAW adds to TotalWithdrawn, RETURN adds to TotalReturned,
     RECEIVE is skipped
  5. NetUsage = TotalWithdrawn - TotalReturned
     TotalCost = NetUsage * material's current UnitPrice
  6. Report TotalCost is the sum over materials

PRICING:
  Costs use the price on the material row at report time. Historical
  transactions are revalued when a price changes; there is no price history.

SIGN:
  Over-returns make NetUsage and TotalCost negative. They are reported as is.
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReportAggregator builds project reports from the ledger.
type ReportAggregator struct {
	Store Store
}

func NewReportAggregator(store Store) *ReportAggregator {
	return &ReportAggregator{Store: store}
}

// ProjectReport folds a project's transaction history into a Report.
func (a *ReportAggregator) ProjectReport(ctx context.Context, id ProjectID) (Report, error) {
	project, err := a.Store.GetProject(ctx, id)
	if err != nil {
		return Report{}, wrapStore("project report", err)
	}

	entries, err := a.Store.ListTransactions(ctx, TransactionFilter{ProjectID: &id})
	if err != nil {
		return Report{}, wrapStore("project report", err)
	}

	// ListTransactions is newest first; the fold wants ledger order.
	chronological := make([]TransactionEntry, len(entries))
	for i, e := range entries {
		chronological[len(entries)-1-i] = e
	}

	return FoldUsage(project, chronological), nil
}

// FoldUsage aggregates entries, given in ledger order, into a Report.
func FoldUsage(project Project, entries []TransactionEntry) Report {
	index := make(map[MaterialID]int)
	usage := make([]MaterialUsage, 0)

	for _, e := range entries {
		if e.Type != TxWithdraw && e.Type != TxReturn {
			continue
		}

		i, ok := index[e.MaterialID]
		if !ok {
			i = len(usage)
			index[e.MaterialID] = i
			usage = append(usage, MaterialUsage{Material: e.Material, TotalCost: decimal.Zero})
		}

		u := &usage[i]
		switch e.Type {
		case TxWithdraw:
			u.TotalWithdrawn += e.Quantity
		case TxReturn:
			u.TotalReturned += e.Quantity
		}
		u.NetUsage = u.TotalWithdrawn - u.TotalReturned
		u.TotalCost = decimal.NewFromInt(u.NetUsage).Mul(u.Material.UnitPrice)
	}

	total := decimal.Zero
	for _, u := range usage {
		total = total.Add(u.TotalCost)
	}

	return Report{Project: project, MaterialUsage: usage, TotalCost: total}
}
