package nfce

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	declaredCountPattern = regexp.MustCompile(`(?i)Qtd\.?\s*total\s*de\s*itens\s*:?\s*(\d+)`)
	declaredTotalPattern = regexp.MustCompile(`(?i)Valor\s*a\s*pagar\s*R\$\s*:?\s*([\d.,]+)`)

	totalTolerance = decimal.New(1, -2)
)

// Reconcile compares the extracted items against the item count and amount
// the receipt declares. The result is advisory: items are never dropped.
func Reconcile(body string, items []LineItem) Totals {
	t := Totals{
		ComputedItemCount: len(items),
		ComputedTotal:     sumTotals(items),
	}
	t.DeclaredItemCount = declaredItemCount(body)
	t.DeclaredTotal = declaredTotal(body)
	t.ReconciliationStatus = reconciliationStatus(t)
	return t
}

func sumTotals(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.TotalPrice.Value)
	}
	return sum.Round(2)
}

func declaredItemCount(body string) *int {
	sm := declaredCountPattern.FindStringSubmatch(body)
	if sm == nil {
		return nil
	}
	n, err := strconv.Atoi(sm[1])
	if err != nil {
		return nil
	}
	return &n
}

// declaredTotal returns nil when the label is missing or its value does not
// parse.
func declaredTotal(body string) *decimal.Decimal {
	sm := declaredTotalPattern.FindStringSubmatch(body)
	if sm == nil {
		return nil
	}
	n := ParsePrice(strings.TrimRight(sm[1], ".,"))
	if n.Confidence == Low {
		return nil
	}
	return &n.Value
}

func reconciliationStatus(t Totals) ReconciliationStatus {
	if t.ComputedItemCount == 0 || t.DeclaredItemCount == nil || t.DeclaredTotal == nil {
		return ReconciliationUnparseable
	}
	countOK := *t.DeclaredItemCount == t.ComputedItemCount
	totalOK := t.ComputedTotal.Sub(*t.DeclaredTotal).Abs().LessThanOrEqual(totalTolerance)
	switch {
	case countOK && totalOK:
		return ReconciliationOK
	case totalOK:
		return ItemCountMismatch
	case countOK:
		return TotalMismatch
	default:
		return BothMismatch
	}
}
