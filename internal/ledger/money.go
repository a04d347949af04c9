package ledger

import "github.com/shopspring/decimal"

const moneyPlaces = 2

var one = decimal.NewFromInt(1)

// DefaultVATRate is the 18% rate prices are quoted at.
var DefaultVATRate = decimal.RequireFromString("0.18")

// VATMode selects how tax is derived from a line total.
type VATMode int

const (
	// VATInclusive back-calculates tax from a tax-inclusive total.
	VATInclusive VATMode = iota
	// VATExclusive adds a flat rate on top of the total.
	VATExclusive
)

// Totals aggregates the financials of all rows.
type Totals struct {
	Gross decimal.Decimal
	VAT   decimal.Decimal
	Net   decimal.Decimal
	Final decimal.Decimal
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// lineAmounts returns total, vat and net for a quantity at a unit price.
func lineAmounts(mode VATMode, rate decimal.Decimal, qty int64, price decimal.Decimal) (total, vat, net decimal.Decimal) {
	total = roundMoney(decimal.NewFromInt(qty).Mul(price))
	switch mode {
	case VATExclusive:
		vat = roundMoney(total.Mul(rate))
		net = total
	default:
		vat = roundMoney(total.Sub(total.DivRound(one.Add(rate), 8)))
		net = total.Sub(vat)
	}
	return total, vat, net
}

// RecalculateTotals sums row financials. Final is Net + VAT, never Gross + VAT.
func RecalculateTotals(rows []LineItem) Totals {
	var t Totals
	for _, r := range rows {
		t.Gross = t.Gross.Add(r.Total)
		t.VAT = t.VAT.Add(r.VAT)
		t.Net = t.Net.Add(r.Net)
	}
	t.Final = t.Net.Add(t.VAT)
	return t
}
