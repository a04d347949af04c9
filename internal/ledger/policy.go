package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind names a transaction type.
type Kind string

const (
	KindOrder    Kind = "order"
	KindDelivery Kind = "delivery"
	KindInvoice  Kind = "invoice"
	KindReturn   Kind = "return"
)

// Kinds lists every transaction type in menu order.
var Kinds = []Kind{KindOrder, KindDelivery, KindInvoice, KindReturn}

func (k Kind) Title() string {
	switch k {
	case KindOrder:
		return "Order"
	case KindDelivery:
		return "Delivery"
	case KindInvoice:
		return "Invoice"
	case KindReturn:
		return "Return"
	}
	return string(k)
}

// Return types and their reasons.
const (
	ReturnGood = "good"
	ReturnBad  = "bad"
)

var returnReasons = map[string][]string{
	ReturnGood: {"customer_return", "wrong_item", "excess_stock"},
	ReturnBad:  {"damaged", "expired", "near_expiry"},
}

// ReturnReasons lists the reasons valid for a return type.
func ReturnReasons(returnType string) []string {
	return returnReasons[returnType]
}

// Policy captures everything that differs between transaction pages.
type Policy struct {
	Kind           Kind
	VAT            VATMode
	Rate           decimal.Decimal
	RequireExpiry  bool
	RequireReturn  bool
	ResolveBatches bool
}

// PolicyFor returns the policy for a transaction kind at the given VAT rate.
func PolicyFor(kind Kind, rate decimal.Decimal) (Policy, error) {
	p := Policy{Kind: kind, Rate: rate, VAT: VATInclusive}
	switch kind {
	case KindOrder, KindDelivery:
	case KindInvoice:
		p.VAT = VATExclusive
	case KindReturn:
		p.RequireExpiry = true
		p.RequireReturn = true
		p.ResolveBatches = true
	default:
		return Policy{}, fmt.Errorf("unknown transaction kind: %s", kind)
	}
	return p, nil
}

// reprice re-derives total, vat and net from quantity and unit price.
func (p Policy) reprice(l *LineItem) {
	n, ok := l.Qty()
	if !ok || l.UOMID == "" {
		l.Total, l.VAT, l.Net = decimal.Zero, decimal.Zero, decimal.Zero
		l.syncState()
		return
	}
	l.Total, l.VAT, l.Net = lineAmounts(p.VAT, p.Rate, n, l.UnitPrice)
	l.syncState()
}
