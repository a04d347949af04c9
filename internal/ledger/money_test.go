package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLineAmounts(t *testing.T) {
	tests := []struct {
		name            string
		mode            VATMode
		qty             int64
		price           string
		total, vat, net string
	}{
		{"inclusive basic", VATInclusive, 5, "10", "50", "7.63", "42.37"},
		{"inclusive rounding", VATInclusive, 3, "0.99", "2.97", "0.45", "2.52"},
		{"inclusive zero", VATInclusive, 0, "10", "0", "0", "0"},
		{"exclusive flat rate", VATExclusive, 5, "10", "50", "9", "50"},
		{"exclusive rounding", VATExclusive, 7, "1.15", "8.05", "1.45", "8.05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, vat, net := lineAmounts(tt.mode, DefaultVATRate, tt.qty, dec(tt.price))
			if !total.Equal(dec(tt.total)) || !vat.Equal(dec(tt.vat)) || !net.Equal(dec(tt.net)) {
				t.Errorf("lineAmounts = %s/%s/%s, want %s/%s/%s", total, vat, net, tt.total, tt.vat, tt.net)
			}
		})
	}
}

// Final must be Net + VAT; Gross + VAT counts tax twice on inclusive prices.
func TestRecalculateTotalsFinal(t *testing.T) {
	rows := []LineItem{
		{Total: dec("50"), VAT: dec("7.63"), Net: dec("42.37")},
		{Total: dec("900"), VAT: dec("137.29"), Net: dec("762.71")},
		{},
	}
	got := RecalculateTotals(rows)

	want := Totals{Gross: dec("950"), VAT: dec("144.92"), Net: dec("805.08"), Final: dec("950")}
	for name, pair := range map[string][2]decimal.Decimal{
		"gross": {got.Gross, want.Gross},
		"vat":   {got.VAT, want.VAT},
		"net":   {got.Net, want.Net},
		"final": {got.Final, want.Final},
	} {
		if !pair[0].Equal(pair[1]) {
			t.Errorf("%s = %s, want %s", name, pair[0], pair[1])
		}
	}
	if got.Final.Equal(got.Gross.Add(got.VAT)) {
		t.Errorf("final equals gross + vat")
	}
}

func TestPolicyFor(t *testing.T) {
	if _, err := PolicyFor(Kind("quote"), DefaultVATRate); err == nil {
		t.Errorf("unknown kind accepted")
	}
	inv, _ := PolicyFor(KindInvoice, DefaultVATRate)
	if inv.VAT != VATExclusive || inv.ResolveBatches {
		t.Errorf("invoice policy = %+v", inv)
	}
	ret, _ := PolicyFor(KindReturn, DefaultVATRate)
	if !ret.RequireExpiry || !ret.RequireReturn || !ret.ResolveBatches {
		t.Errorf("return policy = %+v", ret)
	}
}
