package txn

import (
	"reflect"
	"testing"

	"github.com/mikelcalvo/distributor-cli/internal/ledger"
)

func TestHeaderValidate(t *testing.T) {
	valid := Header{Kind: ledger.KindOrder, Code: "SO-1", WarehouseID: "W1", CustomerID: "C1", Date: "2026-03-14"}

	tests := []struct {
		name   string
		mutate func(h *Header)
		want   map[string]string
	}{
		{"complete", func(h *Header) {}, map[string]string{}},
		{"bad date", func(h *Header) { h.Date = "14/03/2026" }, map[string]string{"date": "Date must be a date (YYYY-MM-DD)"}},
		{"missing warehouse and code", func(h *Header) { h.WarehouseID, h.Code = "", "" }, map[string]string{
			"warehouse": "Warehouse is required",
			"code":      "Code is required",
		}},
		{"delivery without reference", func(h *Header) { h.Kind = ledger.KindDelivery }, map[string]string{"delivery": "Delivery is required"}},
		{"unknown kind", func(h *Header) { h.Kind = "quote" }, map[string]string{"transaction type": "Unknown transaction type"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := valid
			tt.mutate(&h)
			if got := h.Validate(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{
		Header: map[string]string{"customer": "Customer is required", "date": "Date is required"},
		Rows:   map[int]ledger.FieldErrors{0: {ledger.FieldUOM: "UOM is required"}},
	}
	want := "cannot submit: Customer is required; Date is required; 1 line(s) need attention"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
