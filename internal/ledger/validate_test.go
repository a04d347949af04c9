package ledger

import (
	"reflect"
	"testing"
)

func TestValidateRow(t *testing.T) {
	snap := testSnapshot()
	order, _ := PolicyFor(KindOrder, DefaultVATRate)
	ret, _ := PolicyFor(KindReturn, DefaultVATRate)

	withReturn := func(l LineItem, expiry, typ, reason string) LineItem {
		l.ExpiryDate, l.ReturnType, l.ReturnReason = expiry, typ, reason
		return l
	}

	tests := []struct {
		name    string
		policy  Policy
		rows    []LineItem
		skipUOM bool
		want    FieldErrors
	}{
		{
			name:   "complete order row",
			policy: order,
			rows:   []LineItem{line("I", "PC", "5")},
			want:   FieldErrors{},
		},
		{
			name:   "blank row collects every rule",
			policy: order,
			rows:   []LineItem{line("", "", "")},
			want: FieldErrors{
				FieldItem:     "Item is required",
				FieldUOM:      "UOM is required",
				FieldQuantity: "Quantity is required",
			},
		},
		{
			name:    "uom rule skipped after item pick",
			policy:  order,
			rows:    []LineItem{line("I", "", "1")},
			skipUOM: true,
			want:    FieldErrors{},
		},
		{
			name:   "fractional quantity",
			policy: order,
			rows:   []LineItem{line("I", "PC", "1.5")},
			want:   FieldErrors{FieldQuantity: "Quantity must be a whole number"},
		},
		{
			name:   "stock exceeded across siblings",
			policy: order,
			rows:   []LineItem{line("I", "CTN", "8"), line("I", "PC", "10")},
			want:   FieldErrors{FieldQuantity: "Only 7 Case of SKU-1 - Mineral Water available"},
		},
		{
			name:   "return row needs expiry and reasons",
			policy: ret,
			rows:   []LineItem{line("I", "PC", "1")},
			want: FieldErrors{
				FieldExpiry:       "Expiry date is required",
				FieldReturnType:   "Return type is required",
				FieldReturnReason: "Return reason is required",
			},
		},
		{
			name:   "return reason must match type",
			policy: ret,
			rows:   []LineItem{withReturn(line("I", "PC", "1"), "2026-02-30", ReturnGood, "damaged")},
			want: FieldErrors{
				FieldExpiry:       "Expiry date must be a valid date (YYYY-MM-DD)",
				FieldReturnReason: `Reason "damaged" does not apply to good returns`,
			},
		},
		{
			name:   "unknown return type",
			policy: ret,
			rows:   []LineItem{withReturn(line("I", "PC", "1"), "2026-05-01", "lost", "expired")},
			want: FieldErrors{
				FieldReturnType:   `Unknown return type "lost"`,
				FieldReturnReason: `Reason "expired" does not apply to lost returns`,
			},
		},
		{
			name:   "valid return row",
			policy: ret,
			rows:   []LineItem{withReturn(line("I", "PC", "1"), "2026-05-01", ReturnBad, "expired")},
			want:   FieldErrors{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := tt.rows
			// Label the first row the way the engine would.
			if e, ok := snap.Lookup(rows[0].ItemID); ok {
				rows[0].ItemLabel = e.Label()
			}
			got := ValidateRow(tt.policy, rows, 0, snap, tt.skipUOM)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ValidateRow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateRowIsPure(t *testing.T) {
	p, _ := PolicyFor(KindOrder, DefaultVATRate)
	rows := []LineItem{line("I", "PC", "500"), line("I", "PC", "20")}
	before := cloneLines(rows)

	ValidateRow(p, rows, 0, testSnapshot(), false)
	if !reflect.DeepEqual(before, rows) {
		t.Errorf("ValidateRow mutated rows")
	}
	if got := ValidateRow(p, rows, 7, testSnapshot(), false); len(got) != 0 {
		t.Errorf("out of range index returned %v", got)
	}
}
