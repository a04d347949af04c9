package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field names a row field for mutation and error reporting.
type Field string

const (
	FieldItem         Field = "item_id"
	FieldUOM          Field = "uom_id"
	FieldQuantity     Field = "quantity"
	FieldUnitPrice    Field = "unit_price"
	FieldExpiry       Field = "expiry_date"
	FieldBatch        Field = "batch_number"
	FieldReturnType   Field = "return_type"
	FieldReturnReason Field = "return_reason"
)

// FieldErrors maps a field to its message. Empty means valid.
type FieldErrors map[Field]string

// DateLayout is the calendar date format used for expiry and header dates.
const DateLayout = "2006-01-02"

// ValidateRow checks row idx against required-field and stock rules. All rules
// are collected. skipUOM suppresses the UOM-required rule, used right after an
// item is picked. It never mutates rows.
func ValidateRow(p Policy, rows []LineItem, idx int, snap *StockSnapshot, skipUOM bool) FieldErrors {
	errs := FieldErrors{}
	if idx < 0 || idx >= len(rows) {
		return errs
	}
	row := rows[idx]

	if row.ItemID == "" {
		errs[FieldItem] = "Item is required"
	}
	if row.UOMID == "" && !skipUOM {
		errs[FieldUOM] = "UOM is required"
	}

	qty, qtyOK := parseQuantity(row.Quantity)
	switch {
	case strings.TrimSpace(row.Quantity) == "":
		errs[FieldQuantity] = "Quantity is required"
	case !qtyOK:
		errs[FieldQuantity] = "Quantity must be a whole number"
	case qty < 1:
		errs[FieldQuantity] = "Quantity must be at least 1"
	}

	if p.RequireExpiry {
		if msg := checkDate(row.ExpiryDate, "Expiry date"); msg != "" {
			errs[FieldExpiry] = msg
		}
	}
	if p.RequireReturn {
		switch {
		case row.ReturnType == "":
			errs[FieldReturnType] = "Return type is required"
		case ReturnReasons(row.ReturnType) == nil:
			errs[FieldReturnType] = fmt.Sprintf("Unknown return type %q", row.ReturnType)
		}
		switch {
		case row.ReturnReason == "":
			errs[FieldReturnReason] = "Return reason is required"
		case row.ReturnType != "" && !contains(ReturnReasons(row.ReturnType), row.ReturnReason):
			errs[FieldReturnReason] = fmt.Sprintf("Reason %q does not apply to %s returns", row.ReturnReason, row.ReturnType)
		}
	}
	if p.ResolveBatches && row.BatchResolved && row.BatchNumber == "" {
		errs[FieldBatch] = "No batch matches this expiry date and quantity"
	}

	if row.ItemID != "" && row.UOMID != "" && qtyOK && qty >= 1 {
		if avail, ok := AvailableFor(rows, idx, snap); ok && decimal.NewFromInt(qty).GreaterThan(avail) {
			label := row.ItemLabel
			if label == "" {
				label = row.ItemID
			}
			uom := row.UOMID
			if o, ok := row.UOM(); ok && o.Label != "" {
				uom = o.Label
			}
			errs[FieldQuantity] = fmt.Sprintf("Only %s %s of %s available", avail.String(), uom, label)
		}
	}

	return errs
}

func parseQuantity(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func checkDate(value, label string) string {
	if strings.TrimSpace(value) == "" {
		return label + " is required"
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return label + " must be a valid date (YYYY-MM-DD)"
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
