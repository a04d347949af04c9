package ledger

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RowState tracks how far a line has progressed through the item -> UOM -> quantity cascade.
type RowState int

const (
	RowEmpty RowState = iota
	RowItemSelected
	RowPriced
	RowQuantified
)

func (s RowState) String() string {
	switch s {
	case RowItemSelected:
		return "item"
	case RowPriced:
		return "priced"
	case RowQuantified:
		return "ready"
	default:
		return "empty"
	}
}

// UOM types as returned by the warehouse stock lookup.
const (
	UOMPrimary   = "primary"
	UOMSecondary = "secondary"
)

// UOMOption is one selling unit available for an item.
type UOMOption struct {
	ID        string
	Label     string
	Type      string
	UnitPrice decimal.Decimal
	Factor    decimal.Decimal // base units per one of this UOM
}

// Batch is a costed stock batch returned by the batch lookup.
type Batch struct {
	Number   string
	Expiry   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	SapID    string
}

// LineItem is one row of a transaction's item table.
type LineItem struct {
	Key   uuid.UUID
	State RowState

	ItemID     string
	ItemLabel  string
	UOMID      string
	UOMOptions []UOMOption

	Quantity  string
	UnitPrice decimal.Decimal
	Available decimal.NullDecimal

	Total decimal.Decimal
	VAT   decimal.Decimal
	Net   decimal.Decimal

	ExpiryDate    string
	BatchNumber   string
	BatchResolved bool
	ReturnType    string
	ReturnReason  string

	Loading bool
}

func newLine() LineItem {
	return LineItem{
		Key:      uuid.New(),
		State:    RowEmpty,
		Quantity: "1",
	}
}

// Qty parses the entered quantity. ok is false for blank, non-integer or negative input.
func (l LineItem) Qty() (int64, bool) {
	s := strings.TrimSpace(l.Quantity)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// UOM returns the selected unit option.
func (l LineItem) UOM() (UOMOption, bool) {
	return l.option(l.UOMID)
}

func (l LineItem) option(id string) (UOMOption, bool) {
	if id == "" {
		return UOMOption{}, false
	}
	for _, o := range l.UOMOptions {
		if o.ID == id {
			return o, true
		}
	}
	return UOMOption{}, false
}

// IsBlank reports a row with neither item nor UOM.
func (l LineItem) IsBlank() bool {
	return l.ItemID == "" && l.UOMID == ""
}

func (l *LineItem) syncState() {
	switch {
	case l.ItemID == "":
		l.State = RowEmpty
	case l.UOMID == "":
		l.State = RowItemSelected
	default:
		if n, ok := l.Qty(); ok && n >= 1 {
			l.State = RowQuantified
		} else {
			l.State = RowPriced
		}
	}
}

// baseUnits is the row's quantity expressed in base units, zero when it cannot be priced yet.
func (l LineItem) baseUnits(snap *StockSnapshot) decimal.Decimal {
	n, ok := l.Qty()
	if !ok || l.UOMID == "" {
		return decimal.Zero
	}
	f, ok := snap.factor(l.ItemID, l.UOMID, l)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromInt(n).Mul(f)
}

func cloneLines(rows []LineItem) []LineItem {
	out := make([]LineItem, len(rows))
	for i, r := range rows {
		r.UOMOptions = append([]UOMOption(nil), r.UOMOptions...)
		out[i] = r
	}
	return out
}
