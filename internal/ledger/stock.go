package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StockEntry is one item's stock in a warehouse, with its selling units.
type StockEntry struct {
	ItemID    string
	Code      string
	ERPCode   string
	Name      string
	TotalBase decimal.Decimal
	UOMs      []UOMOption
}

// Label is the display string persisted on a row when the item is picked.
func (e StockEntry) Label() string {
	if e.Code == "" {
		return e.Name
	}
	return fmt.Sprintf("%s - %s", e.Code, e.Name)
}

// StockSnapshot is a read-only view of one warehouse's stock. A new warehouse
// fetch builds a new snapshot; existing ones are never patched.
type StockSnapshot struct {
	WarehouseID string
	items       map[string]StockEntry
	order       []string
}

// NewStockSnapshot indexes entries by item id. Later duplicates win.
func NewStockSnapshot(warehouseID string, entries []StockEntry) *StockSnapshot {
	s := &StockSnapshot{
		WarehouseID: warehouseID,
		items:       make(map[string]StockEntry, len(entries)),
	}
	for _, e := range entries {
		if e.ItemID == "" {
			continue
		}
		if _, seen := s.items[e.ItemID]; !seen {
			s.order = append(s.order, e.ItemID)
		}
		e.UOMs = append([]UOMOption(nil), e.UOMs...)
		s.items[e.ItemID] = e
	}
	return s
}

// Lookup returns the entry for an item. Safe on a nil snapshot.
func (s *StockSnapshot) Lookup(itemID string) (StockEntry, bool) {
	if s == nil {
		return StockEntry{}, false
	}
	e, ok := s.items[itemID]
	if !ok {
		return StockEntry{}, false
	}
	e.UOMs = append([]UOMOption(nil), e.UOMs...)
	return e, true
}

// Entries returns all items in fetch order.
func (s *StockSnapshot) Entries() []StockEntry {
	if s == nil {
		return nil
	}
	out := make([]StockEntry, 0, len(s.order))
	for _, id := range s.order {
		e, _ := s.Lookup(id)
		out = append(out, e)
	}
	return out
}

func (s *StockSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// factor resolves a UOM's conversion factor, preferring the snapshot and falling
// back to the options captured on the row.
func (s *StockSnapshot) factor(itemID, uomID string, row LineItem) (decimal.Decimal, bool) {
	if e, ok := s.Lookup(itemID); ok {
		for _, u := range e.UOMs {
			if u.ID == uomID {
				return positiveFactor(u.Factor), true
			}
		}
	}
	if o, ok := row.option(uomID); ok {
		return positiveFactor(o.Factor), true
	}
	return decimal.Zero, false
}

func positiveFactor(f decimal.Decimal) decimal.Decimal {
	if f.Sign() <= 0 {
		return one
	}
	return f
}

// AvailableFor computes how many units of its own UOM row idx may still take,
// after the base units allocated to every other row of the same item.
// ok is false when the row has no item or UOM yet.
func AvailableFor(rows []LineItem, idx int, snap *StockSnapshot) (decimal.Decimal, bool) {
	if idx < 0 || idx >= len(rows) {
		return decimal.Zero, false
	}
	row := rows[idx]
	if row.ItemID == "" || row.UOMID == "" {
		return decimal.Zero, false
	}
	entry, ok := snap.Lookup(row.ItemID)
	if !ok {
		return decimal.Zero, true
	}
	factor, ok := snap.factor(row.ItemID, row.UOMID, row)
	if !ok {
		return decimal.Zero, false
	}

	used := decimal.Zero
	for j, other := range rows {
		if j == idx || other.ItemID != row.ItemID {
			continue
		}
		used = used.Add(other.baseUnits(snap))
	}

	avail := entry.TotalBase.Sub(used).Div(factor).Floor()
	if avail.Sign() < 0 {
		return decimal.Zero, true
	}
	return avail, true
}

// Rebalance recomputes Available for every row of itemID (all items when empty)
// and clamps quantities that exceed it. The focus row, normally the one just
// edited, is clamped first so an earlier row keeps its allocation. Returns the
// indexes of rows whose quantity was clamped.
func Rebalance(p Policy, rows []LineItem, snap *StockSnapshot, itemID string, focus int) []int {
	var clamped []int
	for _, id := range itemsInScope(rows, itemID) {
		if _, ok := snap.Lookup(id); !ok {
			for i := range rows {
				if rows[i].ItemID == id {
					rows[i].Available = decimal.NewNullDecimal(decimal.Zero)
				}
			}
			continue
		}

		for _, i := range clampOrder(rows, id, focus) {
			avail, ok := AvailableFor(rows, i, snap)
			if !ok {
				continue
			}
			n, ok := rows[i].Qty()
			if !ok || !decimal.NewFromInt(n).GreaterThan(avail) {
				continue
			}
			rows[i].Quantity = avail.String()
			p.reprice(&rows[i])
			clamped = append(clamped, i)
		}

		for i := range rows {
			if rows[i].ItemID != id {
				continue
			}
			if avail, ok := AvailableFor(rows, i, snap); ok {
				rows[i].Available = decimal.NewNullDecimal(avail)
			} else {
				rows[i].Available = decimal.NullDecimal{}
			}
		}
	}
	return clamped
}

func itemsInScope(rows []LineItem, itemID string) []string {
	if itemID != "" {
		return []string{itemID}
	}
	seen := make(map[string]bool)
	var ids []string
	for _, r := range rows {
		if r.ItemID == "" || seen[r.ItemID] {
			continue
		}
		seen[r.ItemID] = true
		ids = append(ids, r.ItemID)
	}
	return ids
}

func clampOrder(rows []LineItem, itemID string, focus int) []int {
	var order []int
	if focus >= 0 && focus < len(rows) && rows[focus].ItemID == itemID {
		order = append(order, focus)
	}
	for i, r := range rows {
		if i != focus && r.ItemID == itemID {
			order = append(order, i)
		}
	}
	return order
}
