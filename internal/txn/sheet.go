package txn

import (
	"fmt"
	"io"
	"strings"

	"github.com/mikelcalvo/distributor-cli/internal/ledger"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	linesSheet   = "Lines"
	summarySheet = "Summary"
)

var lineColumns = []string{
	"item_code", "item_name", "uom", "quantity", "unit_price", "total", "vat", "net",
	"available", "expiry_date", "batch_number", "return_type", "return_reason",
}

// ExportXLSX writes the lines and a summary sheet. The Lines sheet can be read back by ImportLines.
func (c *Controller) ExportXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), linesSheet); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	header := make([]interface{}, len(lineColumns))
	for i, col := range lineColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(linesSheet, "A1", &header); err != nil {
		return fmt.Errorf("export header: %w", err)
	}

	snap := c.engine.Snapshot()
	row := 2
	for _, r := range c.engine.Rows() {
		if r.IsBlank() {
			continue
		}
		code := r.ItemID
		if e, ok := snap.Lookup(r.ItemID); ok && e.Code != "" {
			code = e.Code
		}
		qty, _ := r.Qty()
		available := ""
		if r.Available.Valid {
			available = r.Available.Decimal.String()
		}
		excelRow := []interface{}{
			code,
			r.ItemLabel,
			r.UOMID,
			qty,
			r.UnitPrice.InexactFloat64(),
			r.Total.InexactFloat64(),
			r.VAT.InexactFloat64(),
			r.Net.InexactFloat64(),
			available,
			r.ExpiryDate,
			r.BatchNumber,
			r.ReturnType,
			r.ReturnReason,
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := f.SetSheetRow(linesSheet, cell, &excelRow); err != nil {
			return fmt.Errorf("export row %d: %w", row, err)
		}
		row++
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("export summary: %w", err)
	}
	t := c.engine.Totals()
	h := c.header
	summary := [][]interface{}{
		{"type", c.kind.Title()},
		{"code", h.Code},
		{"warehouse", h.WarehouseID},
		{"customer", h.CustomerID},
		{"delivery", h.DeliveryRef},
		{"date", h.Date},
		{"note", h.Note},
		{"gross_total", t.Gross.InexactFloat64()},
		{"total_vat", t.VAT.InexactFloat64()},
		{"net_amount", t.Net.InexactFloat64()},
		{"final_total", t.Final.InexactFloat64()},
	}
	for i, pair := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &pair); err != nil {
			return fmt.Errorf("export summary: %w", err)
		}
	}

	if idx, err := f.GetSheetIndex(linesSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	return f.Write(w)
}

type fieldValue struct {
	field ledger.Field
	value string
}

// ImportSkip records a sheet row that was not applied.
type ImportSkip struct {
	Line   int
	Reason string
}

// ImportReport summarizes an ImportLines run.
type ImportReport struct {
	Imported int
	Clamped  int
	Skipped  []ImportSkip
	// Tickets are batch lookups the host should schedule.
	Tickets []ledger.Ticket
}

// ImportLines appends lines from the active sheet of an XLSX workbook. Columns
// are matched by header name: item_code, uom and quantity are required;
// expiry_date, return_type and return_reason are optional. Each row goes
// through the same field updates as manual entry.
func (c *Controller) ImportLines(r io.Reader) (ImportReport, error) {
	var report ImportReport
	if err := c.guard(); err != nil {
		return report, err
	}
	snap := c.engine.Snapshot()
	if snap == nil || c.stockLoading {
		return report, ErrNoStock
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return report, fmt.Errorf("cannot read workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return report, fmt.Errorf("cannot read sheet: %w", err)
	}
	if len(rows) < 2 {
		return report, fmt.Errorf("sheet has no lines")
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"item_code", "uom", "quantity"} {
		if _, ok := cols[required]; !ok {
			return report, fmt.Errorf("missing column: %s", required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for n, row := range rows[1:] {
		line := n + 2
		code := cell(row, "item_code")
		if code == "" {
			continue
		}
		entry, ok := findItem(snap, code)
		if !ok {
			report.Skipped = append(report.Skipped, ImportSkip{line, fmt.Sprintf("item %s not stocked in %s", code, snap.WarehouseID)})
			continue
		}
		uom, ok := findUOM(entry, cell(row, "uom"))
		if !ok {
			report.Skipped = append(report.Skipped, ImportSkip{line, fmt.Sprintf("unit %q not offered for %s", cell(row, "uom"), code)})
			continue
		}

		idx, err := c.nextImportRow()
		if err != nil {
			return report, err
		}
		fields := []fieldValue{
			{ledger.FieldItem, entry.ItemID},
			{ledger.FieldUOM, uom},
			{ledger.FieldQuantity, cell(row, "quantity")},
		}
		if c.kind == ledger.KindReturn {
			fields = append(fields,
				fieldValue{ledger.FieldReturnType, cell(row, "return_type")},
				fieldValue{ledger.FieldReturnReason, cell(row, "return_reason")},
				fieldValue{ledger.FieldExpiry, cell(row, "expiry_date")},
			)
		}

		var last ledger.Update
		for _, fv := range fields {
			up, err := c.UpdateField(idx, fv.field, fv.value)
			if err != nil {
				return report, fmt.Errorf("line %d: %w", line, err)
			}
			report.Clamped += len(up.Clamped)
			last = up
		}
		if last.Debounce != nil {
			report.Tickets = append(report.Tickets, *last.Debounce)
		}
		report.Imported++
	}

	c.log.WithFields(logrus.Fields{
		"imported": report.Imported,
		"skipped":  len(report.Skipped),
	}).Info("lines imported")
	return report, nil
}

// nextImportRow reuses a blank row or appends one.
func (c *Controller) nextImportRow() (int, error) {
	for i, row := range c.engine.Rows() {
		if row.IsBlank() {
			return i, nil
		}
	}
	return c.engine.AddRow()
}

func findItem(snap *ledger.StockSnapshot, code string) (ledger.StockEntry, bool) {
	if e, ok := snap.Lookup(code); ok {
		return e, true
	}
	for _, e := range snap.Entries() {
		if strings.EqualFold(e.Code, code) || strings.EqualFold(e.ERPCode, code) {
			return e, true
		}
	}
	return ledger.StockEntry{}, false
}

func findUOM(e ledger.StockEntry, uom string) (string, bool) {
	for _, u := range e.UOMs {
		if strings.EqualFold(u.ID, uom) || strings.EqualFold(u.Label, uom) {
			return u.ID, true
		}
	}
	return "", false
}
