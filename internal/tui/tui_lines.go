package tui

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mikelcalvo/distributor-cli/internal/ledger"
	"github.com/mikelcalvo/distributor-cli/internal/txn"
	"github.com/shopspring/decimal"
)

// updateLines handles keys on the transaction page
func (m Model) updateLines(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := m.page
	eng := page.Engine()

	switch msg.String() {
	case "esc", "q":
		m.closePage()
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < eng.Len()-1 {
			m.cursor++
		}

	case "a":
		idx, err := page.AddRow()
		if err != nil {
			m.fail(err)
			return m, nil
		}
		m.cursor = idx

	case "d", "delete":
		if err := page.RemoveRow(m.cursor); err != nil {
			m.fail(err)
			return m, nil
		}
		m.clampCursor()

	case "w":
		if !m.lookupsOK {
			m.fail(errors.New("warehouses are still loading"))
			return m, m.loadLookups()
		}
		m.openPicker(pickWarehouse)
	case "c":
		if !m.lookupsOK {
			m.fail(errors.New("customers are still loading"))
			return m, m.loadLookups()
		}
		m.openPicker(pickCustomer)
	case "f":
		if page.Kind() == ledger.KindDelivery {
			m.openInput(inputDelivery, page.Header().DeliveryRef)
		}
	case "o":
		m.openInput(inputDate, page.Header().Date)
	case "n":
		m.openInput(inputNote, page.Header().Note)

	case "i":
		if page.Snapshot() == nil || page.StockLoading() {
			m.fail(txn.ErrNoStock)
			return m, nil
		}
		m.openPicker(pickItem)
	case "u":
		row, err := eng.Row(m.cursor)
		if err != nil || row.ItemID == "" {
			m.fail(errors.New("pick an item first"))
			return m, nil
		}
		m.openPicker(pickUOM)
	case "enter":
		if row, err := eng.Row(m.cursor); err == nil {
			m.openInput(inputQuantity, row.Quantity)
		}
	case "p":
		if row, err := eng.Row(m.cursor); err == nil {
			m.openInput(inputPrice, row.UnitPrice.StringFixed(2))
		}

	case "e":
		if page.Kind() == ledger.KindReturn {
			if row, err := eng.Row(m.cursor); err == nil {
				m.openInput(inputExpiry, row.ExpiryDate)
			}
		}
	case "t":
		if page.Kind() == ledger.KindReturn {
			m.openPicker(pickReturnType)
		}
	case "r":
		if page.Kind() == ledger.KindReturn {
			row, err := eng.Row(m.cursor)
			if err != nil || row.ReturnType == "" {
				m.fail(errors.New("choose a return type first"))
				return m, nil
			}
			m.openPicker(pickReturnReason)
		}

	case "s":
		if m.loading || page.Submitting() {
			return m, nil
		}
		return m.submitPage()
	case "x":
		name := page.Header().Code
		if name == "" {
			name = string(page.Kind())
		}
		m.openInput(inputExport, name+".xlsx")
	case "m":
		m.openInput(inputImport, "")
	}
	return m, nil
}

// applyUpdate reports the outcome of a row edit and schedules its batch lookup.
func (m *Model) applyUpdate(up ledger.Update, err error) tea.Cmd {
	if err != nil {
		m.fail(err)
		return nil
	}
	var cmds []tea.Cmd
	if n := len(up.Clamped); n > 0 {
		cmds = append(cmds, m.notify(txn.Notice{
			Level: txn.NoticeInfo,
			Text:  fmt.Sprintf("Reduced %d line(s) to the available stock", n),
		}))
	}
	if up.Debounce != nil {
		cmds = append(cmds, waitBatch(m.page, *up.Debounce))
	}
	return tea.Batch(cmds...)
}

// applyHeader schedules the stock fetch a header change asked for.
func (m *Model) applyHeader(t *ledger.Ticket, err error) tea.Cmd {
	if err != nil {
		m.fail(err)
		return nil
	}
	m.clampCursor()
	if t == nil {
		return nil
	}
	return waitStock(m.page, *t)
}

func (m Model) submitPage() (tea.Model, tea.Cmd) {
	p, err := m.page.BeginSubmit()
	if err != nil {
		m.fail(err)
		var verr *txn.ValidationError
		if errors.As(err, &verr) {
			for i := 0; i < m.page.Engine().Len(); i++ {
				if _, bad := verr.Rows[i]; bad {
					m.cursor = i
					break
				}
			}
		}
		return m, nil
	}
	m.loading = true
	return m, m.submit(m.page, p)
}

func (m Model) applyImport(msg importReadMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.fail(fmt.Errorf("cannot read %s: %w", msg.path, msg.err))
		return m, nil
	}
	report, err := m.page.ImportLines(bytes.NewReader(msg.data))
	if err != nil {
		m.fail(err)
		return m, nil
	}

	cmds := []tea.Cmd{m.notify(txn.Notice{
		Level: txn.NoticeSuccess,
		Text:  fmt.Sprintf("Imported %d line(s) from %s", report.Imported, filepath.Base(msg.path)),
	})}
	for _, t := range report.Tickets {
		cmds = append(cmds, waitBatch(m.page, t))
	}
	if len(report.Skipped) > 0 {
		reasons := make([]string, 0, len(report.Skipped))
		for _, s := range report.Skipped {
			reasons = append(reasons, fmt.Sprintf("line %d: %s", s.Line, s.Reason))
		}
		m.fail(fmt.Errorf("skipped %d line(s): %s", len(report.Skipped), strings.Join(reasons, "; ")))
	}
	m.clampCursor()
	return m, tea.Batch(cmds...)
}

func (m Model) exportPage(path string) (tea.Model, tea.Cmd) {
	var buf bytes.Buffer
	if err := m.page.ExportXLSX(&buf); err != nil {
		m.fail(err)
		return m, nil
	}
	return m, writeFile(path, buf.Bytes())
}

func (m Model) loadLookups() tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		warehouses, err := backend.ListWarehouses(ctx)
		if err != nil {
			return lookupsMsg{err: err}
		}
		customers, err := backend.ListCustomers(ctx)
		if err != nil {
			return lookupsMsg{err: err}
		}
		return lookupsMsg{warehouses: warehouses, customers: customers}
	}
}

func (m Model) reserveCode(page *txn.Controller) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		code, err := page.ReserveCode(ctx)
		return codeMsg{page, code, err}
	}
}

func waitStock(page *txn.Controller, t ledger.Ticket) tea.Cmd {
	return tea.Tick(t.Delay, func(time.Time) tea.Msg {
		return stockTickMsg{page, t}
	})
}

func (m Model) fetchStock(page *txn.Controller, req txn.StockRequest) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		snap, err := page.FetchStock(ctx, req)
		return stockLoadedMsg{page, req, snap, err}
	}
}

func waitBatch(page *txn.Controller, t ledger.Ticket) tea.Cmd {
	return tea.Tick(t.Delay, func(time.Time) tea.Msg {
		return batchTickMsg{page, t}
	})
}

func (m Model) fetchBatches(page *txn.Controller, req ledger.BatchRequest) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		batches, err := page.FetchBatches(ctx, req)
		return batchLoadedMsg{page, req, batches, err}
	}
}

func (m Model) submit(page *txn.Controller, p txn.Payload) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		res, err := page.Submit(ctx, p)
		return submittedMsg{page, res, err}
	}
}

func writeFile(path string, data []byte) tea.Cmd {
	return func() tea.Msg {
		return exportedMsg{path, os.WriteFile(path, data, 0o644)}
	}
}

func readFile(page *txn.Controller, path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		return importReadMsg{page, path, data, err}
	}
}

// renderLines renders the transaction page
func (m Model) renderLines() string {
	page := m.page
	eng := page.Engine()
	h := page.Header()
	returns := page.Kind() == ledger.KindReturn

	var b strings.Builder

	title := page.Kind().Title()
	if h.Code != "" {
		title += " " + h.Code
	}
	b.WriteString(titleStyle.Render(" "+title+" ") + " ")
	if h.Submitted {
		b.WriteString(submittedBadge.Render("Submitted"))
	} else {
		b.WriteString(draftBadge.Render("Draft"))
	}
	if m.loading {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("  Warehouse: %s   Customer: %s   Date: %s\n",
		orDash(m.warehouseName(h.WarehouseID)), orDash(m.customerName(h.CustomerID)), orDash(h.Date)))
	if page.Kind() == ledger.KindDelivery {
		b.WriteString(fmt.Sprintf("  Delivery: %s\n", orDash(h.DeliveryRef)))
	}
	if h.Note != "" {
		b.WriteString(fmt.Sprintf("  Note: %s\n", h.Note))
	}
	switch {
	case page.StockLoading():
		b.WriteString(fmt.Sprintf("  %s Loading stock...\n", m.spinner.View()))
	case page.Snapshot() == nil:
		b.WriteString(helpStyle.Render("  Select a warehouse to load stock") + "\n")
	default:
		b.WriteString(helpStyle.Render(fmt.Sprintf("  %d items in stock", page.Snapshot().Len())) + "\n")
	}
	b.WriteString("\n")

	header := fmt.Sprintf("  %-3s %-26s %-8s %6s %10s %9s %11s %10s %11s",
		"#", "Item", "Unit", "Qty", "Price", "Avail", "Total", "VAT", "Net")
	if returns {
		header += fmt.Sprintf("  %-10s %-12s %-5s %-15s", "Expiry", "Batch", "Type", "Reason")
	}
	b.WriteString(headerCellStyle.Render(header) + "\n")

	for i, row := range eng.Rows() {
		line := fmt.Sprintf("%-3d %-26s %-8s %6s %10s %9s %11s %10s %11s",
			i+1,
			truncate(orDash(row.ItemLabel), 26),
			truncate(orDash(unitLabel(row)), 8),
			truncate(row.Quantity, 6),
			row.UnitPrice.StringFixed(2),
			availableLabel(row.Available),
			formatMoney(row.Total),
			formatMoney(row.VAT),
			formatMoney(row.Net),
		)
		if returns {
			batch := row.BatchNumber
			if row.Loading {
				batch = "..."
			}
			line += fmt.Sprintf("  %-10s %-12s %-5s %-15s",
				orDash(row.ExpiryDate), truncate(orDash(batch), 12), orDash(row.ReturnType), truncate(orDash(row.ReturnReason), 15))
		}

		errs := eng.Errors(i)
		switch {
		case i == m.cursor:
			b.WriteString(selectedStyle.Render("> " + line))
		case len(errs) > 0:
			b.WriteString(errorStyle.Render("! " + line))
		default:
			b.WriteString("  " + line)
		}
		b.WriteString("\n")

		if len(errs) > 0 {
			for _, f := range fieldOrder {
				if text, ok := errs[f]; ok {
					b.WriteString(errorStyle.Render("      "+text) + "\n")
				}
			}
		}
	}

	t := eng.Totals()
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Gross: %s   VAT: %s   Net: %s   ", formatMoney(t.Gross), formatMoney(t.VAT), formatMoney(t.Net)))
	b.WriteString(successStyle.Render("Final: " + formatMoney(t.Final)))

	return b.String()
}

var fieldOrder = []ledger.Field{
	ledger.FieldItem, ledger.FieldUOM, ledger.FieldQuantity, ledger.FieldUnitPrice,
	ledger.FieldExpiry, ledger.FieldBatch, ledger.FieldReturnType, ledger.FieldReturnReason,
}

func (m Model) warehouseName(id string) string {
	for _, w := range m.warehouses {
		if w.ID == id {
			return w.Name
		}
	}
	return id
}

func (m Model) customerName(id string) string {
	for _, c := range m.customers {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

func unitLabel(row ledger.LineItem) string {
	if o, ok := row.UOM(); ok {
		return o.Label
	}
	return row.UOMID
}

func availableLabel(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

// formatMoney formats an amount with thousand separators
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
