package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mikelcalvo/distributor-cli/internal/ledger"
)

type pickTarget int

const (
	pickWarehouse pickTarget = iota
	pickCustomer
	pickItem
	pickUOM
	pickReturnType
	pickReturnReason
)

var pickTitles = map[pickTarget]string{
	pickWarehouse:    "Warehouse",
	pickCustomer:     "Customer",
	pickItem:         "Item",
	pickUOM:          "Unit",
	pickReturnType:   "Return Type",
	pickReturnReason: "Return Reason",
}

type inputTarget int

const (
	inputQuantity inputTarget = iota
	inputPrice
	inputExpiry
	inputDate
	inputNote
	inputDelivery
	inputExport
	inputImport
)

var inputLabels = map[inputTarget]string{
	inputQuantity: "Quantity",
	inputPrice:    "Unit price",
	inputExpiry:   "Expiry date (YYYY-MM-DD)",
	inputDate:     "Date (YYYY-MM-DD)",
	inputNote:     "Note",
	inputDelivery: "Delivery reference",
	inputExport:   "Export to file",
	inputImport:   "Import from file",
}

// pickerItems builds the choices for a picker
func (m Model) pickerItems(target pickTarget) []ListItem {
	var items []ListItem
	eng := m.page.Engine()

	switch target {
	case pickWarehouse:
		for _, w := range m.warehouses {
			items = append(items, ListItem{id: w.ID, name: w.Name, details: w.ID})
		}
	case pickCustomer:
		for _, c := range m.customers {
			items = append(items, ListItem{id: c.ID, name: c.Name, details: c.Code})
		}
	case pickItem:
		for _, e := range m.page.Snapshot().Entries() {
			left, _ := eng.Remaining(e.ItemID)
			items = append(items, ListItem{
				id:      e.ItemID,
				name:    e.Label(),
				details: fmt.Sprintf("%s base units left", left),
			})
		}
	case pickUOM:
		row, err := eng.Row(m.cursor)
		if err != nil {
			return nil
		}
		for _, o := range row.UOMOptions {
			items = append(items, ListItem{
				id:      o.ID,
				name:    o.Label,
				details: fmt.Sprintf("x%s • %s", o.Factor, o.UnitPrice.StringFixed(2)),
			})
		}
	case pickReturnType:
		items = append(items,
			ListItem{id: ledger.ReturnGood, name: "Good", details: "Resaleable stock"},
			ListItem{id: ledger.ReturnBad, name: "Bad", details: "Damaged or expired stock"},
		)
	case pickReturnReason:
		row, err := eng.Row(m.cursor)
		if err != nil {
			return nil
		}
		for _, r := range ledger.ReturnReasons(row.ReturnType) {
			items = append(items, ListItem{id: r, name: strings.ReplaceAll(r, "_", " ")})
		}
	}
	return items
}

// openPicker switches to a list of choices for target
func (m *Model) openPicker(target pickTarget) {
	choices := m.pickerItems(target)
	items := make([]list.Item, len(choices))
	for i, c := range choices {
		items[i] = c
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	m.picker = list.New(items, delegate, m.width-4, m.height-8)
	m.picker.Title = pickTitles[target]
	m.picker.SetShowStatusBar(true)
	m.picker.SetFilteringEnabled(target == pickItem || target == pickCustomer || target == pickWarehouse)
	m.picker.Styles.Title = titleStyle

	m.pickFor = target
	m.prevView = m.view
	m.view = ViewPicker
	m.breadcrumbs = append(m.breadcrumbs[:2:2], pickTitles[target])
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.picker.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "esc":
		m.backToLines()
		return m, nil
	case "enter":
		item, ok := m.picker.SelectedItem().(ListItem)
		m.backToLines()
		if !ok {
			return m, nil
		}
		cmd := m.applyPick(item.id)
		return m, cmd
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	return m, cmd
}

// applyPick routes a picked id to the header or the current row
func (m *Model) applyPick(id string) tea.Cmd {
	page := m.page
	switch m.pickFor {
	case pickWarehouse:
		return m.applyHeader(page.SetWarehouse(id))
	case pickCustomer:
		return m.applyHeader(page.SetCustomer(id))
	case pickItem:
		return m.applyUpdate(page.UpdateField(m.cursor, ledger.FieldItem, id))
	case pickUOM:
		return m.applyUpdate(page.UpdateField(m.cursor, ledger.FieldUOM, id))
	case pickReturnType:
		return m.applyUpdate(page.UpdateField(m.cursor, ledger.FieldReturnType, id))
	case pickReturnReason:
		return m.applyUpdate(page.UpdateField(m.cursor, ledger.FieldReturnReason, id))
	}
	return nil
}

// openInput switches to a single text field prefilled with value
func (m *Model) openInput(target inputTarget, value string) {
	m.input = textinput.New()
	m.input.Placeholder = inputLabels[target]
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
	if target == inputNote {
		m.input.CharLimit = 500
	}

	m.inputFor = target
	m.prevView = m.view
	m.view = ViewInput
	m.breadcrumbs = append(m.breadcrumbs[:2:2], inputLabels[target])
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.backToLines()
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		m.backToLines()
		return m.applyInput(value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyInput routes an entered value to the header, the current row or a file action
func (m Model) applyInput(value string) (tea.Model, tea.Cmd) {
	page := m.page
	switch m.inputFor {
	case inputQuantity:
		cmd := m.applyUpdate(page.UpdateField(m.cursor, ledger.FieldQuantity, value))
		return m, cmd
	case inputPrice:
		cmd := m.applyUpdate(page.UpdateField(m.cursor, ledger.FieldUnitPrice, value))
		return m, cmd
	case inputExpiry:
		cmd := m.applyUpdate(page.UpdateField(m.cursor, ledger.FieldExpiry, value))
		return m, cmd
	case inputDate:
		if err := page.SetDate(value); err != nil {
			m.fail(err)
		}
	case inputNote:
		if err := page.SetNote(value); err != nil {
			m.fail(err)
		}
	case inputDelivery:
		cmd := m.applyHeader(page.SetDeliveryRef(value))
		return m, cmd
	case inputExport:
		if value == "" {
			return m, nil
		}
		return m.exportPage(value)
	case inputImport:
		if value == "" {
			return m, nil
		}
		return m, readFile(page, value)
	}
	return m, nil
}

func (m *Model) backToLines() {
	m.view = ViewLines
	if len(m.breadcrumbs) > 2 {
		m.breadcrumbs = m.breadcrumbs[:2]
	}
}

// renderInput renders the single-field form
func (m Model) renderInput() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" "+inputLabels[m.inputFor]+" ") + "\n\n")
	if m.inputFor == inputQuantity || m.inputFor == inputPrice || m.inputFor == inputExpiry {
		if row, err := m.page.Engine().Row(m.cursor); err == nil && row.ItemLabel != "" {
			b.WriteString(fmt.Sprintf("  Line %d: %s\n\n", m.cursor+1, row.ItemLabel))
		}
	}
	b.WriteString("  " + m.input.View() + "\n")
	return boxStyle.Render(b.String())
}
