package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mikelcalvo/distributor-cli/internal/erp"
	"github.com/mikelcalvo/distributor-cli/internal/ledger"
	"github.com/mikelcalvo/distributor-cli/internal/txn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#333333")).
			Padding(0, 1)

	vpnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	internetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF9500")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	creditStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(1, 2)

	headerCellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Bold(true)

	submittedBadge = lipgloss.NewStyle().
			Background(lipgloss.Color("#04B575")).
			Foreground(lipgloss.Color("#FFF")).
			Padding(0, 1)

	draftBadge = lipgloss.NewStyle().
			Background(lipgloss.Color("#FFA500")).
			Foreground(lipgloss.Color("#000")).
			Padding(0, 1)

	notificationSuccess = lipgloss.NewStyle().
				Background(lipgloss.Color("#04B575")).
				Foreground(lipgloss.Color("#FFF")).
				Padding(0, 1).
				Bold(true)

	notificationInfo = lipgloss.NewStyle().
				Background(lipgloss.Color("#7D56F4")).
				Foreground(lipgloss.Color("#FFF")).
				Padding(0, 1)

	notificationError = lipgloss.NewStyle().
				Background(lipgloss.Color("#FF4444")).
				Foreground(lipgloss.Color("#FFF")).
				Padding(0, 1).
				Bold(true)

	breadcrumbStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

// View represents different screens
type View int

const (
	ViewMain View = iota
	ViewLines
	ViewPicker
	ViewInput
)

// MenuItem for the main menu
type MenuItem struct {
	title       string
	description string
	kind        ledger.Kind
}

func (i MenuItem) Title() string       { return i.title }
func (i MenuItem) Description() string { return i.description }
func (i MenuItem) FilterValue() string { return i.title }

// ListItem is one choice in a picker
type ListItem struct {
	id      string
	name    string
	details string
}

func (i ListItem) Title() string       { return i.name }
func (i ListItem) Description() string { return i.details }
func (i ListItem) FilterValue() string { return i.name + " " + i.id }

// Backend is the part of the ERP the TUI talks to.
type Backend interface {
	txn.Gateway
	ListWarehouses(ctx context.Context) ([]erp.Warehouse, error)
	ListCustomers(ctx context.Context) ([]erp.Customer, error)
}

// Settings configures a Model.
type Settings struct {
	Brand         string
	Mode          string
	URL           string
	Log           logrus.FieldLogger
	Metrics       *erp.Metrics
	VATRate       decimal.Decimal
	StockDebounce time.Duration
	QtyDebounce   time.Duration
	// NoticeTTL is how long a notification stays up. Zero means 3s.
	NoticeTTL time.Duration
	// Context bounds every backend call. Nil means context.Background().
	Context context.Context
}

// Model is the main TUI model
type Model struct {
	backend  Backend
	settings Settings
	ctx      context.Context

	view     View
	prevView View
	width    int
	height   int
	mainMenu list.Model
	picker   list.Model
	pickFor  pickTarget
	input    textinput.Model
	inputFor inputTarget

	page       *txn.Controller
	cursor     int
	warehouses []erp.Warehouse
	customers  []erp.Customer
	lookupsOK  bool

	message          string
	messageType      string
	loading          bool
	spinner          spinner.Model
	breadcrumbs      []string
	notification     string
	notificationType string
	showNotification bool
	noticeSeq        int
}

// Messages
type lookupsMsg struct {
	warehouses []erp.Warehouse
	customers  []erp.Customer
	err        error
}

type codeMsg struct {
	page *txn.Controller
	code erp.Code
	err  error
}

type stockTickMsg struct {
	page   *txn.Controller
	ticket ledger.Ticket
}

type stockLoadedMsg struct {
	page *txn.Controller
	req  txn.StockRequest
	snap *ledger.StockSnapshot
	err  error
}

type batchTickMsg struct {
	page   *txn.Controller
	ticket ledger.Ticket
}

type batchLoadedMsg struct {
	page    *txn.Controller
	req     ledger.BatchRequest
	batches []ledger.Batch
	err     error
}

type submittedMsg struct {
	page *txn.Controller
	res  *erp.CreateResult
	err  error
}

type exportedMsg struct {
	path string
	err  error
}

type importReadMsg struct {
	page *txn.Controller
	path string
	data []byte
	err  error
}

type clearNotificationMsg struct {
	seq int
}

// NewModel creates the TUI model
func NewModel(backend Backend, settings Settings) Model {
	if settings.Log == nil {
		settings.Log = erp.DiscardLogger()
	}
	if settings.NoticeTTL <= 0 {
		settings.NoticeTTL = 3 * time.Second
	}
	if settings.Brand == "" {
		settings.Brand = "Distributor ERP"
	}

	menuItems := make([]list.Item, 0, len(ledger.Kinds))
	for _, k := range ledger.Kinds {
		menuItems = append(menuItems, MenuItem{k.Title(), menuDescriptions[k], k})
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	mainMenu := list.New(menuItems, delegate, 0, 0)
	mainMenu.Title = settings.Brand
	mainMenu.SetShowStatusBar(false)
	mainMenu.SetFilteringEnabled(false)
	mainMenu.Styles.Title = titleStyle

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	ctx := settings.Context
	if ctx == nil {
		ctx = context.Background()
	}

	return Model{
		backend:     backend,
		settings:    settings,
		ctx:         ctx,
		view:        ViewMain,
		mainMenu:    mainMenu,
		spinner:     s,
		breadcrumbs: []string{"Main"},
	}
}

var menuDescriptions = map[ledger.Kind]string{
	ledger.KindOrder:    "Take a customer order against warehouse stock",
	ledger.KindDelivery: "Ship goods for a delivery reference",
	ledger.KindInvoice:  "Bill a customer, VAT on top",
	ledger.KindReturn:   "Take goods back by expiry and batch",
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.page != nil {
				m.page.Close()
			}
			return m, tea.Quit
		}
		switch m.view {
		case ViewMain:
			return m.updateMain(msg)
		case ViewLines:
			m.message = ""
			m.messageType = ""
			return m.updateLines(msg)
		case ViewPicker:
			return m.updatePicker(msg)
		case ViewInput:
			return m.updateInput(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.mainMenu.SetSize(msg.Width-4, msg.Height-8)
		if m.picker.Items() != nil {
			m.picker.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case lookupsMsg:
		if msg.err != nil {
			m.message = "Could not load warehouses and customers: " + msg.err.Error()
			m.messageType = "error"
			return m, nil
		}
		m.warehouses = msg.warehouses
		m.customers = msg.customers
		m.lookupsOK = true
		return m, nil

	case codeMsg:
		if msg.page != m.page {
			return m, nil
		}
		m.loading = false
		cmd := m.notify(m.page.ApplyCode(msg.code, msg.err))
		return m, cmd

	case stockTickMsg:
		if msg.page != m.page {
			return m, nil
		}
		req, ok := m.page.BeginStock(msg.ticket)
		if !ok {
			return m, nil
		}
		return m, m.fetchStock(m.page, req)

	case stockLoadedMsg:
		if msg.page != m.page {
			m.settings.Metrics.StaleDiscarded("stock")
			return m, nil
		}
		notice, ok := m.page.ApplyStock(msg.req, msg.snap, msg.err)
		if !ok {
			return m, nil
		}
		m.clampCursor()
		cmd := m.notify(notice)
		return m, cmd

	case batchTickMsg:
		if msg.page != m.page {
			return m, nil
		}
		req, ok := m.page.BeginBatch(msg.ticket)
		if !ok {
			return m, nil
		}
		return m, m.fetchBatches(m.page, req)

	case batchLoadedMsg:
		if msg.page != m.page {
			m.settings.Metrics.StaleDiscarded("batch")
			return m, nil
		}
		notice, ok := m.page.ApplyBatch(msg.req, msg.batches, msg.err)
		if !ok {
			return m, nil
		}
		cmd := m.notify(notice)
		return m, cmd

	case submittedMsg:
		if msg.page != m.page {
			return m, nil
		}
		m.loading = false
		cmd := m.notify(m.page.CompleteSubmit(msg.res, msg.err))
		return m, cmd

	case exportedMsg:
		if msg.err != nil {
			m.message = "Export failed: " + msg.err.Error()
			m.messageType = "error"
			return m, nil
		}
		cmd := m.notify(txn.Notice{Level: txn.NoticeSuccess, Text: "Exported to " + msg.path})
		return m, cmd

	case importReadMsg:
		if msg.page != m.page {
			return m, nil
		}
		return m.applyImport(msg)

	case clearNotificationMsg:
		if msg.seq == m.noticeSeq {
			m.showNotification = false
			m.notification = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.view {
	case ViewMain:
		m.mainMenu, cmd = m.mainMenu.Update(msg)
	case ViewPicker:
		m.picker, cmd = m.picker.Update(msg)
	case ViewInput:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "enter":
		item, ok := m.mainMenu.SelectedItem().(MenuItem)
		if !ok {
			return m, nil
		}
		return m.openPage(item.kind)
	}
	var cmd tea.Cmd
	m.mainMenu, cmd = m.mainMenu.Update(msg)
	return m, cmd
}

// openPage starts a fresh transaction page.
func (m Model) openPage(kind ledger.Kind) (tea.Model, tea.Cmd) {
	opts := []txn.Option{
		txn.WithLogger(m.settings.Log),
		txn.WithMetrics(m.settings.Metrics),
	}
	if !m.settings.VATRate.IsZero() {
		opts = append(opts, txn.WithVATRate(m.settings.VATRate))
	}
	if m.settings.StockDebounce > 0 && m.settings.QtyDebounce > 0 {
		opts = append(opts, txn.WithDebounce(m.settings.StockDebounce, m.settings.QtyDebounce))
	}
	page, err := txn.New(kind, m.backend, opts...)
	if err != nil {
		m.message = err.Error()
		m.messageType = "error"
		return m, nil
	}

	m.page = page
	m.cursor = 0
	m.view = ViewLines
	m.loading = true
	m.breadcrumbs = []string{"Main", kind.Title()}

	cmds := []tea.Cmd{m.reserveCode(page)}
	if !m.lookupsOK {
		cmds = append(cmds, m.loadLookups())
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) closePage() {
	if m.page != nil {
		m.page.Close()
	}
	m.page = nil
	m.cursor = 0
	m.loading = false
	m.view = ViewMain
	m.breadcrumbs = []string{"Main"}
}

// notify shows a notice and schedules its dismissal.
func (m *Model) notify(n txn.Notice) tea.Cmd {
	if n.Text == "" {
		return nil
	}
	m.noticeSeq++
	m.notification = n.Text
	m.notificationType = n.Level
	m.showNotification = true
	seq := m.noticeSeq
	return tea.Tick(m.settings.NoticeTTL, func(time.Time) tea.Msg {
		return clearNotificationMsg{seq}
	})
}

func (m *Model) fail(err error) {
	m.message = err.Error()
	m.messageType = "error"
}

func (m *Model) clampCursor() {
	if m.page == nil {
		m.cursor = 0
		return
	}
	if n := m.page.Engine().Len(); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content string
	switch m.view {
	case ViewMain:
		content = m.mainMenu.View()
	case ViewLines:
		content = m.renderLines()
	case ViewPicker:
		content = m.picker.View()
	case ViewInput:
		content = m.renderInput()
	}

	var b strings.Builder

	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.renderBreadcrumbs())
	b.WriteString("\n")

	if m.showNotification {
		switch m.notificationType {
		case txn.NoticeSuccess:
			b.WriteString(notificationSuccess.Render("✓ " + m.notification))
		case txn.NoticeError:
			b.WriteString(notificationError.Render("✗ " + m.notification))
		default:
			b.WriteString(notificationInfo.Render(m.notification))
		}
		b.WriteString("\n")
	}

	b.WriteString(content)

	if m.message != "" {
		b.WriteString("\n\n")
		if m.messageType == "error" {
			b.WriteString(errorStyle.Render("Error: " + m.message))
		} else {
			b.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())
	b.WriteString("\n")
	b.WriteString(m.renderCredits())

	return b.String()
}

func (m Model) renderStatusBar() string {
	var mode string
	if m.settings.Mode == "vpn" {
		mode = vpnStyle.Render("● VPN")
	} else {
		mode = internetStyle.Render("● Internet")
	}
	status := fmt.Sprintf(" %s | %s | %s ", m.settings.Brand, mode, m.settings.URL)
	return statusBarStyle.Render(status)
}

func (m Model) renderBreadcrumbs() string {
	if len(m.breadcrumbs) == 0 {
		return ""
	}
	return breadcrumbStyle.Render("  " + strings.Join(m.breadcrumbs, " > "))
}

func (m Model) renderHelp() string {
	var help string
	switch m.view {
	case ViewMain:
		help = "↑/↓: navigate • enter: open • q: quit"
	case ViewLines:
		help = "↑/↓: row • a: add • d: delete • i: item • u: unit • enter: qty • p: price • w: warehouse • c: customer • o: date • n: note"
		switch m.page.Kind() {
		case ledger.KindDelivery:
			help += " • f: delivery"
		case ledger.KindReturn:
			help += " • e: expiry • t: return type • r: reason"
		}
		help += " • s: submit • x: export • m: import • esc: back"
	case ViewPicker:
		help = "↑/↓: navigate • /: search • enter: select • esc: cancel"
	case ViewInput:
		help = "enter: apply • esc: cancel"
	}
	return helpStyle.Render(help)
}

func (m Model) renderCredits() string {
	return creditStyle.Render(fmt.Sprintf("Created by %s in %s • v%s", erp.Author, erp.Year, erp.Version))
}

// RunTUI starts the TUI. Cancelling ctx stops the program and its requests.
func RunTUI(ctx context.Context, client *erp.Client) error {
	cfg := client.Config
	p := tea.NewProgram(NewModel(client, Settings{
		Brand:         cfg.Brand,
		Mode:          client.Mode,
		URL:           client.ActiveURL,
		Log:           client.Log,
		Metrics:       client.Metrics,
		VATRate:       cfg.VATRate,
		StockDebounce: cfg.StockDebounce,
		QtyDebounce:   cfg.QtyDebounce,
		Context:       ctx,
	}), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
