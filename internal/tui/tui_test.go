package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mikelcalvo/distributor-cli/internal/erp"
	"github.com/mikelcalvo/distributor-cli/internal/ledger"
	"github.com/mikelcalvo/distributor-cli/internal/txn"
	"github.com/shopspring/decimal"
)

// --- Mock backend ---

type MockBackend struct {
	batches   []ledger.Batch
	createErr error
	created   int
	saved     []string
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (b *MockBackend) FetchWarehouseStock(ctx context.Context, warehouseID string) (*ledger.StockSnapshot, error) {
	water := ledger.StockEntry{
		ItemID: "I", Code: "SKU-1", Name: "Water", TotalBase: d("100"),
		UOMs: []ledger.UOMOption{
			{ID: "PC", Label: "Piece", Type: ledger.UOMPrimary, UnitPrice: d("10"), Factor: d("1")},
			{ID: "CTN", Label: "Case", Type: ledger.UOMSecondary, UnitPrice: d("120"), Factor: d("12")},
		},
	}
	return ledger.NewStockSnapshot(warehouseID, []ledger.StockEntry{water}), nil
}

func (b *MockBackend) FetchItemBatches(ctx context.Context, q erp.BatchQuery) ([]ledger.Batch, error) {
	return b.batches, nil
}

func (b *MockBackend) CreateTransaction(ctx context.Context, kind ledger.Kind, payload interface{}) (*erp.CreateResult, error) {
	if b.createErr != nil {
		return nil, b.createErr
	}
	b.created++
	return &erp.CreateResult{ID: "42"}, nil
}

func (b *MockBackend) GenerateCode(ctx context.Context, model string) (erp.Code, error) {
	return erp.Code{Code: "SO-0001"}, nil
}

func (b *MockBackend) SaveFinalCode(ctx context.Context, code, model string) error {
	b.saved = append(b.saved, code)
	return nil
}

func (b *MockBackend) ListWarehouses(ctx context.Context) ([]erp.Warehouse, error) {
	return []erp.Warehouse{{ID: "W1", Name: "Main Depot"}}, nil
}

func (b *MockBackend) ListCustomers(ctx context.Context) ([]erp.Customer, error) {
	return []erp.Customer{{ID: "C1", Code: "CUST-1", Name: "Corner Shop"}}, nil
}

// --- Helpers ---

func newTestModel(b Backend) Model {
	m := NewModel(b, Settings{
		Brand:         "Test ERP",
		StockDebounce: time.Nanosecond,
		QtyDebounce:   time.Nanosecond,
		NoticeTTL:     time.Nanosecond,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	return next.(Model)
}

// run executes cmd and feeds every resulting message back into the model
// until nothing is left. Notification dismissals are dropped.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 100 {
			t.Fatal("commands did not settle")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, clearNotificationMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			next, more := m.Update(msg)
			m = next.(Model)
			queue = append(queue, more)
		}
	}
	return m
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

// press sends a key and runs whatever it triggers.
func press(t *testing.T, m Model, key string) Model {
	t.Helper()
	next, cmd := m.Update(keyMsg(key))
	return run(t, next.(Model), cmd)
}

// enter types value into the open input and confirms it.
func enter(t *testing.T, m Model, value string) Model {
	t.Helper()
	if m.view != ViewInput {
		t.Fatalf("view = %v, want input", m.view)
	}
	m.input.SetValue(value)
	return press(t, m, "enter")
}

// pick selects the choice with id in the open picker.
func pick(t *testing.T, m Model, id string) Model {
	t.Helper()
	if m.view != ViewPicker {
		t.Fatalf("view = %v, want picker", m.view)
	}
	for i, item := range m.picker.Items() {
		if item.(ListItem).id == id {
			m.picker.Select(i)
			return press(t, m, "enter")
		}
	}
	t.Fatalf("no choice %q in %s picker", id, m.picker.Title)
	return m
}

func openKind(t *testing.T, m Model, kind ledger.Kind) Model {
	t.Helper()
	for i, k := range ledger.Kinds {
		if k == kind {
			m.mainMenu.Select(i)
		}
	}
	return press(t, m, "enter")
}

// stockedOrder opens an order and loads warehouse W1's stock.
func stockedOrder(t *testing.T, b *MockBackend, kind ledger.Kind) Model {
	t.Helper()
	m := openKind(t, newTestModel(b), kind)
	m = pick(t, press(t, m, "w"), "W1")
	if m.page.Snapshot() == nil {
		t.Fatal("stock was not loaded")
	}
	return m
}

func row(t *testing.T, m Model, i int) ledger.LineItem {
	t.Helper()
	r, err := m.page.Engine().Row(i)
	if err != nil {
		t.Fatalf("Row(%d): %v", i, err)
	}
	return r
}

// --- Tests ---

func TestOpenPageReservesCode(t *testing.T) {
	m := openKind(t, newTestModel(&MockBackend{}), ledger.KindOrder)

	if m.view != ViewLines {
		t.Fatalf("view = %v, want lines", m.view)
	}
	if got := m.page.Header().Code; got != "SO-0001" {
		t.Errorf("code = %q, want SO-0001", got)
	}
	if !m.lookupsOK || len(m.warehouses) != 1 || len(m.customers) != 1 {
		t.Errorf("lookups not loaded: %+v %+v", m.warehouses, m.customers)
	}
	if m.loading {
		t.Error("still loading after code arrived")
	}
	if !strings.Contains(m.View(), "Order SO-0001") {
		t.Error("page title missing from view")
	}
}

func TestEscClosesPage(t *testing.T) {
	m := openKind(t, newTestModel(&MockBackend{}), ledger.KindOrder)
	m = press(t, m, "esc")
	if m.view != ViewMain || m.page != nil {
		t.Errorf("view = %v page = %v, want main menu", m.view, m.page)
	}
}

func TestItemRequiresStock(t *testing.T) {
	m := openKind(t, newTestModel(&MockBackend{}), ledger.KindOrder)
	m = press(t, m, "i")
	if m.view != ViewLines {
		t.Errorf("view = %v, want lines", m.view)
	}
	if m.message != txn.ErrNoStock.Error() {
		t.Errorf("message = %q", m.message)
	}
}

func TestLineEntryFlow(t *testing.T) {
	m := stockedOrder(t, &MockBackend{}, ledger.KindOrder)

	m = pick(t, press(t, m, "i"), "I")
	m = pick(t, press(t, m, "u"), "CTN")
	m = enter(t, press(t, m, "enter"), "8")

	r := row(t, m, 0)
	if r.Quantity != "8" || r.UOMID != "CTN" || !r.Total.Equal(d("960")) {
		t.Errorf("row = qty %s uom %s total %s", r.Quantity, r.UOMID, r.Total)
	}
	if left, _ := m.page.Engine().Remaining("I"); !left.Equal(d("4")) {
		t.Errorf("remaining = %s, want 4", left)
	}

	m = press(t, m, "a")
	if m.cursor != 1 || m.page.Engine().Len() != 2 {
		t.Errorf("cursor = %d rows = %d after add", m.cursor, m.page.Engine().Len())
	}
	m = press(t, m, "a")
	if m.message != ledger.ErrAddRowBlocked.Error() {
		t.Errorf("message = %q, want add-row blocked", m.message)
	}

	view := m.View()
	for _, want := range []string{"SKU-1 - Water", "Main Depot", "Final: 960.00"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestQuantityClampNotice(t *testing.T) {
	m := stockedOrder(t, &MockBackend{}, ledger.KindOrder)
	m = pick(t, press(t, m, "i"), "I")
	m = pick(t, press(t, m, "u"), "PC")
	m = enter(t, press(t, m, "enter"), "250")

	if got := row(t, m, 0).Quantity; got != "100" {
		t.Errorf("quantity = %s, want 100", got)
	}
	if !m.showNotification || !strings.Contains(m.notification, "Reduced 1 line(s)") {
		t.Errorf("notification = %q", m.notification)
	}
}

func TestWarehouseChangeClearsLines(t *testing.T) {
	b := &MockBackend{}
	m := stockedOrder(t, b, ledger.KindOrder)
	m = pick(t, press(t, m, "i"), "I")
	m.lookupsOK = true
	m.warehouses = append(m.warehouses, erp.Warehouse{ID: "W2", Name: "Annex"})

	m = pick(t, press(t, m, "w"), "W2")
	if !row(t, m, 0).IsBlank() {
		t.Error("row survived a warehouse change")
	}
	if m.page.Snapshot().WarehouseID != "W2" {
		t.Errorf("snapshot warehouse = %s", m.page.Snapshot().WarehouseID)
	}
}

func TestStaleMessagesFromClosedPage(t *testing.T) {
	m := stockedOrder(t, &MockBackend{}, ledger.KindOrder)
	old := m.page
	m = press(t, m, "esc")
	m = openKind(t, m, ledger.KindOrder)

	next, cmd := m.Update(stockLoadedMsg{page: old, req: txn.StockRequest{WarehouseID: "W1"}, snap: ledger.NewStockSnapshot("W1", nil)})
	m = next.(Model)
	if cmd != nil || m.page.Snapshot() != nil {
		t.Error("stock from a closed page was applied")
	}
}

func TestSubmitValidationFocusesBadLine(t *testing.T) {
	m := stockedOrder(t, &MockBackend{}, ledger.KindOrder)
	m = pick(t, press(t, m, "i"), "I")
	m = pick(t, press(t, m, "u"), "PC")
	m = press(t, m, "a")
	m = pick(t, press(t, m, "i"), "I")
	m = press(t, m, "up")

	m = press(t, m, "s")
	if m.messageType != "error" || !strings.Contains(m.message, "Customer is required") {
		t.Errorf("message = %q", m.message)
	}
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want the line without a unit", m.cursor)
	}
	if !strings.Contains(m.View(), "UOM is required") {
		t.Error("line error not rendered")
	}
}

func TestSubmitSuccessLocksPage(t *testing.T) {
	b := &MockBackend{}
	m := stockedOrder(t, b, ledger.KindOrder)
	m = pick(t, press(t, m, "c"), "C1")
	m = pick(t, press(t, m, "i"), "I")
	m = pick(t, press(t, m, "u"), "PC")
	m = enter(t, press(t, m, "enter"), "5")

	m = press(t, m, "s")
	if b.created != 1 || len(b.saved) != 1 || b.saved[0] != "SO-0001" {
		t.Fatalf("created = %d saved = %v", b.created, b.saved)
	}
	if !m.page.Header().Submitted {
		t.Error("page not locked after submit")
	}
	if m.notificationType != txn.NoticeSuccess || m.notification != "Order SO-0001 created" {
		t.Errorf("notification = %s %q", m.notificationType, m.notification)
	}

	m = press(t, m, "a")
	if m.message != txn.ErrSubmitted.Error() {
		t.Errorf("edit after submit: message = %q", m.message)
	}
}

func TestSubmitRejectedKeepsLines(t *testing.T) {
	b := &MockBackend{createErr: &erp.APIError{Status: 422, Message: "Customer is blocked"}}
	m := stockedOrder(t, b, ledger.KindOrder)
	m = pick(t, press(t, m, "c"), "C1")
	m = pick(t, press(t, m, "i"), "I")
	m = pick(t, press(t, m, "u"), "PC")

	m = press(t, m, "s")
	if m.page.Header().Submitted {
		t.Error("rejected submit locked the page")
	}
	if m.notification != "Submission failed: Customer is blocked" {
		t.Errorf("notification = %q", m.notification)
	}
	if row(t, m, 0).ItemID != "I" {
		t.Error("lines cleared after a rejected submit")
	}
}

func TestReturnResolvesBatch(t *testing.T) {
	b := &MockBackend{batches: []ledger.Batch{
		{Number: "B-OLD", Expiry: "2026-01-31", Quantity: d("50"), Price: d("8")},
		{Number: "B-7", Expiry: "2026-06-30", Quantity: d("50"), Price: d("9.5")},
	}}
	m := stockedOrder(t, b, ledger.KindReturn)
	m = pick(t, press(t, m, "i"), "I")
	m = pick(t, press(t, m, "u"), "PC")
	m = pick(t, press(t, m, "t"), ledger.ReturnBad)
	m = pick(t, press(t, m, "r"), "expired")
	m = enter(t, press(t, m, "e"), "2026-06-30")

	r := row(t, m, 0)
	if r.BatchNumber != "B-7" || !r.UnitPrice.Equal(d("9.5")) || r.Loading {
		t.Errorf("row = batch %q price %s loading %v", r.BatchNumber, r.UnitPrice, r.Loading)
	}
	if r.ReturnType != ledger.ReturnBad || r.ReturnReason != "expired" {
		t.Errorf("return = %s/%s", r.ReturnType, r.ReturnReason)
	}
}

func TestReasonNeedsReturnType(t *testing.T) {
	m := stockedOrder(t, &MockBackend{}, ledger.KindReturn)
	m = press(t, m, "r")
	if m.view != ViewLines || m.message == "" {
		t.Errorf("view = %v message = %q", m.view, m.message)
	}
}

func TestNotificationClearsOnlyLatest(t *testing.T) {
	m := newTestModel(&MockBackend{})
	m.notify(txn.Notice{Level: txn.NoticeInfo, Text: "first"})
	first := m.noticeSeq
	m.notify(txn.Notice{Level: txn.NoticeError, Text: "second"})

	next, _ := m.Update(clearNotificationMsg{first})
	m = next.(Model)
	if !m.showNotification || m.notification != "second" {
		t.Errorf("older dismissal cleared %q", m.notification)
	}
	next, _ = m.Update(clearNotificationMsg{m.noticeSeq})
	if next.(Model).showNotification {
		t.Error("latest dismissal ignored")
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"960", "960.00"},
		{"1234.5", "1,234.50"},
		{"1234567.891", "1,234,567.89"},
		{"-4500", "-4,500.00"},
	}
	for _, tt := range tests {
		if got := formatMoney(d(tt.in)); got != tt.want {
			t.Errorf("formatMoney(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDoubleSubmitCreatesOnce(t *testing.T) {
	b := &MockBackend{}
	m := stockedOrder(t, b, ledger.KindOrder)
	m = pick(t, press(t, m, "c"), "C1")
	m = pick(t, press(t, m, "i"), "I")
	m = pick(t, press(t, m, "u"), "PC")

	next, first := m.Update(keyMsg("s"))
	m = next.(Model)
	next, second := m.Update(keyMsg("s"))
	m = next.(Model)
	if second != nil {
		t.Error("second submit issued a command")
	}
	if _, err := m.page.UpdateField(0, ledger.FieldQuantity, "2"); err != txn.ErrSubmitting {
		t.Errorf("edit while submitting: err = %v", err)
	}

	m = run(t, m, first)
	m = run(t, m, second)
	if b.created != 1 || len(b.saved) != 1 {
		t.Errorf("created = %d saved = %v", b.created, b.saved)
	}
	if !m.page.Header().Submitted || m.page.Submitting() {
		t.Errorf("submitted = %v submitting = %v", m.page.Header().Submitted, m.page.Submitting())
	}
}

func TestRunContextReachesBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewModel(&MockBackend{}, Settings{Context: ctx})
	if m.ctx != ctx {
		t.Error("model does not use the run context")
	}
	if NewModel(&MockBackend{}, Settings{}).ctx == nil {
		t.Error("nil context without settings")
	}
}
