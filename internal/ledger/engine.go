package ledger

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrRowIndex      = errors.New("row index out of range")
	ErrAddRowBlocked = errors.New("fill in the empty row before adding another")
	ErrUnknownField  = errors.New("unknown field")
	ErrUnknownUOM    = errors.New("unit not offered for this item")
	ErrNoItem        = errors.New("pick an item before its unit")
	ErrPriceLocked   = errors.New("price is set by the backend for this unit")
	ErrInvalidPrice  = errors.New("invalid unit price")
)

// Debounce key prefixes.
const (
	DebounceStock = "stock"
	DebounceBatch = "batch"
)

// Update reports the side effects of a mutation.
type Update struct {
	Row     int
	Clamped []int
	// Debounce is set when a dependent lookup should run after the quiet period.
	Debounce *Ticket
}

// BatchRequest is the snapshot of a row a batch lookup was issued for.
type BatchRequest struct {
	RowKey      uuid.UUID
	WarehouseID string
	ItemID      string
	UOMID       string
	Quantity    int64
	ExpiryDate  string
}

// Engine owns the line rows of one transaction. Every change goes through its
// methods so rebalancing and validation always follow. It is not safe for
// concurrent use; the UI loop is the only caller.
type Engine struct {
	policy   Policy
	rows     []LineItem
	errs     map[uuid.UUID]FieldErrors
	snap     *StockSnapshot
	debounce *Debouncer
	log      logrus.FieldLogger
}

type Option func(*Engine)

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

func WithDebouncer(d *Debouncer) Option {
	return func(e *Engine) { e.debounce = d }
}

// NewEngine starts with a single empty row.
func NewEngine(p Policy, opts ...Option) *Engine {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	e := &Engine{
		policy:   p,
		rows:     []LineItem{newLine()},
		errs:     make(map[uuid.UUID]FieldErrors),
		debounce: NewDebouncer(),
		log:      quiet,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }
func (e *Engine) Snapshot() *StockSnapshot { return e.snap }
func (e *Engine) Debouncer() *Debouncer { return e.debounce }
func (e *Engine) Len() int { return len(e.rows) }

// Rows returns a copy of the current rows.
func (e *Engine) Rows() []LineItem {
	return cloneLines(e.rows)
}

func (e *Engine) Row(i int) (LineItem, error) {
	if i < 0 || i >= len(e.rows) {
		return LineItem{}, ErrRowIndex
	}
	return cloneLines(e.rows[i : i+1])[0], nil
}

// Errors returns the last validation result for row i.
func (e *Engine) Errors(i int) FieldErrors {
	out := FieldErrors{}
	if i < 0 || i >= len(e.rows) {
		return out
	}
	for k, v := range e.errs[e.rows[i].Key] {
		out[k] = v
	}
	return out
}

func (e *Engine) Totals() Totals {
	return RecalculateTotals(e.rows)
}

// Remaining is the item's base stock left after every row's allocation.
func (e *Engine) Remaining(itemID string) (decimal.Decimal, bool) {
	entry, ok := e.snap.Lookup(itemID)
	if !ok {
		return decimal.Zero, false
	}
	left := entry.TotalBase
	for _, r := range e.rows {
		if r.ItemID == itemID {
			left = left.Sub(r.baseUnits(e.snap))
		}
	}
	return left, true
}

// CanAddRow is false while any row has neither item nor UOM.
func (e *Engine) CanAddRow() bool {
	for _, r := range e.rows {
		if r.IsBlank() {
			return false
		}
	}
	return true
}

func (e *Engine) AddRow() (int, error) {
	if !e.CanAddRow() {
		return 0, ErrAddRowBlocked
	}
	e.rows = append(e.rows, newLine())
	return len(e.rows) - 1, nil
}

// RemoveRow deletes row i. The last row is replaced by a fresh one instead.
func (e *Engine) RemoveRow(i int) error {
	if i < 0 || i >= len(e.rows) {
		return ErrRowIndex
	}
	removed := e.rows[i]
	e.debounce.Cancel(DebounceBatch, removed.Key.String())
	delete(e.errs, removed.Key)

	if len(e.rows) == 1 {
		e.rows = []LineItem{newLine()}
		return nil
	}
	e.rows = append(e.rows[:i], e.rows[i+1:]...)

	if removed.ItemID != "" {
		e.rebalance(removed.ItemID, -1)
		e.validateSiblings(removed.ItemID, -1)
	}
	return nil
}

// Reset drops all rows and pending lookups, leaving one empty row.
func (e *Engine) Reset() {
	for _, r := range e.rows {
		e.debounce.Cancel(DebounceBatch, r.Key.String())
	}
	e.rows = []LineItem{newLine()}
	e.errs = make(map[uuid.UUID]FieldErrors)
}

// SetSnapshot replaces the stock snapshot and rebalances every row against it.
func (e *Engine) SetSnapshot(s *StockSnapshot) []int {
	e.snap = s
	for i := range e.rows {
		if e.rows[i].ItemID == "" {
			continue
		}
		if entry, ok := s.Lookup(e.rows[i].ItemID); ok {
			e.rows[i].UOMOptions = entry.UOMs
			if e.rows[i].ItemLabel == "" {
				e.rows[i].ItemLabel = entry.Label()
			}
		}
	}
	clamped := e.rebalance("", -1)
	for i := range e.rows {
		if !e.rows[i].IsBlank() {
			e.validate(i, e.rows[i].UOMID == "")
		}
	}
	return clamped
}

// ValidateAll validates every row and reports whether all passed. A row
// whose batch lookup is scheduled or running does not pass.
func (e *Engine) ValidateAll() bool {
	ok := true
	for i := range e.rows {
		errs := e.validate(i, false)
		if e.BatchPending(i) {
			errs[FieldBatch] = "Batch lookup is still running"
		}
		if len(errs) > 0 {
			ok = false
		}
	}
	return ok
}

// BatchPending reports whether row i waits on a scheduled or running batch lookup.
func (e *Engine) BatchPending(i int) bool {
	if i < 0 || i >= len(e.rows) {
		return false
	}
	row := e.rows[i]
	return row.Loading || e.debounce.Pending(DebounceBatch, row.Key.String())
}

// UpdateField is the single mutation entry point for row fields.
func (e *Engine) UpdateField(i int, field Field, value string) (Update, error) {
	if i < 0 || i >= len(e.rows) {
		return Update{}, ErrRowIndex
	}
	up := Update{Row: i}

	switch field {
	case FieldItem:
		up.Clamped = e.setItem(i, strings.TrimSpace(value))
		return up, nil

	case FieldUOM:
		clamped, err := e.setUOM(i, strings.TrimSpace(value))
		if err != nil {
			return up, err
		}
		up.Clamped = clamped

	case FieldQuantity:
		row := &e.rows[i]
		row.Quantity = strings.TrimSpace(value)
		row.clearBatch()
		e.policy.reprice(row)
		if row.ItemID != "" {
			up.Clamped = e.rebalance(row.ItemID, i)
		}
		e.validate(i, false)
		e.validateSiblings(e.rows[i].ItemID, i)

	case FieldUnitPrice:
		if err := e.setPrice(i, value); err != nil {
			return up, err
		}

	case FieldExpiry:
		row := &e.rows[i]
		row.ExpiryDate = strings.TrimSpace(value)
		row.clearBatch()
		e.policy.reprice(row)
		e.validate(i, row.UOMID == "")

	case FieldReturnType:
		row := &e.rows[i]
		row.ReturnType = strings.TrimSpace(value)
		if row.ReturnReason != "" && !contains(ReturnReasons(row.ReturnType), row.ReturnReason) {
			row.ReturnReason = ""
		}
		e.validate(i, row.UOMID == "")

	case FieldReturnReason:
		e.rows[i].ReturnReason = strings.TrimSpace(value)
		e.validate(i, e.rows[i].UOMID == "")

	case FieldBatch:
		// a typed batch replaces any pending lookup
		e.debounce.Cancel(DebounceBatch, e.rows[i].Key.String())
		e.rows[i].Loading = false
		e.rows[i].BatchNumber = strings.TrimSpace(value)
		e.validate(i, e.rows[i].UOMID == "")
		return up, nil

	default:
		return up, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	if len(up.Clamped) > 0 {
		e.log.WithFields(logrus.Fields{"row": i, "clamped": up.Clamped}).Debug("quantities clamped to available stock")
	}
	up.Debounce = e.scheduleBatch(i)
	return up, nil
}

func (e *Engine) setItem(i int, itemID string) []int {
	row := &e.rows[i]
	if row.ItemID == itemID && itemID != "" {
		return nil
	}
	prev := row.ItemID
	e.debounce.Cancel(DebounceBatch, row.Key.String())

	row.ItemID = itemID
	row.UOMID = ""
	row.UnitPrice = decimal.Zero
	row.Quantity = "1"
	row.Available = decimal.NullDecimal{}
	row.Loading = false
	row.clearBatch()

	if itemID == "" {
		row.ItemLabel = ""
		row.UOMOptions = nil
	} else if entry, ok := e.snap.Lookup(itemID); ok {
		row.ItemLabel = entry.Label()
		row.UOMOptions = entry.UOMs
	} else {
		row.ItemLabel = itemID
		row.UOMOptions = nil
	}
	e.policy.reprice(row)

	var clamped []int
	if itemID != "" {
		clamped = e.rebalance(itemID, i)
	}
	if prev != "" && prev != itemID {
		clamped = append(clamped, e.rebalance(prev, -1)...)
		e.validateSiblings(prev, i)
	}
	if itemID == "" {
		delete(e.errs, row.Key)
		return clamped
	}
	e.validate(i, true)
	return clamped
}

func (e *Engine) setUOM(i int, uomID string) ([]int, error) {
	row := &e.rows[i]
	var opt UOMOption
	if uomID != "" {
		if row.ItemID == "" {
			return nil, ErrNoItem
		}
		o, ok := row.option(uomID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUOM, uomID)
		}
		opt = o
	}

	row.UOMID = uomID
	row.UnitPrice = opt.UnitPrice
	row.clearBatch()
	e.policy.reprice(row)

	var clamped []int
	if row.ItemID != "" {
		clamped = e.rebalance(row.ItemID, i)
	}
	e.validate(i, false)
	e.validateSiblings(e.rows[i].ItemID, i)
	return clamped, nil
}

func (e *Engine) setPrice(i int, value string) error {
	row := &e.rows[i]
	opt, ok := row.UOM()
	if !ok {
		return ErrNoItem
	}
	if !opt.UnitPrice.IsZero() {
		return ErrPriceLocked
	}
	price, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || price.Sign() < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPrice, value)
	}
	row.UnitPrice = price
	e.policy.reprice(row)
	return nil
}

func (e *Engine) rebalance(itemID string, focus int) []int {
	return Rebalance(e.policy, e.rows, e.snap, itemID, focus)
}

func (e *Engine) validate(i int, skipUOM bool) FieldErrors {
	errs := ValidateRow(e.policy, e.rows, i, e.snap, skipUOM)
	e.errs[e.rows[i].Key] = errs
	return errs
}

// validateSiblings revalidates other rows of the same item, whose stock may have moved.
func (e *Engine) validateSiblings(itemID string, except int) {
	if itemID == "" {
		return
	}
	for j := range e.rows {
		if j == except || e.rows[j].ItemID != itemID {
			continue
		}
		_, shown := e.errs[e.rows[j].Key][FieldUOM]
		e.validate(j, e.rows[j].UOMID == "" && !shown)
	}
}

// scheduleBatch issues a debounce ticket when the row has everything a batch lookup needs.
func (e *Engine) scheduleBatch(i int) *Ticket {
	if !e.policy.ResolveBatches {
		return nil
	}
	row := e.rows[i]
	if _, ok := e.batchRequest(row); !ok {
		e.debounce.Cancel(DebounceBatch, row.Key.String())
		return nil
	}
	t := e.debounce.Schedule(DebounceBatch, row.Key.String())
	return &t
}

func (e *Engine) batchRequest(row LineItem) (BatchRequest, bool) {
	n, ok := row.Qty()
	if !ok || n < 1 || row.ItemID == "" || row.UOMID == "" {
		return BatchRequest{}, false
	}
	if checkDate(row.ExpiryDate, "expiry") != "" {
		return BatchRequest{}, false
	}
	req := BatchRequest{
		RowKey:     row.Key,
		ItemID:     row.ItemID,
		UOMID:      row.UOMID,
		Quantity:   n,
		ExpiryDate: row.ExpiryDate,
	}
	if e.snap != nil {
		req.WarehouseID = e.snap.WarehouseID
	}
	return req, true
}

func (e *Engine) indexOf(key uuid.UUID) int {
	for i, r := range e.rows {
		if r.Key == key {
			return i
		}
	}
	return -1
}

// BeginBatch turns a fired ticket into a lookup request and marks the row
// loading. ok is false when the ticket was superseded or the row is gone.
func (e *Engine) BeginBatch(t Ticket) (BatchRequest, bool) {
	if !e.debounce.Live(t) {
		return BatchRequest{}, false
	}
	e.debounce.Done(t)

	key, err := uuid.Parse(strings.TrimPrefix(t.Key, DebounceBatch+":"))
	if err != nil {
		return BatchRequest{}, false
	}
	i := e.indexOf(key)
	if i < 0 {
		return BatchRequest{}, false
	}
	req, ok := e.batchRequest(e.rows[i])
	if !ok {
		return BatchRequest{}, false
	}
	e.rows[i].Loading = true
	return req, true
}

// ApplyBatch applies a batch lookup result. It is discarded, returning false,
// when the row no longer matches the request it was issued for.
func (e *Engine) ApplyBatch(req BatchRequest, batches []Batch) bool {
	i := e.indexOf(req.RowKey)
	if i < 0 {
		return false
	}
	row := &e.rows[i]
	if !row.Loading {
		return false
	}
	current, ok := e.batchRequest(*row)
	if !ok || current != req {
		row.Loading = false
		return false
	}

	row.Loading = false
	row.BatchResolved = true
	row.BatchNumber = ""
	if len(batches) > 0 {
		b := pickBatch(batches, req)
		row.BatchNumber = b.Number
		if b.Price.Sign() > 0 {
			row.UnitPrice = b.Price
		}
	}
	e.policy.reprice(row)
	e.validate(i, false)
	return true
}

// FailBatch clears the loading flag after a failed lookup, leaving the row as it was.
func (e *Engine) FailBatch(req BatchRequest) {
	if i := e.indexOf(req.RowKey); i >= 0 {
		e.rows[i].Loading = false
	}
}

// pickBatch prefers a batch with the requested expiry that covers the quantity.
func pickBatch(batches []Batch, req BatchRequest) Batch {
	need := decimal.NewFromInt(req.Quantity)
	for _, b := range batches {
		if b.Expiry == req.ExpiryDate && b.Quantity.GreaterThanOrEqual(need) {
			return b
		}
	}
	for _, b := range batches {
		if b.Expiry == req.ExpiryDate {
			return b
		}
	}
	return batches[0]
}

// clearBatch forgets the resolved batch and the price it brought with it.
func (l *LineItem) clearBatch() {
	l.BatchNumber = ""
	l.BatchResolved = false
	if opt, ok := l.UOM(); ok && !opt.UnitPrice.IsZero() {
		l.UnitPrice = opt.UnitPrice
	}
}
