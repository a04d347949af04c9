package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikelcalvo/distributor-cli/internal/erp"
	"github.com/mikelcalvo/distributor-cli/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrSubmitted        = errors.New("transaction already submitted")
	ErrSubmitting       = errors.New("transaction is being submitted")
	ErrInvalidLines     = errors.New("some lines are invalid")
	ErrInvalidHeader    = errors.New("header is incomplete")
	ErrNoStock          = errors.New("select a warehouse and wait for its stock first")
	ErrCodeNotFinalized = errors.New("transaction created but its code was not finalized")
)

const stockKey = "header"

// Gateway is the slice of the backend the controller needs.
type Gateway interface {
	FetchWarehouseStock(ctx context.Context, warehouseID string) (*ledger.StockSnapshot, error)
	FetchItemBatches(ctx context.Context, q erp.BatchQuery) ([]ledger.Batch, error)
	CreateTransaction(ctx context.Context, kind ledger.Kind, payload interface{}) (*erp.CreateResult, error)
	GenerateCode(ctx context.Context, model string) (erp.Code, error)
	SaveFinalCode(ctx context.Context, code, model string) error
}

// Notice is a user-facing message produced by an async result.
type Notice struct {
	Level string
	Text  string
}

const (
	NoticeInfo    = "info"
	NoticeSuccess = "success"
	NoticeError   = "error"
)

// StockRequest identifies one warehouse stock fetch.
type StockRequest struct {
	Ticket      ledger.Ticket
	WarehouseID string
}

// Controller binds one transaction page: header, lines and submission.
// Every method except FetchStock, FetchBatches, ReserveCode and Submit must
// run on the UI loop; those four only talk to the gateway.
type Controller struct {
	kind     ledger.Kind
	gw       Gateway
	engine   *ledger.Engine
	debounce *ledger.Debouncer
	header   Header

	stockTicket  ledger.Ticket
	stockLoading bool
	submitting   bool

	log     logrus.FieldLogger
	metrics *erp.Metrics
	now     func() time.Time
	rate    decimal.Decimal
}

type Option func(*Controller)

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = l }
}

func WithMetrics(m *erp.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithVATRate(rate decimal.Decimal) Option {
	return func(c *Controller) { c.rate = rate }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithDebounce sets the quiet periods for the warehouse stock and batch lookups.
func WithDebounce(stock, quantity time.Duration) Option {
	return func(c *Controller) {
		c.debounce.SetDelay(ledger.DebounceStock, stock)
		c.debounce.SetDelay(ledger.DebounceBatch, quantity)
	}
}

func New(kind ledger.Kind, gw Gateway, opts ...Option) (*Controller, error) {
	c := &Controller{
		kind:     kind,
		gw:       gw,
		debounce: ledger.NewDebouncer(),
		log:      erp.DiscardLogger(),
		now:      time.Now,
		rate:     ledger.DefaultVATRate,
	}
	c.debounce.SetDelay(ledger.DebounceStock, 500*time.Millisecond)
	c.debounce.SetDelay(ledger.DebounceBatch, 400*time.Millisecond)
	for _, opt := range opts {
		opt(c)
	}

	policy, err := ledger.PolicyFor(kind, c.rate)
	if err != nil {
		return nil, err
	}
	c.log = c.log.WithField("kind", string(kind))
	c.engine = ledger.NewEngine(policy, ledger.WithDebouncer(c.debounce), ledger.WithLogger(c.log))
	c.header = Header{Kind: kind, Date: c.now().Format(ledger.DateLayout)}
	return c, nil
}

func (c *Controller) Kind() ledger.Kind { return c.kind }
func (c *Controller) Engine() *ledger.Engine { return c.engine }
func (c *Controller) Header() Header { return c.header }
func (c *Controller) StockLoading() bool { return c.stockLoading }
func (c *Controller) Submitting() bool { return c.submitting }
func (c *Controller) Snapshot() *ledger.StockSnapshot { return c.engine.Snapshot() }

// Close drops pending debounced lookups.
func (c *Controller) Close() {
	c.debounce.CancelAll()
}

// ReserveCode asks the backend for a transaction code.
func (c *Controller) ReserveCode(ctx context.Context) (erp.Code, error) {
	return c.gw.GenerateCode(ctx, erp.ModelName(c.kind))
}

func (c *Controller) ApplyCode(code erp.Code, err error) Notice {
	if err != nil {
		erp.LogError(c.log, "txn", "ApplyCode", "generate code", nil, err)
		return Notice{Level: NoticeError, Text: "Could not reserve a code: " + userMessage(err)}
	}
	c.header.Code = code.Code
	return Notice{Level: NoticeInfo, Text: fmt.Sprintf("%s %s", c.kind.Title(), code.Code)}
}

// Mount reserves the page's code synchronously.
func (c *Controller) Mount(ctx context.Context) error {
	code, err := c.ReserveCode(ctx)
	c.ApplyCode(code, err)
	return err
}

func (c *Controller) guard() error {
	if c.header.Submitted {
		return ErrSubmitted
	}
	if c.submitting {
		return ErrSubmitting
	}
	return nil
}

// SetWarehouse switches the warehouse, clearing all lines and scheduling a
// stock fetch. The returned ticket is nil when nothing needs fetching.
func (c *Controller) SetWarehouse(id string) (*ledger.Ticket, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	if id == c.header.WarehouseID {
		return nil, nil
	}
	c.header.WarehouseID = id
	return c.resetLines(), nil
}

// SetCustomer also clears the lines for invoices and returns, whose stock is customer-bound.
func (c *Controller) SetCustomer(id string) (*ledger.Ticket, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	if id == c.header.CustomerID {
		return nil, nil
	}
	c.header.CustomerID = id
	if c.kind == ledger.KindInvoice || c.kind == ledger.KindReturn {
		return c.resetLines(), nil
	}
	return nil, nil
}

// SetDeliveryRef clears the lines of a delivery.
func (c *Controller) SetDeliveryRef(ref string) (*ledger.Ticket, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	if ref == c.header.DeliveryRef {
		return nil, nil
	}
	c.header.DeliveryRef = ref
	if c.kind == ledger.KindDelivery {
		return c.resetLines(), nil
	}
	return nil, nil
}

func (c *Controller) SetDate(date string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.header.Date = date
	return nil
}

func (c *Controller) SetNote(note string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.header.Note = note
	return nil
}

func (c *Controller) resetLines() *ledger.Ticket {
	c.engine.Reset()
	c.engine.SetSnapshot(nil)
	c.debounce.Cancel(ledger.DebounceStock, stockKey)
	c.stockLoading = false

	if c.header.WarehouseID == "" {
		c.stockTicket = ledger.Ticket{}
		return nil
	}
	t := c.debounce.Schedule(ledger.DebounceStock, stockKey)
	c.stockTicket = t
	c.stockLoading = true
	c.log.WithField("warehouse", c.header.WarehouseID).Debug("stock fetch scheduled")
	return &t
}

// BeginStock turns a fired stock ticket into a request; false when superseded.
func (c *Controller) BeginStock(t ledger.Ticket) (StockRequest, bool) {
	if !c.debounce.Live(t) {
		return StockRequest{}, false
	}
	c.debounce.Done(t)
	return StockRequest{Ticket: t, WarehouseID: c.header.WarehouseID}, true
}

func (c *Controller) FetchStock(ctx context.Context, req StockRequest) (*ledger.StockSnapshot, error) {
	return c.gw.FetchWarehouseStock(ctx, req.WarehouseID)
}

// ApplyStock installs a fetched snapshot. Results for a superseded request or
// another warehouse are discarded and ok is false.
func (c *Controller) ApplyStock(req StockRequest, snap *ledger.StockSnapshot, err error) (Notice, bool) {
	if req.Ticket != c.stockTicket || req.WarehouseID != c.header.WarehouseID {
		c.metrics.StaleDiscarded("stock")
		c.log.WithField("warehouse", req.WarehouseID).Debug("stale stock response discarded")
		return Notice{}, false
	}
	c.stockLoading = false

	if err != nil {
		erp.LogError(c.log, "txn", "ApplyStock", "fetch warehouse stock", req.WarehouseID, err)
		return Notice{Level: NoticeError, Text: fmt.Sprintf("Could not load stock for %s: %s", req.WarehouseID, userMessage(err))}, true
	}
	if snap == nil {
		snap = ledger.NewStockSnapshot(req.WarehouseID, nil)
	}
	clamped := c.engine.SetSnapshot(snap)
	c.metrics.RowsClamped(len(clamped))
	return Notice{Level: NoticeInfo, Text: fmt.Sprintf("%d items in stock at %s", snap.Len(), req.WarehouseID)}, true
}

// UpdateField forwards a row edit to the engine.
func (c *Controller) UpdateField(i int, field ledger.Field, value string) (ledger.Update, error) {
	if err := c.guard(); err != nil {
		return ledger.Update{}, err
	}
	up, err := c.engine.UpdateField(i, field, value)
	if err != nil {
		return up, err
	}
	c.metrics.RowsClamped(len(up.Clamped))
	return up, nil
}

func (c *Controller) AddRow() (int, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	return c.engine.AddRow()
}

func (c *Controller) RemoveRow(i int) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.engine.RemoveRow(i)
}

func (c *Controller) BeginBatch(t ledger.Ticket) (ledger.BatchRequest, bool) {
	return c.engine.BeginBatch(t)
}

func (c *Controller) FetchBatches(ctx context.Context, req ledger.BatchRequest) ([]ledger.Batch, error) {
	return c.gw.FetchItemBatches(ctx, erp.BatchQuery{
		WarehouseID: req.WarehouseID,
		ItemID:      req.ItemID,
		UOMID:       req.UOMID,
		Quantity:    req.Quantity,
		ExpiryDate:  req.ExpiryDate,
	})
}

// ApplyBatch applies a batch lookup result unless the row has moved on.
func (c *Controller) ApplyBatch(req ledger.BatchRequest, batches []ledger.Batch, err error) (Notice, bool) {
	if req.WarehouseID != c.header.WarehouseID {
		c.engine.FailBatch(req)
		c.metrics.StaleDiscarded("batch")
		return Notice{}, false
	}
	if err != nil {
		c.engine.FailBatch(req)
		erp.LogError(c.log, "txn", "ApplyBatch", "fetch item batches", req, err)
		return Notice{Level: NoticeError, Text: "Could not look up batches: " + userMessage(err)}, true
	}
	if !c.engine.ApplyBatch(req, batches) {
		c.metrics.StaleDiscarded("batch")
		return Notice{}, false
	}
	if len(batches) == 0 {
		return Notice{Level: NoticeError, Text: fmt.Sprintf("No batch of %s expires on %s", req.ItemID, req.ExpiryDate)}, true
	}
	return Notice{}, true
}

// Payload validates the whole form and maps it to the backend shape.
func (c *Controller) Payload() (Payload, error) {
	if err := c.guard(); err != nil {
		return Payload{}, err
	}
	headerErrs := c.header.Validate()
	linesOK := c.engine.ValidateAll()

	if len(headerErrs) > 0 || !linesOK {
		verr := &ValidationError{Header: headerErrs, Rows: map[int]ledger.FieldErrors{}}
		for i := 0; i < c.engine.Len(); i++ {
			if errs := c.engine.Errors(i); len(errs) > 0 {
				verr.Rows[i] = errs
			}
		}
		return Payload{}, verr
	}
	return BuildPayload(c.header, c.engine.Rows(), c.engine.Totals()), nil
}

// BeginSubmit builds the payload and locks the form until CompleteSubmit, so
// a page creates at most one transaction at a time.
func (c *Controller) BeginSubmit() (Payload, error) {
	p, err := c.Payload()
	if err != nil {
		return Payload{}, err
	}
	c.submitting = true
	return p, nil
}

// Submit creates the transaction and, only once that succeeded, commits the
// reserved code. It only talks to the gateway.
func (c *Controller) Submit(ctx context.Context, p Payload) (*erp.CreateResult, error) {
	res, err := c.gw.CreateTransaction(ctx, c.kind, p)
	if err != nil {
		return nil, err
	}
	if err := c.gw.SaveFinalCode(ctx, p.Code, erp.ModelName(c.kind)); err != nil {
		return res, fmt.Errorf("%w: %v", ErrCodeNotFinalized, err)
	}
	return res, nil
}

// CompleteSubmit records the outcome of Submit. A created transaction locks
// the form; a rejected one leaves it populated for correction.
func (c *Controller) CompleteSubmit(res *erp.CreateResult, err error) Notice {
	c.submitting = false
	if res == nil {
		erp.LogError(c.log, "txn", "CompleteSubmit", "create transaction", c.header.Code, err)
		return Notice{Level: NoticeError, Text: "Submission failed: " + userMessage(err)}
	}

	c.header.Submitted = true
	c.debounce.CancelAll()
	c.log.WithFields(logrus.Fields{"code": c.header.Code, "id": res.ID}).Info("transaction created")

	if err != nil {
		erp.LogError(c.log, "txn", "CompleteSubmit", "save final code", c.header.Code, err)
		return Notice{Level: NoticeError, Text: fmt.Sprintf("%s %s created, but its code was not finalized", c.kind.Title(), c.header.Code)}
	}
	return Notice{Level: NoticeSuccess, Text: fmt.Sprintf("%s %s created", c.kind.Title(), c.header.Code)}
}

// userMessage prefers the backend's own message.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *erp.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
