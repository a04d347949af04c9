package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikelcalvo/distributor-cli/internal/ledger"
	"github.com/shopspring/decimal"
)

// Number decodes a JSON number or numeric string. Anything else reads as zero
// with Valid false, so a degraded backend cannot break the form.
type Number struct {
	decimal.Decimal
	Valid bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	n.Decimal, n.Valid = decimal.Zero, false
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	n.Decimal, n.Valid = d, true
	return nil
}

// Text decodes a JSON string or number as a string. Ids arrive as either.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	*t = Text(strings.Trim(string(b), `"`))
	return nil
}

type stockUOM struct {
	ID      Text   `json:"id"`
	Name    string `json:"name"`
	UOMType string `json:"uom_type"`
	Price   Number `json:"price"`
	UPC     Number `json:"upc"`
}

type stockRow struct {
	ItemID       Text       `json:"item_id"`
	ItemName     string     `json:"item_name"`
	ItemCode     Text       `json:"item_code"`
	ERPCode      Text       `json:"erp_code"`
	StockQty     Number     `json:"stock_qty"`
	UOMs         []stockUOM `json:"uoms"`
	AUOMPcPrice  Number     `json:"auom_pc_price"`
	BUOMCtnPrice Number     `json:"buom_ctn_price"`
}

type batchRow struct {
	BatchNumber Text   `json:"batch_number"`
	Expiry      string `json:"batch_expiry_date"`
	Quantity    Number `json:"quantity"`
	ItemPrice   Number `json:"item_price"`
	SapID       Text   `json:"sap_id"`
}

// BatchQuery selects the batches that can cover a return line.
type BatchQuery struct {
	WarehouseID string
	ItemID      string
	UOMID       string
	Quantity    int64
	ExpiryDate  string
}

// Code is a reserved transaction code.
type Code struct {
	Code   string `json:"code"`
	Prefix string `json:"prefix,omitempty"`
}

// CreateResult is the backend's answer to a successful create.
type CreateResult struct {
	ID   string
	Data json.RawMessage
}

type Warehouse struct {
	ID   string
	Name string
}

type Customer struct {
	ID   string
	Code string
	Name string
}

var endpoints = map[ledger.Kind]string{
	ledger.KindOrder:    "/api/sales-orders",
	ledger.KindDelivery: "/api/deliveries",
	ledger.KindInvoice:  "/api/invoices",
	ledger.KindReturn:   "/api/sales-returns",
}

var modelNames = map[ledger.Kind]string{
	ledger.KindOrder:    "sales_order",
	ledger.KindDelivery: "delivery",
	ledger.KindInvoice:  "invoice",
	ledger.KindReturn:   "sales_return",
}

// ModelName is the code-reservation model for a transaction kind.
func ModelName(kind ledger.Kind) string {
	return modelNames[kind]
}

// call wraps Request with metrics and error logging.
func (c *Client) call(ctx context.Context, op, method, path string, body, out interface{}) error {
	start := time.Now()
	err := c.Request(ctx, method, path, body, out)
	c.Metrics.ObserveRequest(op, start, err)
	if err != nil {
		LogError(c.Log, "erp", op, method+" "+path, nil, err)
		return err
	}
	c.Log.WithField("operation", op).Debug("request ok")
	return nil
}

// FetchWarehouseStock builds a stock snapshot for one warehouse. The primary
// UOM is priced from auom_pc_price and the secondary from buom_ctn_price,
// each falling back to the UOM's own price.
func (c *Client) FetchWarehouseStock(ctx context.Context, warehouseID string) (*ledger.StockSnapshot, error) {
	var resp struct {
		Stocks []stockRow `json:"stocks"`
	}
	path := "/api/warehouses/" + url.PathEscape(warehouseID) + "/stocks"
	if err := c.call(ctx, "fetch_warehouse_stock", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]ledger.StockEntry, 0, len(resp.Stocks))
	for _, s := range resp.Stocks {
		entry := ledger.StockEntry{
			ItemID:    string(s.ItemID),
			Code:      string(s.ItemCode),
			ERPCode:   string(s.ERPCode),
			Name:      s.ItemName,
			TotalBase: s.StockQty.Decimal,
		}
		for _, u := range s.UOMs {
			price := u.Price.Decimal
			switch u.UOMType {
			case ledger.UOMPrimary:
				if s.AUOMPcPrice.Valid {
					price = s.AUOMPcPrice.Decimal
				}
			case ledger.UOMSecondary:
				if s.BUOMCtnPrice.Valid {
					price = s.BUOMCtnPrice.Decimal
				}
			}
			factor := u.UPC.Decimal
			if factor.Sign() <= 0 {
				factor = decimal.NewFromInt(1)
			}
			entry.UOMs = append(entry.UOMs, ledger.UOMOption{
				ID:        string(u.ID),
				Label:     u.Name,
				Type:      u.UOMType,
				UnitPrice: price,
				Factor:    factor,
			})
		}
		entries = append(entries, entry)
	}
	return ledger.NewStockSnapshot(warehouseID, entries), nil
}

// FetchItemBatches lists costed batches for a return line.
func (c *Client) FetchItemBatches(ctx context.Context, q BatchQuery) ([]ledger.Batch, error) {
	params := url.Values{}
	params.Set("warehouse_id", q.WarehouseID)
	params.Set("item_id", q.ItemID)
	params.Set("uom", q.UOMID)
	params.Set("quantity", strconv.FormatInt(q.Quantity, 10))
	params.Set("expiry_date", q.ExpiryDate)

	var raw json.RawMessage
	if err := c.call(ctx, "fetch_item_batches", http.MethodGet, "/api/item-batches?"+params.Encode(), nil, &raw); err != nil {
		return nil, err
	}

	var rows []batchRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		var wrapped struct {
			Data []batchRow `json:"data"`
		}
		_ = json.Unmarshal(raw, &wrapped)
		rows = wrapped.Data
	}

	batches := make([]ledger.Batch, 0, len(rows))
	for _, r := range rows {
		batches = append(batches, ledger.Batch{
			Number:   string(r.BatchNumber),
			Expiry:   r.Expiry,
			Quantity: r.Quantity.Decimal,
			Price:    r.ItemPrice.Decimal,
			SapID:    string(r.SapID),
		})
	}
	return batches, nil
}

// CreateTransaction posts a transaction payload. A body flagged error:true is a rejection.
func (c *Client) CreateTransaction(ctx context.Context, kind ledger.Kind, payload interface{}) (*CreateResult, error) {
	path, ok := endpoints[kind]
	if !ok {
		return nil, fmt.Errorf("unknown transaction kind: %s", kind)
	}

	var resp struct {
		Error   bool            `json:"error"`
		Message json.RawMessage `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := c.call(ctx, "create_"+string(kind), http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		msg := firstMessage(resp.Message)
		if msg == "" {
			msg = "the transaction was rejected"
		}
		err := &APIError{Message: msg}
		LogError(c.Log, "erp", "create_"+string(kind), "rejected", nil, err)
		return nil, err
	}

	result := &CreateResult{Data: resp.Data}
	var ident struct {
		ID Text `json:"id"`
	}
	if len(resp.Data) > 0 && json.Unmarshal(resp.Data, &ident) == nil {
		result.ID = string(ident.ID)
	}
	return result, nil
}

// GenerateCode reserves a transaction code for a model.
func (c *Client) GenerateCode(ctx context.Context, model string) (Code, error) {
	var resp struct {
		Code
		Data *Code `json:"data"`
	}
	body := map[string]string{"model_name": model}
	if err := c.call(ctx, "generate_code", http.MethodPost, "/api/generate-code", body, &resp); err != nil {
		return Code{}, err
	}
	code := resp.Code
	if code.Code == "" && resp.Data != nil {
		code = *resp.Data
	}
	if code.Code == "" {
		return Code{}, fmt.Errorf("generate code: empty code for %s", model)
	}
	return code, nil
}

// SaveFinalCode commits a reserved code once its transaction exists.
func (c *Client) SaveFinalCode(ctx context.Context, code, model string) error {
	body := map[string]string{"reserved_code": code, "model_name": model}
	return c.call(ctx, "save_final_code", http.MethodPost, "/api/save-final-code", body, nil)
}

type namedRow struct {
	ID   Text   `json:"id"`
	Code Text   `json:"code"`
	Name string `json:"name"`
}

func (c *Client) listNamed(ctx context.Context, op, path string) ([]namedRow, error) {
	var resp struct {
		Data []namedRow `json:"data"`
	}
	if err := c.call(ctx, op, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := c.listNamed(ctx, "list_warehouses", "/api/warehouses")
	if err != nil {
		return nil, err
	}
	out := make([]Warehouse, 0, len(rows))
	for _, r := range rows {
		out = append(out, Warehouse{ID: string(r.ID), Name: r.Name})
	}
	return out, nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := c.listNamed(ctx, "list_customers", "/api/customers")
	if err != nil {
		return nil, err
	}
	out := make([]Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, Customer{ID: string(r.ID), Code: string(r.Code), Name: r.Name})
	}
	return out, nil
}

// Ping returns the authenticated user.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.call(ctx, "ping", http.MethodGet, pingPath, nil, &resp); err != nil {
		return "", err
	}
	if resp.Message == "" {
		return "", fmt.Errorf("authentication failed")
	}
	return resp.Message, nil
}
