package txn

import (
	"github.com/mikelcalvo/distributor-cli/internal/ledger"
	"github.com/shopspring/decimal"
)

// Detail is one line in the backend's create payload.
type Detail struct {
	ItemID       string          `json:"item_id"`
	UOMID        string          `json:"uom_id"`
	Quantity     int64           `json:"quantity"`
	ItemPrice    decimal.Decimal `json:"item_price"`
	VAT          decimal.Decimal `json:"vat"`
	NetTotal     decimal.Decimal `json:"net_total"`
	Total        decimal.Decimal `json:"total"`
	ExpiryDate   string          `json:"expiry_date,omitempty"`
	BatchNumber  string          `json:"batch_number,omitempty"`
	ReturnType   string          `json:"return_type,omitempty"`
	ReturnReason string          `json:"return_reason,omitempty"`
}

// Payload is the body posted to create a transaction.
type Payload struct {
	Code        string          `json:"code"`
	WarehouseID string          `json:"warehouse_id"`
	CustomerID  string          `json:"customer_id"`
	DeliveryRef string          `json:"delivery_id,omitempty"`
	Date        string          `json:"date"`
	Note        string          `json:"note,omitempty"`
	GrossTotal  decimal.Decimal `json:"gross_total"`
	TotalVAT    decimal.Decimal `json:"total_vat"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	FinalTotal  decimal.Decimal `json:"final_total"`
	Details     []Detail        `json:"details"`
}

// BuildPayload maps a validated header and rows to the backend shape.
func BuildPayload(h Header, rows []ledger.LineItem, t ledger.Totals) Payload {
	p := Payload{
		Code:        h.Code,
		WarehouseID: h.WarehouseID,
		CustomerID:  h.CustomerID,
		DeliveryRef: h.DeliveryRef,
		Date:        h.Date,
		Note:        h.Note,
		GrossTotal:  t.Gross,
		TotalVAT:    t.VAT,
		NetAmount:   t.Net,
		FinalTotal:  t.Final,
		Details:     make([]Detail, 0, len(rows)),
	}
	for _, r := range rows {
		qty, _ := r.Qty()
		d := Detail{
			ItemID:    r.ItemID,
			UOMID:     r.UOMID,
			Quantity:  qty,
			ItemPrice: r.UnitPrice,
			VAT:       r.VAT,
			NetTotal:  r.Net,
			Total:     r.Total,
		}
		if h.Kind == ledger.KindReturn {
			d.ExpiryDate = r.ExpiryDate
			d.BatchNumber = r.BatchNumber
			d.ReturnType = r.ReturnType
			d.ReturnReason = r.ReturnReason
		}
		p.Details = append(p.Details, d)
	}
	return p
}
