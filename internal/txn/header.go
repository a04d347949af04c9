package txn

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mikelcalvo/distributor-cli/internal/ledger"
)

// Header is the transaction-level part of the form.
type Header struct {
	Kind        ledger.Kind `validate:"required,oneof=order delivery invoice return"`
	Code        string      `validate:"required"`
	WarehouseID string      `validate:"required"`
	CustomerID  string      `validate:"required"`
	DeliveryRef string      `validate:"required_if=Kind delivery"`
	Date        string      `validate:"required,datetime=2006-01-02"`
	Note        string      `validate:"max=500"`
	Submitted   bool
}

var validate = validator.New()

var fieldLabels = map[string]string{
	"Kind":        "transaction type",
	"Code":        "code",
	"WarehouseID": "warehouse",
	"CustomerID":  "customer",
	"DeliveryRef": "delivery",
	"Date":        "date",
	"Note":        "note",
}

// Validate returns field -> message for every failed rule. Empty means valid.
func (h Header) Validate() map[string]string {
	out := map[string]string{}
	err := validate.Struct(h)
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["header"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		label := fieldLabels[fe.Field()]
		if label == "" {
			label = strings.ToLower(fe.Field())
		}
		out[label] = headerMessage(label, fe)
	}
	return out
}

func headerMessage(label string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", capitalize(label))
	case "datetime":
		return fmt.Sprintf("%s must be a date (YYYY-MM-DD)", capitalize(label))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", capitalize(label), fe.Param())
	case "oneof":
		return fmt.Sprintf("Unknown %s", label)
	}
	return fmt.Sprintf("%s is invalid", capitalize(label))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ValidationError lists everything blocking a submission.
type ValidationError struct {
	Header map[string]string
	Rows   map[int]ledger.FieldErrors
}

func (e *ValidationError) Error() string {
	var parts []string
	keys := make([]string, 0, len(e.Header))
	for k := range e.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, e.Header[k])
	}
	if len(e.Rows) > 0 {
		parts = append(parts, fmt.Sprintf("%d line(s) need attention", len(e.Rows)))
	}
	return "cannot submit: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	var errs []error
	if len(e.Header) > 0 {
		errs = append(errs, ErrInvalidHeader)
	}
	if len(e.Rows) > 0 {
		errs = append(errs, ErrInvalidLines)
	}
	return errs
}
