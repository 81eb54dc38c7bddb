package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wellywell/orderdesk/internal/types"
)

var ErrInvalidInput = errors.New("invalid input")

type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// Submission is the body of a client order submission. Totals are pointers
// so that absent values can be told apart from zero.
type Submission struct {
	Items       []types.Item `json:"items"`
	Mode        types.Mode   `json:"mode"`
	Building    string       `json:"building"`
	Notes       string       `json:"notes"`
	ItemsTotal  *float64     `json:"items_total"`
	DeliveryFee *float64     `json:"delivery_fee"`
	FinalTotal  *float64     `json:"final_total"`
}

// ValidateSubmission checks a submission and fills in defaults. It never
// touches storage; a failing submission leaves no trace.
func ValidateSubmission(s *Submission) error {
	if s == nil || len(s.Items) == 0 {
		return &InvalidInputError{Field: "items", Reason: "at least one item is required"}
	}
	for i, item := range s.Items {
		if strings.TrimSpace(item.Name) == "" {
			return &InvalidInputError{Field: fmt.Sprintf("items[%d].name", i), Reason: "empty"}
		}
		if item.Qty <= 0 {
			return &InvalidInputError{Field: fmt.Sprintf("items[%d].qty", i), Reason: "must be positive"}
		}
		if item.Price < 0 {
			return &InvalidInputError{Field: fmt.Sprintf("items[%d].price", i), Reason: "must not be negative"}
		}
	}

	if s.Mode == "" {
		s.Mode = types.PickupMode
	}
	if !s.Mode.Valid() {
		return &InvalidInputError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", s.Mode)}
	}
	return nil
}

// Discrepancy is a supplied total that does not match the server side
// computation. Supplied totals are stored as given; discrepancies are only
// reported.
type Discrepancy struct {
	Field    string
	Supplied decimal.Decimal
	Computed decimal.Decimal
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("%s supplied %s, computed %s", d.Field, d.Supplied.StringFixed(2), d.Computed.StringFixed(2))
}

// ItemsTotal sums price × qty over all items.
func ItemsTotal(items []types.Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(LineTotal(item))
	}
	return total
}

func LineTotal(item types.Item) decimal.Decimal {
	return decimal.NewFromFloat(item.Price).Mul(decimal.NewFromFloat(item.Qty))
}

// CheckTotals compares the supplied totals, when present, with the values
// computed from the items. Amounts are compared at cent precision.
func CheckTotals(s *Submission) []Discrepancy {
	var result []Discrepancy

	itemsTotal := ItemsTotal(s.Items)
	if s.ItemsTotal != nil {
		supplied := decimal.NewFromFloat(*s.ItemsTotal)
		if !sameAmount(supplied, itemsTotal) {
			result = append(result, Discrepancy{Field: "items_total", Supplied: supplied, Computed: itemsTotal})
		}
	}

	if s.FinalTotal != nil {
		final := itemsTotal
		if s.DeliveryFee != nil {
			final = final.Add(decimal.NewFromFloat(*s.DeliveryFee))
		}
		supplied := decimal.NewFromFloat(*s.FinalTotal)
		if !sameAmount(supplied, final) {
			result = append(result, Discrepancy{Field: "final_total", Supplied: supplied, Computed: final})
		}
	}
	return result
}

func sameAmount(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}
