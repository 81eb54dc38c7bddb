package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Records written before validation existed hold whatever the client sent:
// numbers as strings, buildings as numbers, null totals. Scalars are
// therefore decoded by value, and anything that cannot be read as the
// wanted kind becomes its zero value instead of failing the whole record.

type looseNumber float64

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = 0
	switch x := v.(type) {
	case float64:
		*n = looseNumber(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			*n = looseNumber(f)
		}
	}
	return nil
}

type looseText string

func (t *looseText) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = ""
	switch x := v.(type) {
	case string:
		*t = looseText(x)
	case float64:
		*t = looseText(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		*t = looseText(strconv.FormatBool(x))
	}
	return nil
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  looseText   `json:"name"`
		Qty   looseNumber `json:"qty"`
		Price looseNumber `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Item{Name: string(raw.Name), Qty: float64(raw.Qty), Price: float64(raw.Price)}
	return nil
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          looseText    `json:"id"`
		Number      looseNumber  `json:"number"`
		Status      looseText    `json:"status"`
		CreatedAt   looseNumber  `json:"created_at"`
		DecidedAt   looseNumber  `json:"decided_at"`
		Mode        looseText    `json:"mode"`
		Building    looseText    `json:"building"`
		Notes       looseText    `json:"notes"`
		Items       []Item       `json:"items"`
		ItemsTotal  *looseNumber `json:"items_total"`
		DeliveryFee looseNumber  `json:"delivery_fee"`
		FinalTotal  looseNumber  `json:"final_total"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*o = Order{
		ID:          string(raw.ID),
		Number:      int64(raw.Number),
		Status:      Status(raw.Status),
		CreatedAt:   int64(raw.CreatedAt),
		DecidedAt:   int64(raw.DecidedAt),
		Mode:        Mode(raw.Mode),
		Building:    string(raw.Building),
		Notes:       string(raw.Notes),
		Items:       raw.Items,
		DeliveryFee: float64(raw.DeliveryFee),
		FinalTotal:  float64(raw.FinalTotal),
	}
	if raw.ItemsTotal != nil {
		total := float64(*raw.ItemsTotal)
		o.ItemsTotal = &total
	}
	return nil
}
