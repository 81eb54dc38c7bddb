package order

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wellywell/orderdesk/internal/types"
	"github.com/wellywell/orderdesk/internal/validate"
)

const MissingStatus = "missing"

// StatusView is everything a polling client learns about an order.
// OrderNumber is only set for approved orders.
type StatusView struct {
	Status      string `json:"status"`
	OrderNumber any    `json:"order_number,omitempty"`
}

// ProjectStatus maps an order, or nil for an unknown id, to its client view.
// Approved records from before numbering report their id instead.
func ProjectStatus(o *types.Order) StatusView {
	if o == nil {
		return StatusView{Status: MissingStatus}
	}
	switch o.Status {
	case types.ApprovedStatus:
		if o.Number > 0 {
			return StatusView{Status: string(types.ApprovedStatus), OrderNumber: o.Number}
		}
		return StatusView{Status: string(types.ApprovedStatus), OrderNumber: o.ID}
	case types.RejectedStatus:
		return StatusView{Status: string(types.RejectedStatus)}
	default:
		return StatusView{Status: string(types.PendingStatus)}
	}
}

type AdminLine struct {
	Name  string          `json:"name"`
	Qty   float64         `json:"qty"`
	Price float64         `json:"price"`
	Total decimal.Decimal `json:"total"`
}

// AdminOrder is one row of the operator's list.
type AdminOrder struct {
	ID            string          `json:"id"`
	Number        int64           `json:"number,omitempty"`
	Status        types.Status    `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	DecidedAt     *time.Time      `json:"decided_at,omitempty"`
	Mode          types.Mode      `json:"mode"`
	Building      string          `json:"building"`
	Notes         string          `json:"notes"`
	Lines         []AdminLine     `json:"lines"`
	ItemsTotal    *float64        `json:"items_total,omitempty"`
	DeliveryFee   float64         `json:"delivery_fee"`
	FinalTotal    float64         `json:"final_total"`
	ComputedTotal decimal.Decimal `json:"computed_items_total"`
}

func (a AdminOrder) Pending() bool {
	return a.Status == types.PendingStatus
}

// TotalsMismatch reports whether the client-supplied items total disagrees
// with the lines. Orders submitted without a total are never flagged. The
// admin page highlights such orders.
func (a AdminOrder) TotalsMismatch() bool {
	if a.ItemsTotal == nil {
		return false
	}
	return !decimal.NewFromFloat(*a.ItemsTotal).Round(2).Equal(a.ComputedTotal.Round(2))
}

func adminOrder(o *types.Order) AdminOrder {
	view := AdminOrder{
		ID:            o.ID,
		Number:        o.Number,
		Status:        o.Status,
		CreatedAt:     o.Created(),
		Mode:          o.Mode,
		Building:      o.Building,
		Notes:         o.Notes,
		Lines:         make([]AdminLine, 0, len(o.Items)),
		ItemsTotal:    o.ItemsTotal,
		DeliveryFee:   o.DeliveryFee,
		FinalTotal:    o.FinalTotal,
		ComputedTotal: validate.ItemsTotal(o.Items),
	}
	if o.DecidedAt > 0 {
		decided := time.UnixMilli(o.DecidedAt)
		view.DecidedAt = &decided
	}
	for _, item := range o.Items {
		view.Lines = append(view.Lines, AdminLine{
			Name:  item.Name,
			Qty:   item.Qty,
			Price: item.Price,
			Total: validate.LineTotal(item),
		})
	}
	return view
}

// buildAdminList sorts newest first. Equal timestamps fall back to number
// and then id, both descending, so one snapshot always renders the same way.
func buildAdminList(orders []*types.Order) []AdminOrder {
	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		if a.Number != b.Number {
			return a.Number > b.Number
		}
		return a.ID > b.ID
	})

	list := make([]AdminOrder, 0, len(orders))
	for _, o := range orders {
		list = append(list, adminOrder(o))
	}
	return list
}
