package types

import (
	"strconv"
	"time"
)

type Status string

const (
	PendingStatus  Status = "pending"
	ApprovedStatus Status = "approved"
	RejectedStatus Status = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == ApprovedStatus || s == RejectedStatus
}

// Approve returns the status after an approve action and whether the order
// record has to be rewritten. Re-approving is a successful no-op, approving a
// rejected order leaves it rejected.
func (s Status) Approve() (Status, bool) {
	if s == PendingStatus {
		return ApprovedStatus, true
	}
	return s, false
}

// Reject returns the status after a reject action. Only pending orders can be
// rejected.
func (s Status) Reject() (Status, bool) {
	if s == PendingStatus {
		return RejectedStatus, true
	}
	return s, false
}

type Mode string

const (
	PickupMode   Mode = "pickup"
	DeliveryMode Mode = "delivery"
)

func (m Mode) Valid() bool {
	return m == PickupMode || m == DeliveryMode
}

type Item struct {
	Name  string  `json:"name"`
	Qty   float64 `json:"qty"`
	Price float64 `json:"price"`
}

// Order is the persisted order record. CreatedAt and DecidedAt are epoch
// milliseconds, the format the data directory has always used. Decoding is
// lenient, see legacy.go.
type Order struct {
	ID          string   `json:"id"`
	Number      int64    `json:"number,omitempty"`
	Status      Status   `json:"status"`
	CreatedAt   int64    `json:"created_at"`
	DecidedAt   int64    `json:"decided_at,omitempty"`
	Mode        Mode     `json:"mode"`
	Building    string   `json:"building"`
	Notes       string   `json:"notes"`
	Items       []Item   `json:"items"`
	// nil when the client sent no items total
	ItemsTotal  *float64 `json:"items_total,omitempty"`
	DeliveryFee float64  `json:"delivery_fee"`
	FinalTotal  float64  `json:"final_total"`
}

// OrderID is the record key of a numbered order.
func OrderID(number int64) string {
	return strconv.FormatInt(number, 10)
}

func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

func (o *Order) Created() time.Time {
	return time.UnixMilli(o.CreatedAt)
}

// Decide applies an approve or reject action. It returns false when the
// order is left untouched.
func (o *Order) Decide(act Action, now time.Time) bool {
	var (
		next    Status
		changed bool
	)
	switch act {
	case ApproveAction:
		next, changed = o.Status.Approve()
	case RejectAction:
		next, changed = o.Status.Reject()
	default:
		return false
	}
	if !changed {
		return false
	}
	o.Status = next
	o.DecidedAt = Millis(now)
	return true
}

type Action string

const (
	ApproveAction Action = "approve"
	RejectAction  Action = "reject"
)

// ParseAction accepts the operator link values. "rejected" is kept as an
// alias of "reject".
func ParseAction(s string) (Action, bool) {
	switch s {
	case "approve":
		return ApproveAction, true
	case "reject", "rejected":
		return RejectAction, true
	}
	return "", false
}

// Decision is emitted once an order leaves pending.
type Decision struct {
	OrderID   string    `json:"order_id"`
	Number    int64     `json:"order_number,omitempty"`
	Status    Status    `json:"status"`
	DecidedAt time.Time `json:"decided_at"`
}
