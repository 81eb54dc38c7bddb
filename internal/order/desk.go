// Package order implements the order desk: submission, status polling and
// the operator's approve/reject decisions on top of a record store and a
// sequence allocator.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/orderdesk/internal/store"
	"github.com/wellywell/orderdesk/internal/types"
	"github.com/wellywell/orderdesk/internal/validate"
)

type Sequencer interface {
	Next(ctx context.Context) (int64, error)
}

type Desk struct {
	records   *store.Records[types.Order]
	seq       Sequencer
	locks     *keyedMutex
	decisions chan<- types.Decision
	now       func() time.Time
}

// NewDesk wires the desk. decisions may be nil when nobody listens for
// approve/reject events.
func NewDesk(records store.RecordStore, seq Sequencer, decisions chan<- types.Decision) *Desk {
	return &Desk{
		records:   store.NewRecords[types.Order](records),
		seq:       seq,
		locks:     newKeyedMutex(),
		decisions: decisions,
		now:       time.Now,
	}
}

// NewDecisionQueue returns a buffered channel suitable for NewDesk and
// PublishDecisions.
func NewDecisionQueue() chan types.Decision {
	return make(chan types.Decision, decisionBuffer)
}

// Submit validates and persists a new pending order. Nothing is written and
// no number is consumed when validation fails.
func (d *Desk) Submit(ctx context.Context, sub *validate.Submission) (*types.Order, error) {
	if err := validate.ValidateSubmission(sub); err != nil {
		return nil, err
	}
	for _, discrepancy := range validate.CheckTotals(sub) {
		logger.WithField("field", discrepancy.Field).Warnf("Submitted totals disagree with items: %s", discrepancy)
	}

	for {
		number, err := d.seq.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocating order number: %w", err)
		}
		o := &types.Order{
			ID:         types.OrderID(number),
			Number:     number,
			Status:     types.PendingStatus,
			CreatedAt:  types.Millis(d.now()),
			Mode:       sub.Mode,
			Building:   sub.Building,
			Notes:      sub.Notes,
			Items:      sub.Items,
			ItemsTotal: sub.ItemsTotal,
		}
		if sub.DeliveryFee != nil {
			o.DeliveryFee = *sub.DeliveryFee
		}
		if sub.FinalTotal != nil {
			o.FinalTotal = *sub.FinalTotal
		}

		created, err := d.create(ctx, o)
		if err != nil {
			return nil, err
		}
		if !created {
			// the counter was reset or damaged and handed out a used number
			logger.Warnf("Order %s already exists, allocating another number", o.ID)
			continue
		}
		logger.WithFields(logger.Fields{"order_id": o.ID, "mode": o.Mode, "items": len(o.Items)}).Info("Order submitted")
		return o, nil
	}
}

func (d *Desk) create(ctx context.Context, o *types.Order) (bool, error) {
	unlock := d.locks.Lock(o.ID)
	defer unlock()

	_, err := d.records.Get(ctx, o.ID)
	switch {
	case err == nil, errors.Is(err, store.ErrCorrupt):
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	if err := d.records.Put(ctx, o.ID, o); err != nil {
		return false, err
	}
	return true, nil
}

// Check returns the polling view of an order. Unknown ids are reported as
// missing, not as an error.
func (d *Desk) Check(ctx context.Context, id string) (StatusView, error) {
	o, err := d.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProjectStatus(nil), nil
		}
		return StatusView{}, err
	}
	return ProjectStatus(o), nil
}

// Act applies an operator decision. Unknown ids and transitions that are not
// allowed are no-ops; only storage failures are returned. The result tells
// whether the order changed.
func (d *Desk) Act(ctx context.Context, id string, act types.Action) (bool, error) {
	unlock := d.locks.Lock(id)
	defer unlock()

	o, changed, err := d.records.Update(ctx, id, func(o *types.Order) bool {
		return o.Decide(act, d.now())
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Debugf("Ignoring %s for unknown order %q", act, id)
			return false, nil
		}
		return false, err
	}
	if !changed {
		logger.Debugf("Ignoring %s for order %s in status %s", act, id, o.Status)
		return false, nil
	}

	if o.ID == "" {
		o.ID = id
	}
	logger.WithFields(logger.Fields{"order_id": id, "status": o.Status}).Info("Order decided")
	d.emit(types.Decision{
		OrderID:   o.ID,
		Number:    o.Number,
		Status:    o.Status,
		DecidedAt: time.UnixMilli(o.DecidedAt),
	})
	return true, nil
}

// AdminList returns every readable order, newest first. Corrupt records are
// logged and left out.
func (d *Desk) AdminList(ctx context.Context) ([]AdminOrder, error) {
	orders, err := d.list(ctx)
	if err != nil {
		return nil, err
	}
	return buildAdminList(orders), nil
}

// Backlog counts pending orders and reports the oldest one's creation time.
func (d *Desk) Backlog(ctx context.Context) (int, time.Time, error) {
	orders, err := d.list(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}
	var (
		count  int
		oldest int64
	)
	for _, o := range orders {
		if o.Status != types.PendingStatus {
			continue
		}
		count++
		if oldest == 0 || o.CreatedAt < oldest {
			oldest = o.CreatedAt
		}
	}
	if count == 0 {
		return 0, time.Time{}, nil
	}
	return count, time.UnixMilli(oldest), nil
}

func (d *Desk) list(ctx context.Context) ([]*types.Order, error) {
	records, err := d.records.List(ctx, func(id string, err error) {
		logger.Errorf("Skipping unreadable order %s: %s", id, err)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]*types.Order, 0, len(records))
	for id, o := range records {
		if o.ID == "" {
			o.ID = id
		}
		orders = append(orders, o)
	}
	return orders, nil
}
