package order

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/orderdesk/internal/types"
)

const decisionBuffer = 64

type Publisher interface {
	Publish(ctx context.Context, decision types.Decision) error
}

// PublishDecisions forwards decisions to the publisher until ctx is done or
// decisions is closed. A failed publish is logged and the decision dropped;
// there is no retry queue. The returned channel closes when the stage exits.
func PublishDecisions(ctx context.Context, decisions <-chan types.Decision, publisher Publisher) <-chan struct{} {

	done := make(chan struct{})

	go func(ctx context.Context) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				logger.Info("Context cancel, stopping decision publisher")
				return
			case decision, ok := <-decisions:
				if !ok {
					return
				}
				err := publisher.Publish(ctx, decision)
				if err != nil {
					logger.WithFields(logger.Fields{
						"order_id": decision.OrderID,
						"status":   decision.Status,
					}).Errorf("Dropping decision notification: %s", err)
					continue
				}
				logger.Debugf("Published decision %s for order %s", decision.Status, decision.OrderID)
			}
		}
	}(ctx)

	return done
}

// emit hands a decision to the pipeline without ever blocking the operator's
// request.
func (d *Desk) emit(decision types.Decision) {
	if d.decisions == nil {
		return
	}
	select {
	case d.decisions <- decision:
	default:
		logger.Warnf("Decision queue full, notification for order %s dropped", decision.OrderID)
	}
}

// LogPublisher is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, decision types.Decision) error {
	logger.WithFields(logger.Fields{
		"order_id":     decision.OrderID,
		"order_number": decision.Number,
		"status":       decision.Status,
	}).Info("Order decided")
	return nil
}
