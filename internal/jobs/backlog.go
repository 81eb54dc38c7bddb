// Package jobs runs periodic maintenance reports over the order desk.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	logger "github.com/sirupsen/logrus"
)

const runTimeout = 30 * time.Second

type BacklogSource interface {
	Backlog(ctx context.Context) (int, time.Time, error)
}

// BacklogJob logs how many orders wait for a decision and how long the
// oldest one has been waiting.
type BacklogJob struct {
	source   BacklogSource
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

func NewBacklogJob(source BacklogSource, schedule string) *BacklogJob {
	return &BacklogJob{
		source:   source,
		schedule: schedule,
		cron:     cron.New(),
		now:      time.Now,
	}
}

func (j *BacklogJob) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		j.Run(ctx)
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	logger.Infof("Backlog job started (%s)", j.schedule)
	return nil
}

// Run produces one report.
func (j *BacklogJob) Run(ctx context.Context) {
	count, oldest, err := j.source.Backlog(ctx)
	if err != nil {
		logger.Errorf("Backlog job failed: %s", err)
		return
	}
	if count == 0 {
		logger.Info("No orders waiting for a decision")
		return
	}
	logger.WithFields(logger.Fields{
		"pending":    count,
		"oldest_age": j.now().Sub(oldest).Round(time.Second).String(),
	}).Info("Orders waiting for a decision")
}

// Stop waits for a running report to finish.
func (j *BacklogJob) Stop() {
	<-j.cron.Stop().Done()
	logger.Info("Backlog job stopped")
}
