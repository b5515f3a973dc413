package main

import (
	"context"
	"errors"
	"time"

	"DocketWatch/internal/biz"
	"DocketWatch/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// cronRunTimeout bounds one scheduled sweep. A sweep of a few thousand cases
// at the default rate limit comfortably fits.
const cronRunTimeout = 2 * time.Hour

// newCron registers and starts the daily check schedule. The task itself
// skips overlapping triggers, so a long run simply makes the next tick a
// no-op.
func newCron(task *biz.DailyCheckTask, c *conf.Monitor, logger log.Logger) (*cron.Cron, func(), error) {
	helper := log.NewHelper(logger)

	schedule := c.Cron
	if schedule == "" {
		schedule = "0 0 6 * * *"
	}

	cr := cron.New(cron.WithSeconds())

	_, err := cr.AddFunc(schedule, func() {
		helper.Info("starting scheduled daily check")
		ctx, cancel := context.WithTimeout(context.Background(), cronRunTimeout)
		defer cancel()

		summary, err := task.Run(ctx)
		switch {
		case errors.Is(err, biz.ErrRunInProgress):
			helper.Warn("previous daily check still running, skipping this trigger")
		case err != nil:
			helper.Errorw("scheduled daily check failed", "error", err)
		default:
			helper.Infow("scheduled daily check completed",
				"total", summary.Total,
				"successful", summary.Successful,
				"failed", summary.Failed)
		}
	})
	if err != nil {
		return nil, nil, err
	}

	cr.Start()
	helper.Infof("daily check cron started with schedule %q", schedule)

	cleanup := func() {
		helper.Info("stopping daily check cron")
		<-cr.Stop().Done()
	}
	return cr, cleanup, nil
}
