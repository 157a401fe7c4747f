package otp

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
)

// ScheduleCleanup registers the purge of stale challenges on c.
func ScheduleCleanup(c *cron.Cron, svc *Service, schedule string) (cron.EntryID, error) {
	return c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := svc.Purge(ctx); err != nil {
			logger.Error("OTP cleanup failed", logger.WithError(err))
		}
	})
}
