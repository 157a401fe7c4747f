package settlement

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
)

const (
	staleTransferAge   = 10 * time.Minute
	staleTransferBatch = 50
)

// SchedulePolling re-checks transfers stuck in processing on schedule.
func SchedulePolling(c *cron.Cron, r *Reconciler, schedule string) (cron.EntryID, error) {
	return c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		settled, err := r.PollStaleTransfers(ctx, staleTransferAge, staleTransferBatch)
		if err != nil {
			logger.Error("Stale transfer poll failed", logger.WithError(err))
			return
		}
		if settled > 0 {
			logger.Info("Stale transfers settled", logger.Fields{"count": settled})
		}
	})
}
