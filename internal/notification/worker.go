package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zjoart/go-monnify-wallet/pkg/events"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/phone"
)

const (
	maxRetries  = 3
	popTimeout  = 5 * time.Second
	retryWindow = time.Second
)

// Worker drains the Redis notification queue and hands each message to the
// SMS sender.
type Worker struct {
	RedisClient *events.RedisClient
	Sender      Sender
	backoff     time.Duration
}

func NewWorker(redisClient *events.RedisClient, sender Sender) *Worker {
	return &Worker{RedisClient: redisClient, Sender: sender, backoff: retryWindow}
}

// Start runs the worker until ctx is cancelled. done is closed on exit.
func (w *Worker) Start(ctx context.Context) (done <-chan struct{}) {
	ch := make(chan struct{})
	logger.Info("Starting notification worker...", logger.Fields{"sender": w.Sender.Name()})
	go func() {
		defer close(ch)
		w.processEvents(ctx)
	}()
	return ch
}

func (w *Worker) processEvents(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := w.processNext(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("NotificationWorker: queue read failed", logger.WithError(err))
			sleep(ctx, w.backoff)
		}
	}
}

// processNext handles at most one queued message. It reports whether one was
// taken off the queue.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	raw, err := w.RedisClient.Pop(ctx, events.NotificationQueue, popTimeout)
	if errors.Is(err, events.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.handle(ctx, raw)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, raw []byte) {
	var env events.Envelope
	var n Notification
	if err := json.Unmarshal(raw, &env); err != nil || json.Unmarshal(env.Body, &n) != nil {
		logger.Error("NotificationWorker: Failed to unmarshal event", logger.Fields{"data": string(raw)})
		w.moveToDLQ(ctx, raw)
		return
	}

	for i := 0; i < maxRetries; i++ {
		err := w.Sender.Send(ctx, n.Phone, n.Message)
		if err == nil {
			logger.Info("NotificationWorker: Delivered", logger.Fields{
				"type":              string(n.Type),
				logger.PhoneKey:     phone.Mask(n.Phone),
				logger.ReferenceKey: n.Reference,
			})
			return
		}

		logger.Warn("NotificationWorker: Failed to deliver, retrying", logger.Merge(logger.WithError(err), logger.Fields{
			"type":    string(n.Type),
			"attempt": i + 1,
		}))
		if !sleep(ctx, time.Duration(i+1)*w.backoff) {
			break
		}
	}

	logger.Error("NotificationWorker: Max retries exhausted, moving to DLQ", logger.Fields{"type": string(n.Type), logger.ReferenceKey: n.Reference})
	env.Attempts += maxRetries
	if failed, err := json.Marshal(env); err == nil {
		raw = failed
	}
	w.moveToDLQ(ctx, raw)
}

func (w *Worker) moveToDLQ(ctx context.Context, data []byte) {
	// the request context may already be gone during shutdown
	if err := w.RedisClient.PushToDLQ(context.WithoutCancel(ctx), data); err != nil {
		logger.Error("NotificationWorker: Failed to push to DLQ", logger.WithError(err))
	}
}

// sleep waits for d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
