package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/zjoart/go-monnify-wallet/cmd/routes"
	"github.com/zjoart/go-monnify-wallet/internal/middleware"
	"github.com/zjoart/go-monnify-wallet/internal/notification"
	"github.com/zjoart/go-monnify-wallet/internal/otp"
	"github.com/zjoart/go-monnify-wallet/internal/settlement"
	"github.com/zjoart/go-monnify-wallet/pkg/config"
	"github.com/zjoart/go-monnify-wallet/pkg/database"
	"github.com/zjoart/go-monnify-wallet/pkg/events"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/metrics"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.Env)

	if cfg.AutoMigrate {
		if err := database.Migrate(cfg.DBUrl, "up"); err != nil {
			logger.Fatal("Failed to apply migrations", logger.WithError(err))
		}
	}
	db := database.Connect(cfg.DBUrl)

	m, err := metrics.New(nil)
	if err != nil {
		logger.Fatal("Failed to register metrics", logger.WithError(err))
	}

	redisClient := events.NewRedisClient(cfg)

	env, err := monnify.ParseEnvironment(cfg.Monnify.Environment)
	if err != nil {
		logger.Fatal("Invalid Monnify environment", logger.WithError(err))
	}
	client, err := monnify.New(env, monnify.Config{
		APIKey:       cfg.Monnify.APIKey,
		SecretKey:    cfg.Monnify.SecretKey,
		ContractCode: cfg.Monnify.ContractCode,
		BaseURL:      cfg.Monnify.BaseURL,
		Timeout:      cfg.Monnify.Timeout,
	}, monnify.NewRedisCache(redisClient.Client), monnify.WithMetrics(m))
	if err != nil {
		logger.Fatal("Failed to build Monnify client", logger.WithError(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var publisher events.Publisher
	var workerDone <-chan struct{}
	switch cfg.NotificationTransport {
	case "amqp":
		p, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			logger.Error("Failed to connect to AMQP, notifications disabled", logger.WithError(err))
			publisher = events.NopPublisher{}
			break
		}
		publisher = p
	default:
		sender, err := notification.NewSender(cfg.SMS)
		if err != nil {
			logger.Fatal("Failed to build SMS sender", logger.WithError(err))
		}
		publisher = events.NewRedisPublisher(redisClient)

		// start background worker
		workerDone = notification.NewWorker(redisClient, sender).Start(ctx)
	}
	defer publisher.Close()

	app := routes.NewApp(cfg, db, redisClient, client, publisher, m)

	scheduler := cron.New()
	if _, err := otp.ScheduleCleanup(scheduler, app.OTP, cfg.OTPPurgeSchedule); err != nil {
		logger.Fatal("Invalid OTP purge schedule", logger.WithError(err))
	}
	if _, err := settlement.SchedulePolling(scheduler, app.Reconciler, cfg.TransferPollSchedule); err != nil {
		logger.Fatal("Invalid transfer poll schedule", logger.WithError(err))
	}
	scheduler.Start()

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	go limiter.Run(ctx)

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(r, cfg, app, limiter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env, "monnify": string(env)})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	<-scheduler.Stop().Done()
	if workerDone != nil {
		<-workerDone
	}
	logger.Info("Server gracefully shut down")
}
