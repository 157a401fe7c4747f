package routes

import (
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/internal/auth"
	"github.com/zjoart/go-monnify-wallet/internal/key"
	"github.com/zjoart/go-monnify-wallet/internal/kyc"
	"github.com/zjoart/go-monnify-wallet/internal/notification"
	"github.com/zjoart/go-monnify-wallet/internal/otp"
	"github.com/zjoart/go-monnify-wallet/internal/settlement"
	"github.com/zjoart/go-monnify-wallet/internal/transfer"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/config"
	"github.com/zjoart/go-monnify-wallet/pkg/events"
	"github.com/zjoart/go-monnify-wallet/pkg/metrics"
	"github.com/zjoart/go-monnify-wallet/pkg/monnify"
	"gorm.io/gorm"
)

// App holds the services shared by the HTTP routes and the background jobs.
type App struct {
	Accounts   account.Repository
	Tokens     *auth.Tokens
	Keys       *key.Service
	OTP        *otp.Service
	Auth       *auth.Service
	Ledger     *wallet.Ledger
	Reconciler *settlement.Reconciler
	Transfers  *transfer.Service
	Monnify    *monnify.Client
	Metrics    *metrics.Metrics
}

func NewApp(cfg config.Config, db *gorm.DB, redisClient *events.RedisClient, client *monnify.Client, publisher events.Publisher, m *metrics.Metrics) *App {
	accounts := account.NewRepository(db)
	walletStore := wallet.NewRepository(db)
	dispatcher := notification.NewDispatcher(publisher)

	ledger := wallet.NewLedger(walletStore,
		wallet.WithMetrics(m),
		wallet.WithSyncMode(wallet.SyncMode(cfg.BalanceSyncMode)),
	)
	reconciler := settlement.NewReconciler(ledger, client, dispatcher, redisClient, m)

	otpService := otp.NewService(otp.NewRepository(db), accounts, dispatcher)
	bridge := kyc.NewBridge(client, accounts, monnify.NewRedisCache(redisClient.Client))
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiry)

	return &App{
		Accounts:   accounts,
		Tokens:     tokens,
		Keys:       key.NewService(key.NewRepository(db), cfg.MaxActiveKeys),
		OTP:        otpService,
		Auth:       auth.NewService(accounts, walletStore, auth.NewUnitOfWork(db), otpService, bridge, dispatcher, tokens),
		Ledger:     ledger,
		Reconciler: reconciler,
		Transfers:  transfer.NewService(ledger, client, reconciler, cfg.MinTransactionAmount),
		Monnify:    client,
		Metrics:    m,
	}
}
