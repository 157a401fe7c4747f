package routes

import (
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/zjoart/go-monnify-wallet/internal/auth"
	"github.com/zjoart/go-monnify-wallet/internal/key"
	"github.com/zjoart/go-monnify-wallet/internal/middleware"
	"github.com/zjoart/go-monnify-wallet/internal/otp"
	"github.com/zjoart/go-monnify-wallet/internal/settlement"
	"github.com/zjoart/go-monnify-wallet/internal/transfer"
	"github.com/zjoart/go-monnify-wallet/internal/wallet"
	"github.com/zjoart/go-monnify-wallet/pkg/config"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
	"golang.org/x/time/rate"
)

func RegisterRoutes(r *mux.Router, cfg config.Config, app *App, limiter *middleware.RateLimiter) http.Handler {
	authHandler := auth.NewHandler(app.Auth)
	otpHandler := otp.NewHandler(cfg, app.OTP)
	keyHandler := key.NewHandler(app.Keys)
	walletHandler := wallet.NewHandler(app.Ledger, app.Monnify)
	transferHandler := transfer.NewHandler(app.Transfers)
	webhookHandler := settlement.NewHandler(app.Reconciler, app.Monnify, app.Metrics)

	if limiter == nil {
		limiter = middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	r.Use(middleware.LoggingMiddleware(app.Metrics))

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.BuildSuccessResponse(w, http.StatusOK, "Service is healthy", map[string]string{"env": cfg.Env})
	}).Methods("GET")

	authR := api.PathPrefix("/auth").Subrouter()
	authR.Use(limiter.Limit)
	authR.HandleFunc("/send-otp", otpHandler.SendOTP).Methods("POST")
	authR.HandleFunc("/verify-otp", otpHandler.VerifyOTP).Methods("POST")
	authR.HandleFunc("/verify-identity", authHandler.VerifyIdentity).Methods("POST")
	authR.HandleFunc("/complete-registration", authHandler.CompleteRegistration).Methods("POST")
	authR.HandleFunc("/login", authHandler.Login).Methods("POST")

	jwtAuth := auth.JWTMiddleware(app.Tokens, app.Accounts)
	unifiedAuth := auth.UnifiedAuthMiddleware(app.Tokens, app.Keys, app.Accounts)

	profileR := api.PathPrefix("/auth/profile").Subrouter()
	profileR.Use(jwtAuth)
	profileR.HandleFunc("", authHandler.Profile).Methods("GET")

	// provider callbacks authenticate by signature
	hooksR := api.PathPrefix("/webhooks/monnify").Subrouter()
	hooksR.HandleFunc("", webhookHandler.MonnifyWebhook).Methods("POST")
	hooksR.HandleFunc("/transaction", webhookHandler.TransactionWebhook).Methods("POST")
	hooksR.HandleFunc("/collection", webhookHandler.CollectionWebhook).Methods("POST")
	hooksR.HandleFunc("/transfer", webhookHandler.TransferWebhook).Methods("POST")

	api.HandleFunc("/banks", walletHandler.GetBanks).Methods("GET")

	keysR := api.PathPrefix("/keys").Subrouter()
	keysR.Use(jwtAuth)
	keysR.HandleFunc("", keyHandler.ListAPIKeys).Methods("GET")
	keysR.HandleFunc("/create", keyHandler.CreateAPIKey).Methods("POST")
	keysR.HandleFunc("/rollover", keyHandler.RolloverAPIKey).Methods("POST")
	keysR.HandleFunc("/{id}", keyHandler.RevokeAPIKey).Methods("DELETE")

	walletR := api.PathPrefix("/wallet").Subrouter()
	walletR.Use(unifiedAuth)

	syncR := walletR.PathPrefix("/transactions/sync").Subrouter()
	syncR.Use(auth.RequirePermission(key.PermissionReconcile))
	syncR.HandleFunc("", webhookHandler.SyncTransactions).Methods("POST")

	readR := walletR.PathPrefix("").Subrouter()
	readR.Use(auth.RequirePermission(key.PermissionRead))
	readR.HandleFunc("", walletHandler.GetWallet).Methods("GET")
	readR.HandleFunc("/balance/refresh", walletHandler.RefreshBalance).Methods("GET")
	readR.HandleFunc("/transactions", walletHandler.GetTransactions).Methods("GET")
	readR.HandleFunc("/transactions/{id}", walletHandler.GetTransaction).Methods("GET")
	readR.HandleFunc("/statement", walletHandler.GetStatement).Methods("GET")
	readR.HandleFunc("/validate-account", walletHandler.ValidateAccount).Methods("POST")

	transfersR := api.PathPrefix("/transfers").Subrouter()
	transfersR.Use(unifiedAuth)
	transfersR.Handle("/bank", auth.RequirePermission(key.PermissionTransfer)(http.HandlerFunc(transferHandler.TransferToBank))).Methods("POST")
	transfersR.Handle("/bank/{reference}", auth.RequirePermission(key.PermissionRead)(http.HandlerFunc(transferHandler.GetTransferStatus))).Methods("GET")
	transfersR.Handle("/calculate-fee", auth.RequirePermission(key.PermissionRead)(http.HandlerFunc(transferHandler.CalculateFee))).Methods("POST")

	if cfg.Env != "production" {

		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.Fields{"error": err.Error()})
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			modifiedContent := strings.ReplaceAll(string(content), "{{BASE_URL}}", cfg.Host)
			modifiedContent = strings.ReplaceAll(modifiedContent, "{{MIN_TRANSACTION_AMOUNT}}", cfg.MinTransactionAmount.StringFixed(2))

			w.Header().Set("Content-Type", "application/yaml")
			w.Write([]byte(modifiedContent))
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "x-api-key", middleware.RequestIDHeader}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader, "Retry-After"}),
	)

	return corsObj(r)
}
