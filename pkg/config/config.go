package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Env            string
	Port           string
	Host           string
	AllowedOrigins []string

	DBUrl       string
	AutoMigrate bool

	RedisURL      string
	RedisPassword string

	JWTSecret     string
	JWTExpiry     time.Duration
	MaxActiveKeys int

	Monnify MonnifyConfig

	MinTransactionAmount decimal.Decimal
	BalanceSyncMode      string

	OTPReturnToClient bool
	OTPPurgeSchedule  string

	TransferPollSchedule string

	NotificationTransport string
	AMQPURL               string
	SMS                   SMSConfig

	RateLimitRPS   float64
	RateLimitBurst int
}

type MonnifyConfig struct {
	Environment  string
	BaseURL      string
	APIKey       string
	SecretKey    string
	ContractCode string
	Timeout      time.Duration
}

type SMSConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	SenderID string
}

func LoadConfig() Config {
	godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	minAmount, err := decimal.NewFromString(v.GetString("MIN_TRANSACTION_AMOUNT"))
	if err != nil {
		panic("MIN_TRANSACTION_AMOUNT must be a valid amount")
	}

	syncMode := strings.ToLower(v.GetString("BALANCE_SYNC_MODE"))
	if syncMode != "audit" && syncMode != "override" {
		panic("BALANCE_SYNC_MODE must be audit or override")
	}

	env := v.GetString("ENV")

	return Config{
		Env:            env,
		Port:           v.GetString("PORT"),
		Host:           v.GetString("HOST"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),

		DBUrl:       mustGet(v, "DATABASE_URL"),
		AutoMigrate: v.GetBool("AUTO_MIGRATE"),

		RedisURL:      mustGet(v, "REDIS_URL"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),

		JWTSecret:     mustGet(v, "JWT_SECRET"),
		JWTExpiry:     v.GetDuration("JWT_EXPIRY"),
		MaxActiveKeys: v.GetInt("MAX_ACTIVE_KEYS"),

		Monnify: MonnifyConfig{
			Environment:  strings.ToLower(v.GetString("MONNIFY_ENVIRONMENT")),
			BaseURL:      v.GetString("MONNIFY_BASE_URL"),
			APIKey:       mustGet(v, "MONNIFY_API_KEY"),
			SecretKey:    mustGet(v, "MONNIFY_SECRET_KEY"),
			ContractCode: mustGet(v, "MONNIFY_CONTRACT_CODE"),
			Timeout:      v.GetDuration("MONNIFY_TIMEOUT"),
		},

		MinTransactionAmount: minAmount,
		BalanceSyncMode:      syncMode,

		// never echo codes back in production
		OTPReturnToClient: v.GetBool("OTP_RETURN_TO_CLIENT") && env != "production",
		OTPPurgeSchedule:  v.GetString("OTP_PURGE_SCHEDULE"),

		TransferPollSchedule: v.GetString("TRANSFER_POLL_SCHEDULE"),

		NotificationTransport: strings.ToLower(v.GetString("NOTIFICATION_TRANSPORT")),
		AMQPURL:               v.GetString("AMQP_URL"),
		SMS: SMSConfig{
			Provider: strings.ToLower(v.GetString("SMS_PROVIDER")),
			BaseURL:  v.GetString("SMS_BASE_URL"),
			APIKey:   v.GetString("SMS_API_KEY"),
			SenderID: v.GetString("SMS_SENDER_ID"),
		},

		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("HOST", "http://localhost:8080")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("JWT_EXPIRY", "24h")
	v.SetDefault("MAX_ACTIVE_KEYS", 5)
	v.SetDefault("MONNIFY_ENVIRONMENT", "sandbox")
	v.SetDefault("MONNIFY_TIMEOUT", "30s")
	v.SetDefault("MIN_TRANSACTION_AMOUNT", "100")
	v.SetDefault("BALANCE_SYNC_MODE", "audit")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("OTP_PURGE_SCHEDULE", "@hourly")
	v.SetDefault("TRANSFER_POLL_SCHEDULE", "@every 5m")
	v.SetDefault("NOTIFICATION_TRANSPORT", "redis")
	v.SetDefault("SMS_PROVIDER", "log")
	v.SetDefault("SMS_SENDER_ID", "Hijaz")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
}

func mustGet(v *viper.Viper, key string) string {
	if value := v.GetString(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
