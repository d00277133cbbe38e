package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	SMTP         SMTPConfig
	Midtrans     MidtransConfig
	Chain        ChainConfig
	Billing      BillingConfig
	Verification VerificationConfig
	Tracing      TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	AuditLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
	OpsAlertEmail      string
}

type DatabaseConfig struct {
	Driver     string // "postgres" or "sqlite"
	Connection string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

type MidtransConfig struct {
	ServerKey    string
	ClientKey    string
	IsProduction bool
	GrossAmount  int64 // charged in the fiat currency below
	Currency     string
	FinishURL    string
	Timeout      time.Duration
}

type ChainConfig struct {
	RPCURL           string
	ChainID          int64
	StablecoinAddr   string
	TreasuryAddr     string
	TokenDecimals    int32
	Timeout          time.Duration
	WidgetBaseURL    string
	WidgetAppID      string
	WidgetCoinCode   string
	WidgetFiatAmount string
}

type BillingConfig struct {
	PlanSlug     string
	PriceUsdc    decimal.Decimal
	FeeTolerance decimal.Decimal
	Period       time.Duration
}

type VerificationConfig struct {
	PublicStrategies  []string // order_id, tx_hash, timestamp
	RateLimitWindow   time.Duration
	RateLimitMax      int
	PendingLookback   time.Duration
	PendingListWindow time.Duration
	TxMatchWindow     time.Duration
	TimestampWindow   time.Duration
	LockTTL           time.Duration
	HookTimeout       time.Duration
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			AuditLogFilePath:   getEnv("AUDIT_LOG_FILE_PATH", "logs/payment_audit.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			OpsAlertEmail:      getEnv("OPS_ALERT_EMAIL", ""),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "Bounty Courses"),
		},
		Midtrans: MidtransConfig{
			ServerKey:    getEnv("MIDTRANS_SERVER_KEY", ""),
			ClientKey:    getEnv("MIDTRANS_CLIENT_KEY", ""),
			IsProduction: getEnvAsBool("MIDTRANS_IS_PRODUCTION", false),
			GrossAmount:  int64(getEnvAsInt("MIDTRANS_GROSS_AMOUNT", 160000)),
			Currency:     getEnv("MIDTRANS_CURRENCY", "IDR"),
			FinishURL:    getEnv("MIDTRANS_FINISH_URL", "http://localhost:5173/subscription?payment=finished"),
			Timeout:      getEnvAsDuration("MIDTRANS_TIMEOUT", 10*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:           getEnv("CHAIN_RPC_URL", ""),
			ChainID:          int64(getEnvAsInt("CHAIN_ID", 137)),
			StablecoinAddr:   getEnv("CHAIN_STABLECOIN_ADDRESS", ""),
			TreasuryAddr:     getEnv("CHAIN_TREASURY_ADDRESS", ""),
			TokenDecimals:    int32(getEnvAsInt("CHAIN_TOKEN_DECIMALS", 6)),
			Timeout:          getEnvAsDuration("CHAIN_RPC_TIMEOUT", 15*time.Second),
			WidgetBaseURL:    getEnv("CRYPTO_WIDGET_URL", "https://onramp.money/main/buy/"),
			WidgetAppID:      getEnv("CRYPTO_WIDGET_APP_ID", ""),
			WidgetCoinCode:   getEnv("CRYPTO_WIDGET_COIN", "usdc"),
			WidgetFiatAmount: getEnv("CRYPTO_WIDGET_FIAT_AMOUNT", ""),
		},
		Billing: BillingConfig{
			PlanSlug:     getEnv("SUBSCRIPTION_PLAN", "annual_course_access"),
			PriceUsdc:    getEnvAsDecimal("SUBSCRIPTION_PRICE_USDC", decimal.NewFromInt(10)),
			FeeTolerance: getEnvAsDecimal("SUBSCRIPTION_FEE_TOLERANCE", decimal.RequireFromString("0.5")),
			Period:       getEnvAsDuration("SUBSCRIPTION_PERIOD", 365*24*time.Hour),
		},
		Verification: VerificationConfig{
			PublicStrategies:  getEnvAsList("VERIFY_PUBLIC_STRATEGIES", []string{"order_id"}),
			RateLimitWindow:   getEnvAsDuration("VERIFY_RATE_LIMIT_WINDOW", 10*time.Minute),
			RateLimitMax:      getEnvAsInt("VERIFY_RATE_LIMIT_MAX", 5),
			PendingLookback:   getEnvAsDuration("VERIFY_PENDING_LOOKBACK", 24*time.Hour),
			PendingListWindow: getEnvAsDuration("VERIFY_PENDING_LIST_WINDOW", 48*time.Hour),
			TxMatchWindow:     getEnvAsDuration("VERIFY_TX_MATCH_WINDOW", 10*time.Minute),
			TimestampWindow:   getEnvAsDuration("VERIFY_TIMESTAMP_WINDOW", 5*time.Minute),
			LockTTL:           getEnvAsDuration("VERIFY_LOCK_TTL", 30*time.Second),
			HookTimeout:       getEnvAsDuration("ACTIVATION_HOOK_TIMEOUT", 15*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	strValue := getEnv(key, "")
	if value, err := decimal.NewFromString(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
