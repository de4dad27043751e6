package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	Timezone      string

	// HTTP surface
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int

	// Storage
	StoreBackend  string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Background work
	QueueBackend         string
	QueueDepth           int
	WorkerCount          int
	JobTimeout           time.Duration
	ConversationQueueURL string
	ProcessedEventTTL    time.Duration

	// AWS (SQS, Bedrock, SES)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Language model
	LLMProvider         string
	LLMFallbackProvider string
	LLMTimeout          time.Duration
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIBaseURL       string
	GeminiAPIKey        string
	GeminiModel         string
	BedrockModelID      string
	HistoryTurns        int
	WidenStrategy       string
	WidenMaxDays        int

	// UazAPI (WhatsApp gateway)
	UazapiBaseURL            string
	UazapiToken              string
	UazapiInstanceTokensJSON string
	UazapiTimeout            time.Duration

	// Tenancy
	InstanceMapJSON    string
	InstanceCacheTTL   time.Duration
	ClinicConfigJSON   string
	DirectoryCacheTTL  time.Duration
	ClinicorpBaseURL   string
	ClinicorpAuthURL   string
	ClinicorpTimeout   time.Duration
	ClinicorpForceMock bool

	// Escalation e-mail
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Timezone:      getEnv("TIMEZONE", "America/Sao_Paulo"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 0),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 50),

		StoreBackend:  strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "memory"))),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		QueueBackend:         strings.ToLower(strings.TrimSpace(getEnv("QUEUE_BACKEND", "memory"))),
		QueueDepth:           getEnvAsInt("QUEUE_DEPTH", 256),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 4),
		JobTimeout:           getEnvAsDuration("JOB_TIMEOUT", 90*time.Second),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		ProcessedEventTTL:    getEnvAsDuration("PROCESSED_EVENT_TTL", 72*time.Hour),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		HistoryTurns:        getEnvAsInt("HISTORY_TURNS", 6),
		WidenStrategy:       strings.ToLower(strings.TrimSpace(getEnv("WIDEN_STRATEGY", "none"))),
		WidenMaxDays:        getEnvAsInt("WIDEN_MAX_DAYS", 3),

		UazapiBaseURL:            getEnv("UAZAPI_BASE_URL", "https://api.uazapi.com"),
		UazapiToken:              getEnv("UAZAPI_TOKEN", ""),
		UazapiInstanceTokensJSON: getEnv("UAZAPI_INSTANCE_TOKENS_JSON", ""),
		UazapiTimeout:            getEnvAsDuration("UAZAPI_TIMEOUT", 15*time.Second),

		InstanceMapJSON:    getEnv("INSTANCE_MAP_JSON", ""),
		InstanceCacheTTL:   getEnvAsDuration("INSTANCE_CACHE_TTL", 5*time.Minute),
		ClinicConfigJSON:   getEnv("CLINIC_CONFIG_JSON", ""),
		DirectoryCacheTTL:  getEnvAsDuration("DIRECTORY_CACHE_TTL", 10*time.Minute),
		ClinicorpBaseURL:   getEnv("CLINICORP_BASE_URL", "https://api.clinicorp.com/v1"),
		ClinicorpAuthURL:   getEnv("CLINICORP_AUTH_URL", "https://auth.clinicorp.com/oauth/token"),
		ClinicorpTimeout:   getEnvAsDuration("CLINICORP_TIMEOUT", 20*time.Second),
		ClinicorpForceMock: getEnvAsBool("CLINICORP_FORCE_MOCK", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Concierge"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// UsePostgres reports whether the relational backend is selected and reachable.
func (c *Config) UsePostgres() bool {
	return c != nil && c.StoreBackend == "postgres" && strings.TrimSpace(c.DatabaseURL) != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
