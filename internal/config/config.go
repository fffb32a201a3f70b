package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/cultpass/bookings/internal/domain"
)

type Config struct {
	PostgresDSN    string
	MongoURI       string
	RedisAddr      string
	RabbitURL      string
	OTLPEndpoint   string
	ListenAddr     string
	GatewayTimeout time.Duration
	// CancelQueueMinAge is how long a deferred cancellation entry must sit in
	// the queue before the worker may replay it.
	CancelQueueMinAge time.Duration
	Features          Features
	Providers         map[domain.ProviderKind]ProviderConfig
}

// ProviderConfig points at one external provider's connector. Providers
// without a configured base URL are simply not registered.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

// Features carries the provider killswitches and job gates. It is loaded
// once and passed into the bookings service explicitly, never read as
// process-wide global state.
type Features struct {
	EnableCDS            bool
	EnableBoost          bool
	EnableCGR            bool
	EnableEMS            bool
	AutoValidationEnable bool
}

// ProviderEnabled reports whether the killswitch for a provider kind is on.
// Unknown kinds are disabled.
func (f Features) ProviderEnabled(kind domain.ProviderKind) bool {
	switch kind {
	case domain.ProviderCDS:
		return f.EnableCDS
	case domain.ProviderBoost:
		return f.EnableBoost
	case domain.ProviderCGR:
		return f.EnableCGR
	case domain.ProviderEMS:
		return f.EnableEMS
	default:
		return false
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	gatewayTimeout, _ := time.ParseDuration(os.Getenv("GATEWAY_TIMEOUT"))
	if gatewayTimeout == 0 {
		gatewayTimeout = 10 * time.Second
	}
	minAge, _ := time.ParseDuration(os.Getenv("CANCEL_QUEUE_MIN_AGE"))
	if minAge == 0 {
		minAge = time.Minute
	}
	listen := os.Getenv("LISTEN_ADDR")
	if listen == "" {
		listen = ":8080"
	}

	return &Config{
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		MongoURI:          os.Getenv("MONGO_URI"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RabbitURL:         os.Getenv("RABBIT_URL"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ListenAddr:        listen,
		GatewayTimeout:    gatewayTimeout,
		CancelQueueMinAge: minAge,
		Providers: map[domain.ProviderKind]ProviderConfig{
			domain.ProviderCDS:   {BaseURL: os.Getenv("CDS_BASE_URL"), APIKey: os.Getenv("CDS_API_KEY")},
			domain.ProviderBoost: {BaseURL: os.Getenv("BOOST_BASE_URL"), APIKey: os.Getenv("BOOST_API_KEY")},
			domain.ProviderCGR:   {BaseURL: os.Getenv("CGR_BASE_URL"), APIKey: os.Getenv("CGR_API_KEY")},
			domain.ProviderEMS:   {BaseURL: os.Getenv("EMS_BASE_URL"), APIKey: os.Getenv("EMS_API_KEY")},
		},
		Features: Features{
			EnableCDS:            envBool("ENABLE_CDS", true),
			EnableBoost:          envBool("ENABLE_BOOST", true),
			EnableCGR:            envBool("ENABLE_CGR", true),
			EnableEMS:            envBool("ENABLE_EMS", true),
			AutoValidationEnable: envBool("ENABLE_AUTO_VALIDATION", false),
		},
	}, nil
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
