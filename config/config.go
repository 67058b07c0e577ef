package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Gateway  GatewayConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Business BusinessConfig
	Cache    CacheConfig
	Journal  JournalConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type GatewayConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicEvents   string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

type BusinessConfig struct {
	TaxRate               float64
	FreeShippingThreshold float64
	FlatShippingFee       float64
	MaxCommentLength      int
	MaxRating             int
	AlertDurationSeconds  int
	LockTTLSeconds        int
}

type CacheConfig struct {
	ProductStaleMinutes  int
	ProductRetainMinutes int
	PopularStaleMinutes  int
	PopularRetainMinutes int
	CartRetainMinutes    int
	SessionIdleMinutes   int
}

type JournalConfig struct {
	DatabaseURL string
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	gatewayTimeout, _ := strconv.Atoi(getEnv("GATEWAY_TIMEOUT_SECONDS", "15"))
	taxRate, _ := strconv.ParseFloat(getEnv("TAX_RATE", "0.20"), 64)
	freeShipping, _ := strconv.ParseFloat(getEnv("FREE_SHIPPING_THRESHOLD", "50"), 64)
	flatFee, _ := strconv.ParseFloat(getEnv("FLAT_SHIPPING_FEE", "9.99"), 64)
	maxComment, _ := strconv.Atoi(getEnv("MAX_COMMENT_LENGTH", "500"))
	maxRating, _ := strconv.Atoi(getEnv("MAX_RATING", "5"))
	alertDuration, _ := strconv.Atoi(getEnv("ALERT_DURATION_SECONDS", "5"))
	lockTTL, _ := strconv.Atoi(getEnv("MUTATION_LOCK_TTL_SECONDS", "30"))
	productStale, _ := strconv.Atoi(getEnv("CACHE_PRODUCT_STALE_MINUTES", "5"))
	productRetain, _ := strconv.Atoi(getEnv("CACHE_PRODUCT_RETAIN_MINUTES", "10"))
	popularStale, _ := strconv.Atoi(getEnv("CACHE_POPULAR_STALE_MINUTES", "10"))
	popularRetain, _ := strconv.Atoi(getEnv("CACHE_POPULAR_RETAIN_MINUTES", "15"))
	cartRetain, _ := strconv.Atoi(getEnv("CACHE_CART_RETAIN_MINUTES", "5"))
	sessionIdle, _ := strconv.Atoi(getEnv("SESSION_IDLE_MINUTES", "30"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("GATEWAY_BASE_URL", "http://localhost:9000"),
			TimeoutSeconds: gatewayTimeout,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			TopicEvents:   getEnv("KAFKA_TOPIC_STOREFRONT_EVENTS", "storefront-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "storefront-client-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Business: BusinessConfig{
			TaxRate:               taxRate,
			FreeShippingThreshold: freeShipping,
			FlatShippingFee:       flatFee,
			MaxCommentLength:      maxComment,
			MaxRating:             maxRating,
			AlertDurationSeconds:  alertDuration,
			LockTTLSeconds:        lockTTL,
		},
		Cache: CacheConfig{
			ProductStaleMinutes:  productStale,
			ProductRetainMinutes: productRetain,
			PopularStaleMinutes:  popularStale,
			PopularRetainMinutes: popularRetain,
			CartRetainMinutes:    cartRetain,
			SessionIdleMinutes:   sessionIdle,
		},
		Journal: JournalConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, gateway=%s", cfg.Server.Env, cfg.Server.Port, cfg.Gateway.BaseURL)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Empty KAFKA_BROKERS disables event publishing entirely, so "" must not
// become [""].
func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
