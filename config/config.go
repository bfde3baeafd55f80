package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Settings holds the tunables shared by the services. Values come from
// defaults, then the YAML file named by CONFIG_FILE, then the environment.
type Settings struct {
	Env            string `yaml:"env"`
	HTTPAddr       string `yaml:"http_addr"`
	StorageDriver  string `yaml:"storage_driver"`
	RedisPrefix    string `yaml:"redis_prefix"`
	PublicBaseURL  string `yaml:"public_base_url"`
	RemoteOrders   bool   `yaml:"remote_orders"`
	RemoteTracking bool   `yaml:"remote_tracking"`

	ServiceFee      string        `yaml:"service_fee"`
	ReservationFee  string        `yaml:"reservation_fee"`
	ProcessingDelay time.Duration `yaml:"processing_delay"`

	PollInterval time.Duration `yaml:"poll_interval"`
	ReadyChance  float64       `yaml:"ready_chance"`

	WorkspaceIdle  time.Duration `yaml:"workspace_idle"`
	WorkspaceSweep time.Duration `yaml:"workspace_sweep"`

	API APISettings `yaml:"api"`

	OrderEventsTopic   string `yaml:"order_events_topic"`
	StatusEventsTopic  string `yaml:"status_events_topic"`
	NotificationsTopic string `yaml:"notifications_topic"`
}

type APISettings struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	HealthTTL   time.Duration `yaml:"health_ttl"`
}

func Defaults() Settings {
	return Settings{
		Env:             "development",
		HTTPAddr:        ":8084",
		StorageDriver:   StorageMemory,
		RedisPrefix:     "koikhabo:",
		PublicBaseURL:   "http://localhost:8080",
		ServiceFee:      "20",
		ReservationFee:  "100",
		ProcessingDelay: 3 * time.Second,
		PollInterval:    8 * time.Second,
		ReadyChance:     0.2,
		WorkspaceIdle:   2 * time.Hour,
		WorkspaceSweep:  5 * time.Minute,
		API: APISettings{
			BaseURL:     "http://localhost:8000/api",
			Timeout:     10 * time.Second,
			MaxRetries:  2,
			BaseBackoff: time.Second,
			HealthTTL:   30 * time.Second,
		},
		OrderEventsTopic:   "orders",
		StatusEventsTopic:  "order-status",
		NotificationsTopic: "order-notifications",
	}
}

func Load() (Settings, error) {
	s := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return s, fmt.Errorf("parse config file: %w", err)
		}
	}

	s.Env = getEnv("APP_ENV", s.Env)
	s.HTTPAddr = getEnv("HTTP_ADDR", s.HTTPAddr)
	s.StorageDriver = getEnv("STORAGE_DRIVER", s.StorageDriver)
	s.RedisPrefix = getEnv("REDIS_PREFIX", s.RedisPrefix)
	s.PublicBaseURL = getEnv("PUBLIC_BASE_URL", s.PublicBaseURL)
	s.ServiceFee = getEnv("SERVICE_FEE", s.ServiceFee)
	s.ReservationFee = getEnv("RESERVATION_FEE", s.ReservationFee)
	s.API.BaseURL = getEnv("API_URL", s.API.BaseURL)
	s.OrderEventsTopic = getEnv("ORDER_EVENTS_TOPIC", s.OrderEventsTopic)
	s.StatusEventsTopic = getEnv("STATUS_EVENTS_TOPIC", s.StatusEventsTopic)
	s.NotificationsTopic = getEnv("NOTIFICATIONS_TOPIC", s.NotificationsTopic)

	var err error
	if s.RemoteOrders, err = getEnvBool("REMOTE_ORDERS", s.RemoteOrders); err != nil {
		return s, err
	}
	if s.RemoteTracking, err = getEnvBool("REMOTE_TRACKING", s.RemoteTracking); err != nil {
		return s, err
	}
	if s.ProcessingDelay, err = getEnvDuration("PROCESSING_DELAY", s.ProcessingDelay); err != nil {
		return s, err
	}
	if s.PollInterval, err = getEnvDuration("POLL_INTERVAL", s.PollInterval); err != nil {
		return s, err
	}
	if s.API.Timeout, err = getEnvDuration("API_TIMEOUT", s.API.Timeout); err != nil {
		return s, err
	}
	if s.WorkspaceIdle, err = getEnvDuration("WORKSPACE_IDLE", s.WorkspaceIdle); err != nil {
		return s, err
	}

	return s, s.Validate()
}

func (s Settings) Validate() error {
	switch s.StorageDriver {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", s.StorageDriver)
	}
	if _, err := s.Fees(); err != nil {
		return err
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if s.WorkspaceIdle <= 0 || s.WorkspaceSweep <= 0 {
		return fmt.Errorf("workspace idle and sweep intervals must be positive")
	}
	if s.ReadyChance < 0 || s.ReadyChance > 1 {
		return fmt.Errorf("ready chance must be within [0,1]")
	}
	return nil
}

// Fees returns the service and reservation fees.
func (s Settings) Fees() (Fees, error) {
	service, err := decimal.NewFromString(s.ServiceFee)
	if err != nil {
		return Fees{}, fmt.Errorf("invalid service fee %q: %w", s.ServiceFee, err)
	}
	reservation, err := decimal.NewFromString(s.ReservationFee)
	if err != nil {
		return Fees{}, fmt.Errorf("invalid reservation fee %q: %w", s.ReservationFee, err)
	}
	return Fees{Service: service, Reservation: reservation}, nil
}

type Fees struct {
	Service     decimal.Decimal
	Reservation decimal.Decimal
}

func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func MustInitPostgres(logger *zap.Logger) *sql.DB {
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")

	connStr := "host=" + dbHost + " port=" + dbPort + " user=" + dbUser +
		" password=" + dbPassword + " dbname=" + dbName + " sslmode=disable"

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err = db.Ping(); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return db
}

func MustInitRedis(logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: os.Getenv("REDIS_HOST") + ":" + os.Getenv("REDIS_PORT"),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	return client
}

// KafkaEnabled reports whether a broker is configured.
func KafkaEnabled() bool {
	return os.Getenv("KAFKA_BROKER") != ""
}

func NewKafkaReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{os.Getenv("KAFKA_BROKER")},
		Topic:   topic,
		GroupID: groupID,
	})
}

func NewKafkaWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(os.Getenv("KAFKA_BROKER")),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
