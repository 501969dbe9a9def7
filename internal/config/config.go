package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var log = logging.Logger("barter-config")

// Config структура конфигурации
type Config struct {
	Port             string
	RealtimePort     string
	AppEnv           string
	LogLevel         string
	TelegramBotToken string
	JWTSecret        string
	AdminTelegramIDs map[int64]bool
	DatabaseConfig   DatabaseConfig
	CloudinaryConfig CloudinaryConfig
	RedisAddr        string
	TelegramAlerts   bool
	Outbox           OutboxConfig
	Trade            TradeConfig
	Escrow           EscrowConfig
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Driver     string // pgx или sqlite
	URL        string
	SQLitePath string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	UploadPreset string
	UploadFolder string
}

// OutboxConfig содержит параметры доставки уведомлений
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	Lease        time.Duration
}

// TradeConfig содержит параметры предложений обмена
type TradeConfig struct {
	ProposalTTL   time.Duration
	SweepInterval time.Duration
}

// EscrowConfig задает политику связи эскроу и обменов
type EscrowConfig struct {
	// RequireTrade запрещает эскроу без привязки к обмену
	RequireTrade bool
	// RequireAcceptedTrade требует принятый обмен при создании и пополнении
	RequireAcceptedTrade bool
	DefaultCurrency      string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("REALTIME_PORT", "8081")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "pgx")
	v.SetDefault("SQLITE_PATH", "barter.db")
	v.SetDefault("PGHOST", "localhost")
	v.SetDefault("PGPORT", "5432")
	v.SetDefault("PGUSER", "barter_user")
	v.SetDefault("PGPASSWORD", "barter_pass")
	v.SetDefault("PGDATABASE", "barter")
	v.SetDefault("PGSSLMODE", "disable")
	v.SetDefault("CLOUDINARY_UPLOAD_PRESET", "barter_mvp")
	v.SetDefault("CLOUDINARY_UPLOAD_FOLDER", "products")
	v.SetDefault("TELEGRAM_ALERTS_ENABLED", true)
	v.SetDefault("OUTBOX_POLL_INTERVAL", 2*time.Second)
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 8)
	v.SetDefault("OUTBOX_BASE_BACKOFF", time.Second)
	v.SetDefault("OUTBOX_MAX_BACKOFF", 5*time.Minute)
	v.SetDefault("OUTBOX_LEASE", 30*time.Second)
	v.SetDefault("TRADE_PROPOSAL_TTL", 7*24*time.Hour)
	v.SetDefault("TRADE_SWEEP_INTERVAL", time.Minute)
	v.SetDefault("ESCROW_REQUIRE_TRADE", false)
	v.SetDefault("ESCROW_REQUIRE_ACCEPTED_TRADE", true)
	v.SetDefault("ESCROW_DEFAULT_CURRENCY", "RUB")
}

// LoadConfig загружает конфигурацию из .env, barter.yaml и переменных окружения
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warnf("⚠️ .env файл не найден, используем переменные окружения")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("barter")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading barter.yaml: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper собирает Config из подготовленного экземпляра viper
func FromViper(v *viper.Viper) (*Config, error) {
	dbConfig := DatabaseConfig{
		Driver:     strings.ToLower(v.GetString("DB_DRIVER")),
		SQLitePath: v.GetString("SQLITE_PATH"),
		Host:       v.GetString("PGHOST"),
		Port:       v.GetString("PGPORT"),
		User:       v.GetString("PGUSER"),
		Password:   v.GetString("PGPASSWORD"),
		Name:       v.GetString("PGDATABASE"),
		SSLMode:    v.GetString("PGSSLMODE"),
	}

	// Формируем строку подключения к базе данных
	dbConfig.URL = v.GetString("DATABASE_URL")
	if dbConfig.URL == "" {
		dbConfig.URL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)
	}

	admins, err := parseTelegramIDs(v.GetString("ADMIN_TELEGRAM_IDS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             v.GetString("PORT"),
		RealtimePort:     v.GetString("REALTIME_PORT"),
		AppEnv:           v.GetString("APP_ENV"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		AdminTelegramIDs: admins,
		DatabaseConfig:   dbConfig,
		CloudinaryConfig: CloudinaryConfig{
			CloudName:    v.GetString("CLOUDINARY_CLOUD_NAME"),
			APIKey:       v.GetString("CLOUDINARY_API_KEY"),
			APISecret:    v.GetString("CLOUDINARY_API_SECRET"),
			UploadPreset: v.GetString("CLOUDINARY_UPLOAD_PRESET"),
			UploadFolder: v.GetString("CLOUDINARY_UPLOAD_FOLDER"),
		},
		RedisAddr:      v.GetString("REDIS_ADDR"),
		TelegramAlerts: v.GetBool("TELEGRAM_ALERTS_ENABLED"),
		Outbox: OutboxConfig{
			PollInterval: v.GetDuration("OUTBOX_POLL_INTERVAL"),
			BatchSize:    v.GetInt("OUTBOX_BATCH_SIZE"),
			MaxAttempts:  v.GetInt("OUTBOX_MAX_ATTEMPTS"),
			BaseBackoff:  v.GetDuration("OUTBOX_BASE_BACKOFF"),
			MaxBackoff:   v.GetDuration("OUTBOX_MAX_BACKOFF"),
			Lease:        v.GetDuration("OUTBOX_LEASE"),
		},
		Trade: TradeConfig{
			ProposalTTL:   v.GetDuration("TRADE_PROPOSAL_TTL"),
			SweepInterval: v.GetDuration("TRADE_SWEEP_INTERVAL"),
		},
		Escrow: EscrowConfig{
			RequireTrade:         v.GetBool("ESCROW_REQUIRE_TRADE"),
			RequireAcceptedTrade: v.GetBool("ESCROW_REQUIRE_ACCEPTED_TRADE"),
			DefaultCurrency:      strings.ToUpper(v.GetString("ESCROW_DEFAULT_CURRENCY")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.DatabaseConfig.Driver != "pgx" && c.DatabaseConfig.Driver != "sqlite" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DatabaseConfig.Driver)
	}
	if c.IsTest() {
		return nil
	}
	if c.TelegramBotToken == "" || c.JWTSecret == "" {
		return errors.New("TELEGRAM_BOT_TOKEN and JWT_SECRET must be set")
	}
	return nil
}

// IsTest сообщает, запущено ли приложение в тестовом окружении
func (c *Config) IsTest() bool { return c.AppEnv == "test" }

// IsAdminTelegramID сообщает, назначен ли Telegram-пользователь администратором
func (c *Config) IsAdminTelegramID(id int64) bool { return c.AdminTelegramIDs[id] }

func parseTelegramIDs(raw string) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_IDS entry %q: %w", part, err)
		}
		ids[id] = true
	}
	return ids, nil
}

// NewTestConfig возвращает конфигурацию для тестов
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("APP_ENV", "test")
	v.Set("DB_DRIVER", "sqlite")
	v.Set("JWT_SECRET", "test-secret")
	v.Set("TELEGRAM_BOT_TOKEN", "test-token")
	cfg, err := FromViper(v)
	if err != nil {
		panic(err)
	}
	return cfg
}
