package autoflow

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

type AppConfig struct {
	Mode          string
	ApiPort       string
	TenantID      string
	EncryptionKey string
	OllamaHost    string
	NatsURL       string
	RunCacheTTL   time.Duration
	Scheduler     struct {
		Workers int
		Period  time.Duration
	}
	MainDatabase struct {
		Host         string
		Port         string
		User         string
		Password     string
		DatabaseName string
		SSLMode      string
	}
	JWTConfig struct {
		Secret     string
		Expiration int // in minutes
	}
	RedisConfig struct {
		Host     string
		Port     string
		Password string
		DB       int
	}
	GoogleConfig struct {
		ClientID     string
		ClientSecret string
		TokenURL     string
	}
	SMTPConfig struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
		UseTLS   bool
	}
}

var config AppConfig

// InitConfig loads envfile, reads the settings and opens the database and
// redis connections.
func InitConfig(envfile string) {
	err := godotenv.Load(envfile)
	if err != nil {
		log.Fatalf("Error loading %s file: %s", envfile, err)
	}
	config = loadConfig()

	Logger = initLogger(config.Mode)
	DB = connectToPostgres(config.MainDatabase.Host, config.MainDatabase.User, config.MainDatabase.Password, config.MainDatabase.DatabaseName, config.MainDatabase.Port, config.MainDatabase.SSLMode)
	Redis = connectToRedis(config.RedisConfig.Host, config.RedisConfig.Port, config.RedisConfig.Password, config.RedisConfig.DB)
}

func loadConfig() AppConfig {
	cfg := AppConfig{
		Mode:          GetEnv("RUN_MODE", "development"),
		ApiPort:       getEnvOrPanic("API_PORT"),
		TenantID:      GetEnv("TENANT_ID", "default"),
		EncryptionKey: getEnvOrPanic("ENCRYPTION_KEY"),
		OllamaHost:    GetEnv("OLLAMA_HOST", "http://localhost:11434"),
		NatsURL:       GetEnv("NATS_URL", "nats://localhost:4222"),
		RunCacheTTL:   time.Duration(getIntEnvOrDefault("RUN_CACHE_TTL_MINUTES", 60)) * time.Minute,
	}

	cfg.Scheduler.Workers = getIntEnvOrDefault("SCHEDULER_WORKERS", 4)
	cfg.Scheduler.Period = time.Duration(getIntEnvOrDefault("SCHEDULER_PERIOD_SECONDS", 30)) * time.Second

	cfg.MainDatabase.Host = getEnvOrPanic("DB_HOSTNAME")
	cfg.MainDatabase.Port = getEnvOrPanic("DB_PORT")
	cfg.MainDatabase.User = getEnvOrPanic("DB_USERNAME")
	cfg.MainDatabase.Password = getEnvOrPanic("DB_PASSWORD")
	cfg.MainDatabase.DatabaseName = getEnvOrPanic("DB_NAME")
	cfg.MainDatabase.SSLMode = GetEnv("DB_SSL_MODE", "disable")

	cfg.JWTConfig.Secret = getEnvOrPanic("JWT_SECRET")
	cfg.JWTConfig.Expiration = getIntEnvOrDefault("JWT_EXPIRATION_MINUTES", 60)

	cfg.RedisConfig.Host = GetEnv("REDIS_HOST", "localhost")
	cfg.RedisConfig.Port = GetEnv("REDIS_PORT", "6379")
	cfg.RedisConfig.Password = GetEnv("REDIS_PASSWORD", "")
	cfg.RedisConfig.DB = getIntEnvOrDefault("REDIS_DB", 0)

	cfg.GoogleConfig.ClientID = GetEnv("GOOGLE_CLIENT_ID", "")
	cfg.GoogleConfig.ClientSecret = GetEnv("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleConfig.TokenURL = GetEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")

	cfg.SMTPConfig.Host = GetEnv("SMTP_HOST", "")
	cfg.SMTPConfig.Port = getIntEnvOrDefault("SMTP_PORT", 587)
	cfg.SMTPConfig.Username = GetEnv("SMTP_USERNAME", "")
	cfg.SMTPConfig.Password = GetEnv("SMTP_PASSWORD", "")
	cfg.SMTPConfig.From = GetEnv("SMTP_FROM", "")
	cfg.SMTPConfig.UseTLS = GetEnv("SMTP_USE_TLS", "true") == "true"
	return cfg
}

func GetConfig() AppConfig {
	return config
}

func getEnvOrPanic(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s must be set", key)
	}
	return value
}

func GetEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func connectToPostgres(host string, username string, password string, dbname string, port string, ssl string) *gorm.DB {
	var err error
	var db *gorm.DB
	var conn *sql.DB

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, username, password, dbname, port, ssl)
	if db, err = gorm.Open(postgres.Open(dsn), GormConfig()); err != nil {
		panic(err)
	}
	if conn, err = db.DB(); err != nil {
		panic(err)
	}
	conn.SetMaxIdleConns(10)
	conn.SetMaxOpenConns(10)
	conn.SetConnMaxLifetime(time.Hour)
	return db
}

// GormConfig is shared by the server and the repository tests.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold: 0,
				LogLevel:      logger.Error,
			},
		),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	}
}

func initLogger(mode string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
		NoColor:    mode == "production",
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("  %s  ", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s=", i)
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		},
	}

	level := zerolog.DebugLevel
	if mode == "production" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}

func connectToRedis(host string, port string, password string, db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	return client
}
