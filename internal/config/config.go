package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// DefaultQueueLifetime задаёт срок жизни очереди после создания.
const DefaultQueueLifetime = 2 * 365 * 24 * time.Hour

type Config struct {
	HTTPAddr string

	DBDriver   string // postgres | sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	RedisAddr     string // если пусто, события раздаются внутри процесса
	RedisPassword string
	RedisDB       int

	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	QueueLifetime time.Duration
	PurgeSchedule string
}

// LoadEnv подгружает .env, если окружение не задано снаружи (ENV_CHEK).
func LoadEnv(files ...string) error {
	if os.Getenv("ENV_CHEK") != "" {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.Wrap(err, "load .env")
	}
	return nil
}

// FromEnv собирает конфигурацию из переменных окружения.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		DBDriver:      getenv("DB_DRIVER", "postgres"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        getenv("DB_PORT", "5432"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		SQLitePath:    getenv("SQLITE_PATH", "oqueue.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		AccessSecret:  []byte(os.Getenv("JWT_ACCESS_SECRET")),
		RefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		PurgeSchedule: getenv("PURGE_SCHEDULE", "0 */5 * * * *"),
	}

	var err error
	if cfg.RedisDB, err = getint("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.AccessTTL, err = getduration("JWT_ACCESS_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = getduration("JWT_REFRESH_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.QueueLifetime, err = getduration("QUEUE_LIFETIME", DefaultQueueLifetime); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DBHost == "" || c.DBName == "" {
			return errors.New("DB_HOST and DB_NAME are required for postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for sqlite")
		}
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if len(c.AccessSecret) == 0 || len(c.RefreshSecret) == 0 {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if c.QueueLifetime <= 0 {
		return errors.New("QUEUE_LIFETIME must be positive")
	}
	return nil
}

// PostgresDSN собирает строку подключения в формате libpq.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return n, nil
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}
