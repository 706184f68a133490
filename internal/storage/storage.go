package storage

import (
	"context"
	"time"

	"oqueue/internal/config"
	"oqueue/internal/models"
	"oqueue/internal/ordering"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDatabase открывает базу, выбранную в DB_DRIVER.
func ConnectDatabase(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), gormConfig(log))
		if err == nil {
			err = tunePool(db, 50, 25)
		}
	case "sqlite":
		db, err = OpenSQLite(cfg.SQLitePath, log)
	default:
		return nil, errors.Errorf("unsupported or unrecognized db type: %s", cfg.DBDriver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}
	log.Info("database connected", zap.String("driver", cfg.DBDriver))
	return db, nil
}

// OpenSQLite открывает sqlite-базу. Соединение одно: sqlite допускает
// только одного писателя, а ":memory:" живёт, пока живо соединение.
func OpenSQLite(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, err
	}
	if err := tunePool(db, 1, 1); err != nil {
		return nil, err
	}
	return db, nil
}

func gormConfig(log *zap.Logger) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func tunePool(db *gorm.DB, open, idle int) error {
	sqldb, err := db.DB()
	if err != nil {
		return err
	}
	sqldb.SetMaxOpenConns(open)
	sqldb.SetMaxIdleConns(idle)
	sqldb.SetConnMaxIdleTime(time.Hour)
	return nil
}

// Migrate создаёт или обновляет таблицы.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Queue{}, &models.QueueEntry{}); err != nil {
		return errors.Wrap(err, "migrate")
	}
	return nil
}

// InitRedis возвращает клиент Redis или nil, если REDIS_ADDR не задан.
func InitRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// classify оставляет доменные ошибки как есть, остальное считает
// временной недоступностью хранилища.
func classify(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ordering.ErrNotFound),
		errors.Is(err, ordering.ErrConflict),
		errors.Is(err, ordering.ErrStorageUnavailable),
		errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrUserNotFound):
		return err
	}
	return ordering.Unavailable(err, op)
}
