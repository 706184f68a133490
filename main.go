package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "oqueue/docs"
	"oqueue/internal/auth"
	"oqueue/internal/config"
	"oqueue/internal/events"
	"oqueue/internal/handlers"
	"oqueue/internal/ordering"
	"oqueue/internal/storage"
	"oqueue/internal/tasks"
	"oqueue/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @Title						Онлайн очередь
// @Version					1.0
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := config.LoadEnv(); err != nil {
		log.Warn("Ошибка получения .env, используется окружение", zap.Error(err))
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("Ошибка конфигурации", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.ConnectDatabase(cfg, log)
	if err != nil {
		log.Fatal("Ошибка подключения к базе", zap.Error(err))
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal("Ошибка при миграции", zap.Error(err))
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	var publisher events.Publisher = events.NewLocal(hub)
	rdb, err := storage.InitRedis(ctx, cfg)
	if err != nil {
		log.Fatal("Ошибка подключения к Redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
		bus := events.NewRedisBus(rdb, events.DefaultChannel, hub, log)
		go func() {
			if err := bus.Run(ctx); err != nil {
				log.Error("Подписка на события остановлена", zap.Error(err))
			}
		}()
		publisher = bus
		log.Info("Redis подключён, события идут через pub/sub", zap.String("addr", cfg.RedisAddr))
	}

	queues := storage.NewQueueRepository(db)
	planner := tasks.NewPlanner(queues, publisher, log)
	scheduler, err := planner.InitScheduler(cfg.PurgeSchedule)
	if err != nil {
		log.Fatal("Ошибка запуска планировщика", zap.Error(err))
	}
	defer scheduler.Stop()

	tokens := auth.NewTokens(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	h := &handlers.Handler{
		Engine:        ordering.NewEngine(storage.NewMembershipGateway(db), ordering.WithLogger(log.Named("ordering"))),
		Queues:        queues,
		Users:         storage.NewUserRepository(db),
		Tokens:        tokens,
		Events:        publisher,
		Hub:           hub,
		Log:           log,
		QueueLifetime: cfg.QueueLifetime,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(handlers.RequestLogger(log.Named("http")), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	h.Routes(r, auth.AuthMiddleware(tokens))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Сервер запущен", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Ошибка запуска сервера", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Остановка сервера")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Ошибка остановки сервера", zap.Error(err))
	}
}
