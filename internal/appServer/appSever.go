package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sunilkarki98/staysewa-sub001/config"
	"github.com/sunilkarki98/staysewa-sub001/internal/database/memory"
	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	rediscache "github.com/sunilkarki98/staysewa-sub001/internal/database/redis"
	"github.com/sunilkarki98/staysewa-sub001/internal/pkg/kafka"
	"github.com/sunilkarki98/staysewa-sub001/internal/pkg/khalti"
	"github.com/sunilkarki98/staysewa-sub001/internal/rabbitMQ"
	"github.com/sunilkarki98/staysewa-sub001/internal/service"
	"github.com/sunilkarki98/staysewa-sub001/internal/transport"
	"github.com/sunilkarki98/staysewa-sub001/internal/worker"
	"github.com/sunilkarki98/staysewa-sub001/pkg/postgres"
	"github.com/sunilkarki98/staysewa-sub001/pkg/queue"
	"github.com/sunilkarki98/staysewa-sub001/pkg/redis"
	"github.com/sunilkarki98/staysewa-sub001/pkg/telegram"
	"github.com/sunilkarki98/staysewa-sub001/pkg/tracing"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func setupLogging(cfg *config.LogConfig) io.Closer {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.File == "" {
		logrus.SetOutput(os.Stdout)
		return io.NopCloser(nil)
	}

	lumberjackLog := &lumberjack.Logger{
		Filename:  cfg.File,
		MaxSize:   cfg.MaxSizeMB,
		LocalTime: true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, lumberjackLog))
	return lumberjackLog
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		store := memory.NewStore()
		if err := memory.SeedDemo(ctx, store, time.Now(), 180); err != nil {
			return nil, nil, err
		}
		logrus.Warn("Using in-memory store with demo catalog, data is lost on restart")
		return store, func() {}, nil
	}

	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repository.NewStore(db), func() { db.Close() }, nil
}

func NewServer(cfg *config.Config) {

	logCloser := setupLogging(&cfg.Log)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.NewTracerProvider(&cfg.Tracing, cfg.Server.Env)
		if err != nil {
			logrus.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logrus.Errorf("Failed to flush traces: %v", err)
			}
		}()
		logrus.Info("Tracing initialized")
	}

	// Initialize database
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer closeStore()

	// Availability cache is optional; the ledger never depends on it
	var cache service.AvailabilityCache
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			logrus.Errorf("Failed to initialize Redis: %v. Continuing without cache...", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			cache = rediscache.NewAvailabilityCache(redisClient, cfg.Redis.CacheTTL)
		}
	}

	// Initialize Telegram bot
	var chat service.ChatSender
	if cfg.Telegram.BotToken != "" {
		chat = telegram.NewBot(cfg.Telegram.BotToken)
		logrus.Info("Telegram bot initialized")
	} else {
		logrus.Warn("Telegram bot token not provided, notifications are logged only")
	}

	// Notification queue: RabbitMQ first, Redis lists as fallback
	var notificationQueue queue.Queue
	if cfg.RabbitMQ.Enabled {
		rmq, err := rabbitMQ.NewRabbitMQ(rabbitMQ.RabbitMQConfig{
			URL:             cfg.RabbitMQ.URL,
			QueueName:       cfg.RabbitMQ.Queue,
			DeadLetterQueue: cfg.RabbitMQ.DeadLetterQueue,
		})
		if err != nil {
			logrus.Errorf("Failed to initialize RabbitMQ: %v", err)
		} else {
			notificationQueue = rmq
		}
	}
	var deadLetters *transport.DeadLetterHandler
	if notificationQueue == nil && redisClient != nil {
		redisQueue := queue.NewRedisQueue(redisClient, queue.RedisQueueConfig{
			Name:        cfg.Redis.Queue,
			MaxAttempts: cfg.Redis.QueueMaxAttempts,
		})
		notificationQueue = redisQueue
		deadLetters = transport.NewDeadLetterHandler(redisQueue.DeadLetters())
		logrus.WithField("queue", cfg.Redis.Queue).Info("Using Redis notification queue")
	}
	var publisher service.NotificationPublisher
	if notificationQueue != nil {
		defer notificationQueue.Close()
		publisher = notificationQueue
	} else {
		logrus.Warn("No notification queue configured, delivering notifications inline")
	}

	// Booking events
	var events kafka.Producer
	if cfg.Kafka.Enabled {
		events = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		events = kafka.NewLogProducer()
	}
	defer events.Close()

	gateway := khalti.NewClient(khalti.Config{
		BaseURL:    cfg.Gateway.BaseURL,
		SecretKey:  cfg.Gateway.SecretKey,
		Timeout:    cfg.Gateway.Timeout,
		MaxRetries: cfg.Gateway.MaxRetries,
	})

	// Initialize services
	notificationService := service.NewNotificationService(store.Users(), publisher, chat, nil)
	dispatcher := service.NewDispatcher(notificationService, events)
	pricingService := service.NewPricingService(store, cfg.Booking)
	inventoryService := service.NewInventoryService(store, cache, nil)
	couponService := service.NewCouponService(store, nil)
	bookingService := service.NewBookingService(store, cache, dispatcher, cfg.Booking, nil)
	paymentService := service.NewPaymentService(store, gateway, cache, dispatcher, cfg.Booking, cfg.Gateway, nil)

	// Start workers
	if notificationQueue != nil {
		if err := worker.NewNotificationWorker(notificationQueue, notificationService).Start(ctx); err != nil {
			logrus.Errorf("Notification worker error: %v", err)
		}
	}

	reaper := worker.NewExpiryReaper(bookingService, cfg.Worker.ReaperInterval, cfg.Worker.BatchSize, nil)
	go reaper.Start(ctx)
	logrus.Info("Expiry reaper started")

	// Setup HTTP server
	if cfg.Server.Mode == "release" || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.InitRoutes(cfg, transport.Handlers{
		Booking: transport.NewBookingHandler(bookingService),
		Payment: transport.NewPaymentHandler(paymentService),
		Unit:    transport.NewUnitHandler(pricingService, inventoryService),
		Coupon:  transport.NewCouponHandler(couponService),

		DeadLetter: deadLetters,
	})

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("addr", cfg.GetServerAddress()).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
	cancel()
	dispatcher.Wait()
}
