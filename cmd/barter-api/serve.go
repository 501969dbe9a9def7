package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/rajivgeraev/barter-api/internal/alerts"
	"github.com/rajivgeraev/barter-api/internal/config"
	"github.com/rajivgeraev/barter-api/internal/outbox"
	"github.com/rajivgeraev/barter-api/internal/services/auth"
	"github.com/rajivgeraev/barter-api/internal/services/chat"
	"github.com/rajivgeraev/barter-api/internal/services/cloudinary"
	"github.com/rajivgeraev/barter-api/internal/services/escrow"
	"github.com/rajivgeraev/barter-api/internal/services/favorite"
	"github.com/rajivgeraev/barter-api/internal/services/kyc"
	"github.com/rajivgeraev/barter-api/internal/services/notification"
	"github.com/rajivgeraev/barter-api/internal/services/product"
	"github.com/rajivgeraev/barter-api/internal/services/review"
	"github.com/rajivgeraev/barter-api/internal/services/shipping"
	"github.com/rajivgeraev/barter-api/internal/services/trade"
	"github.com/rajivgeraev/barter-api/internal/utils"
	"github.com/rajivgeraev/barter-api/internal/websocket"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, database, err := setup()
	if err != nil {
		return err
	}
	defer database.CloseDB()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx); err != nil {
		return err
	}

	// Realtime
	manager := websocket.NewManager()
	defer manager.Shutdown()
	wsServer := websocket.NewServer(manager, utils.NewJWTService(cfg.JWTSecret))

	// Telegram-оповещения через очередь asynq
	var alerter outbox.Alerter
	if cfg.RedisAddr != "" && cfg.TelegramAlerts {
		queue := alerts.NewQueue(cfg.RedisAddr)
		defer queue.Close()
		alerter = queue

		worker := alerts.NewWorker(cfg.RedisAddr, alerts.NewTelegramSender(cfg.TelegramBotToken))
		if err := worker.Start(); err != nil {
			return err
		}
		defer worker.Shutdown()
	} else {
		log.Infof("REDIS_ADDR не задан, Telegram-оповещения отключены")
	}

	dispatcher := outbox.NewDispatcher(database, outbox.NewNotificationSink(database, manager, alerter), cfg.Outbox)
	go dispatcher.Run(ctx)
	if database.IsPostgres() {
		go func() {
			if err := outbox.Listen(ctx, cfg.DatabaseConfig.URL, dispatcher); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("LISTEN outbox завершился с ошибкой: %v", err)
			}
		}()
	}

	// Создаём сервисы
	authService := auth.NewAuthService(cfg, database)
	cloudinaryService := cloudinary.NewCloudinaryService(cfg)
	productService := product.NewProductService(cfg, database)
	favoriteService := favorite.NewFavoriteService(cfg, database)
	tradeService := trade.NewTradeService(cfg, database, dispatcher)
	escrowService := escrow.NewEscrowService(cfg, database, dispatcher)
	chatService := chat.NewChatService(cfg, database, manager, dispatcher)
	notificationService := notification.NewNotificationService(cfg, database)
	reviewService := review.NewReviewService(cfg, database, dispatcher)
	shippingService := shipping.NewShippingService(cfg, database, dispatcher)
	kycService := kyc.NewKYCService(cfg, database, dispatcher)

	manager.SetChatHooks(chatService.Hooks())
	go tradeService.RunExpirySweeper(ctx)

	app := newApp(cfg)

	// Публичные маршруты регистрируются раньше групп с авторизацией
	authService.SetupRoutes(app)
	productService.SetupRoutes(app)
	reviewService.SetupRoutes(app)
	cloudinaryService.SetupRoutes(app)
	favoriteService.SetupRoutes(app)
	tradeService.SetupRoutes(app)
	escrowService.SetupRoutes(app)
	chatService.SetupRoutes(app)
	notificationService.SetupRoutes(app)
	shippingService.SetupRoutes(app)
	kycService.SetupRoutes(app)

	errCh := make(chan error, 2)
	go func() {
		log.Infof("✅ Realtime-сервер запущен на порту %s", cfg.RealtimePort)
		if err := wsServer.ListenAndServe(":" + cfg.RealtimePort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Infof("✅ Barter API запущен на порту %s", cfg.Port)
		if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Infof("Получен сигнал остановки")
	case err = <-errCh:
		log.Errorf("Сервер остановлен с ошибкой: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warnf("Ошибка остановки HTTP: %v", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Ошибка остановки realtime-сервера: %v", err)
	}
	return err
}

// newApp создает экземпляр Fiber с общими middleware
func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Barter API",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "env": cfg.AppEnv})
	})
	return app
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
