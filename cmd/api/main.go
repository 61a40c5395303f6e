package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/api"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/api/handler"
	custommw "github.com/sanosuguru/go-train-ticket-lifecycle/internal/api/middleware"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/application"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/command"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/config"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/pricing"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/infrastructure/memory"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-train-ticket-lifecycle/internal/infrastructure/redis"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/notify"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/pkg/logger"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/pkg/metrics"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/worker"
)

func main() {
	// .env があれば読み込む（本番では環境変数をそのまま使う）
	_ = godotenv.Load()

	cfg := config.Load()

	log := logger.NewLogger(os.Getenv("APP_ENV"))
	logger.Set(log)
	defer logger.Sync()

	m := metrics.Init()

	ctx := context.Background()

	// 座席在庫：Redisが使える場合は共有在庫、そうでなければプロセス内在庫
	var capacity command.CapacityProvider = memory.NewCapacityStore(cfg.Ticket.DefaultSeats)
	fanout := notify.NewFanout(&notify.LogNotifier{})

	redisClient := redisinfra.NewClient(&cfg.Redis)
	if err := redisinfra.Ping(ctx, redisClient); err != nil {
		logger.Warn("Redisに接続できないためプロセス内の座席在庫を使用します", zap.Error(err))
	} else {
		capacity = redisinfra.NewSeatCapacity(redisClient, cfg.Ticket.DefaultSeats)
		fanout.Attach(redisinfra.NewPubSubNotifier(redisClient))
		defer redisClient.Close()
	}

	// 永続化シンク：PostgreSQLが使える場合のみ有効
	var sink application.TicketSink
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Warn("PostgreSQLに接続できないため永続化をスキップします", zap.Error(err))
	} else {
		defer db.Close()
		if migrationsPath := os.Getenv("MIGRATIONS_PATH"); migrationsPath != "" {
			if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
				logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
			}
		}
		sink = postgres.NewTicketSink(db)
	}

	svc := application.NewTicketService(
		pricing.NewEngine(),
		capacity,
		sink,
		fanout,
		m,
		application.Config{
			DefaultValidity:  cfg.Ticket.ValidityWindow,
			ModifyUndoWindow: cfg.Ticket.ModifyUndoWindow,
			HistoryCap:       cfg.Ticket.HistoryCap,
		},
	)

	// 期限切れ予約のバックグラウンドスイーパー
	sweeper := worker.NewExpirySweeper(svc, cfg.Ticket.SweepInterval)
	go sweeper.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	custommw.SetupMiddleware(e)
	e.Use(custommw.PrometheusMiddleware(m))

	healthHandler := handler.NewHealthHandler()
	ticketHandler := handler.NewTicketHandler(svc)

	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), custommw.MetricsBasicAuth())

	v1 := e.Group("/api/v1")
	{
		v1.POST("/tickets", ticketHandler.Purchase)
		v1.POST("/tickets/batch", ticketHandler.PurchaseBatch)
		v1.POST("/tickets/reserve", ticketHandler.Reserve)
		v1.GET("/tickets", ticketHandler.List)
		v1.GET("/tickets/:id", ticketHandler.GetByID)
		v1.PATCH("/tickets/:id", ticketHandler.Modify)
		v1.POST("/tickets/:id/confirm", ticketHandler.Confirm)
		v1.POST("/tickets/:id/refund", ticketHandler.Refund)
		v1.POST("/tickets/:id/use", ticketHandler.Use)
		v1.POST("/tickets/:id/cancel", ticketHandler.Cancel)
		v1.POST("/operations/undo", ticketHandler.Undo)
		v1.POST("/operations/redo", ticketHandler.Redo)
		v1.POST("/operations/sweep", ticketHandler.Sweep)
	}

	// サーバー起動
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("サーバー起動", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// スイーパーを止めてからHTTPを閉じる
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
