package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pokerjest/animerss/internal/api"
	"github.com/pokerjest/animerss/internal/app"
	"github.com/pokerjest/animerss/internal/config"
	"github.com/pokerjest/animerss/internal/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	// .env 可选
	_ = godotenv.Load()

	// 1. Load Config
	if err := config.LoadConfig("."); err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	// 2. Setup Gin Mode
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()
	log := logging.Source(a.Logger, "server")

	absPath, _ := filepath.Abs(cfg.Database.Path)
	log.Infof("Database at: %s", absPath)

	// 上次异常退出可能留下 refreshing 状态
	if n, err := a.Store.ResetStuck(ctx); err != nil {
		log.WithError(err).Warn("reset stuck subscriptions")
	} else if n > 0 {
		log.Warnf("reset %d subscriptions left in refreshing state", n)
	}

	// Start Scheduler
	a.Scheduler.Start()
	if err := a.Scheduler.StartAllTasks(ctx); err != nil {
		log.WithError(err).Error("some subscriptions could not be scheduled")
	}

	r := gin.Default()
	api.NewServer(a.Subscriptions, a.Store, a.Bus, logging.Source(a.Logger, "api")).InitRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE 连接随进程退出一起取消
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Infof("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("listen")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	a.Scheduler.Stop()
}
