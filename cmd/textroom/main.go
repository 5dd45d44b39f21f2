package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/textroom/server/internal/v1/config"
	"github.com/textroom/server/internal/v1/health"
	"github.com/textroom/server/internal/v1/logging"
	"github.com/textroom/server/internal/v1/middleware"
	"github.com/textroom/server/internal/v1/session"
)

var (
	flagHost         string
	flagPort         int
	flagPingInterval int
)

var rootCmd = &cobra.Command{
	Use:   "textroom",
	Short: "Multi-room text chat and announcement server",
	Long: `textroom serves rooms of WebSocket participants exchanging chat
messages and moderated announcements, with an HTTP surface for room
management and optional webhook mirroring of room traffic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagHost, "host", "", "listen host (overrides HOST)")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "listen port (overrides PORT)")
	rootCmd.Flags().IntVar(&flagPingInterval, "ping-interval", 0, "client ping interval in seconds (overrides PING_INTERVAL_SECONDS)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	// Load .env for local development; paths cover the common working dirs.
	envPaths := []string{".env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		return err
	}

	// Flags win over environment.
	if cmd.Flags().Changed("host") {
		cfg.Host = flagHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if cmd.Flags().Changed("ping-interval") {
		cfg.PingInterval = time.Duration(flagPingInterval) * time.Second
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	ctx := context.Background()

	if cfg.DevelopmentMode {
		logging.Info(ctx, "Running in development mode")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	allowedOrigins := cfg.Origins([]string{"*"})

	hub := session.NewHub(cfg.PingInterval)
	dispatcher := session.NewDispatcher(hub, allowedOrigins)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(hub)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	if cfg.DevelopmentMode {
		router.GET("/debug", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"tasks": runtime.NumGoroutine()})
		})
	}

	// Room uids may contain slashes, so the management surface cannot be a
	// static route tree; everything else falls through to the dispatcher.
	router.NoRoute(dispatcher.Handle)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "Server starting",
			zap.String("addr", cfg.Addr()),
			zap.Duration("ping_interval", cfg.PingInterval))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "Server failed", zap.Error(err))
			_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Hub shutdown failed", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Server forced to shutdown", zap.Error(err))
	}

	logging.Info(ctx, "Server exiting")
	return nil
}
