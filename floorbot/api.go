package floorbot

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const apiHealthCheck = "/healthz"

// API is a small status HTTP server, off by default. It exposes a
// health endpoint for process supervisors; there's no admin surface.
type API struct {
	config     *APIConfig
	engine     *gin.Engine
	listener   net.Listener
	httpServer *http.Server
	logger     *slog.Logger
	bot        *Bot
}

func newAPI(bot *Bot, config *APIConfig) *API {
	gin.SetMode(gin.ReleaseMode)

	a := &API{
		config: config,
		bot:    bot,
		logger: slog.New(
			newLogHandler(config.LogLevel),
		).With(loggerNameKey, "api"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), a.loggingMiddleware())
	engine.GET(apiHealthCheck, a.healthCheck)
	a.engine = engine

	a.httpServer = &http.Server{
		Handler:           engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return a
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK,
		gin.H{
			"uptime":            time.Since(a.bot.startedAt).String(),
			"discord_connected": a.bot.discord.connected.Load(),
		},
	)
}

func (a *API) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// Serve listens on the configured address until ctx is canceled.
func (a *API) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.config.Listen)
	if err != nil {
		return err
	}
	a.listener = listener
	a.logger.Info("api listening", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()
		if shutdownErr := a.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Error("error shutting down api", tint.Err(shutdownErr))
		}
	}()

	if err = a.httpServer.Serve(listener); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
