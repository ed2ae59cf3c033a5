// Command dispatchd runs the Dispatch engine behind a standalone HTTP
// server. It is the quickest way to try the API; production embeddings
// usually go through the Forge extension instead.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	dispatch "github.com/xraph/dispatch"
	"github.com/xraph/dispatch/failure"
	"github.com/xraph/dispatch/httpapi"
	"github.com/xraph/dispatch/settlement"
	"github.com/xraph/dispatch/store/memory"
	"github.com/xraph/dispatch/types"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	addr := envOr("DISPATCH_ADDR", ":8080")
	// Currency codes are lowercase internally.
	currency := strings.ToLower(envOr("DISPATCH_CURRENCY", "xaf"))
	feeCents := envInt64("DISPATCH_CANCELLATION_FEE_CENTS", 0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := memory.New()
	if err := s.SeedReasons(ctx, failure.DefaultReasons()); err != nil {
		logger.Error("failed to seed failure reasons", "error", err)
		os.Exit(1)
	}

	opts := []dispatch.Option{dispatch.WithLogger(logger)}
	if feeCents > 0 {
		opts = append(opts, dispatch.WithSettlementConfig(settlement.Config{
			CancellationFee: types.Money{Amount: feeCents, Currency: currency},
		}))
	}

	eng := dispatch.New(s, opts...)
	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.New(eng, httpapi.WithLogger(logger)).Register(r)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("dispatchd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := eng.Stop(); err != nil {
		logger.Error("engine shutdown", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("ignoring malformed env value", "key", key, "value", v)
		return fallback
	}
	return n
}
