package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/car-valuation-api/internal/config"
	"github.com/Brownie44l1/car-valuation-api/internal/damage"
	"github.com/Brownie44l1/car-valuation-api/internal/handlers"
	"github.com/Brownie44l1/car-valuation-api/internal/logging"
	"github.com/Brownie44l1/car-valuation-api/internal/metrics"
	"github.com/Brownie44l1/car-valuation-api/internal/model"
	"github.com/Brownie44l1/car-valuation-api/internal/pricing"
	"github.com/Brownie44l1/car-valuation-api/internal/valuation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires and serves the API. Deferred cleanup runs before it returns.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	gin.SetMode(cfg.GinMode)

	brands, err := loadBrands(cfg.BrandFactorsPath)
	if err != nil {
		logger.Error("failed to load brand factors", zap.Error(err), zap.String("path", cfg.BrandFactorsPath))
		return err
	}

	session, err := model.NewSession(cfg.ModelPath, cfg.MetadataPath, cfg.ORTLibraryPath, logger)
	if err != nil {
		logger.Error("failed to load damage model", zap.Error(err), zap.String("model_path", cfg.ModelPath))
		return err
	}
	defer session.Close()

	m := metrics.New()
	scorer := damage.NewScorer(session, damage.WithLogger(logger), damage.WithObserver(m))

	opts := []valuation.Option{
		valuation.WithRecorder(m),
		valuation.WithModelVersion(session.Metadata.Version),
	}
	if cache := initCache(cfg.RedisAddr, logger); cache != nil {
		defer cache.Close()
		opts = append(opts, valuation.WithCache(cache, cfg.DamageCacheTTL))
	}
	svc := valuation.NewService(scorer, pricing.NewEstimator(brands), logger, opts...)

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(gin.Recovery(), handlers.CORS(), handlers.RequestLogger(logger), m.Middleware())

	handlers.RegisterRoutes(r, handlers.NewHandler(svc, brands, logger, cfg.MaxUploadBytes), m.Handler())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("car valuation API listening",
		zap.String("addr", cfg.Addr()),
		zap.String("model_version", session.Metadata.Version),
		zap.Strings("brands", brands.Brands()),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func loadBrands(path string) (pricing.BrandTable, error) {
	if path == "" {
		return pricing.DefaultBrandTable(), nil
	}
	return pricing.LoadBrandTable(path)
}

// initCache returns nil when no Redis address is configured or the server
// does not answer; valuations then always run the model.
func initCache(addr string, logger *zap.Logger) *valuation.RedisCache {
	if addr == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := valuation.DialRedis(ctx, addr)
	if err != nil {
		logger.Warn("redis unavailable, damage cache disabled", zap.String("addr", addr), zap.Error(err))
		return nil
	}
	logger.Info("damage cache enabled", zap.String("addr", addr))
	return valuation.NewRedisCache(client)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
