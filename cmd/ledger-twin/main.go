// ledger-twin 启动本地奖励账本替身服务
//
// 配置来自环境变量（可选地从 .env 文件加载）：
//
//	LEDGER_TWIN_ADDR   监听地址，默认 :8787
//	LEDGER_TWIN_TOKEN  Bearer 令牌，为空时不校验
//	LEDGER_TWIN_SEED   启动时生成的卡片数量
//	LOG_LEVEL          日志级别
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/decker502/scratchcard/internal/ledgertwin"
	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/utils"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	seed := flag.Uint64("seed", 1, "seed for generated card amounts")
	flag.Parse()

	if err := run(*envFile, *seed); err != nil {
		fmt.Fprintln(os.Stderr, "ledger-twin:", err)
		os.Exit(1)
	}
}

func run(envFile string, seed uint64) error {
	if err := config.LoadEnvFiles(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadTwinConfig()
	if err != nil {
		return err
	}

	logger, err := utils.NewJSONLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store := ledgertwin.NewStore(cfg.SeedCards, seed)
	handler := ledgertwin.NewHandler(store, cfg.Token, cfg.SeedCards, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger twin listening",
			zap.String("addr", cfg.Addr),
			zap.Int("cards", cfg.SeedCards),
			zap.Bool("auth", cfg.Token != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
