package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"goldex.com/internal/quotes/app"
	"goldex.com/internal/quotes/config"
	"goldex.com/pkg/logger"
)

var configDir = flag.String("c", "", "directory holding gold-quotes.yaml (default ./config and .)")

func main() {
	flag.Parse()

	// 1. 支持 Ctrl+C / kubernetes 停止信号的 context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 配置; 校验失败直接退出
	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, v, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("gold-quotes config: %v", err)
	}

	if cfg.Log.File != "" {
		logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)
	} else {
		logger.Init(cfg.Name, cfg.Log.Level)
	}

	// 3. 组装
	a, err := app.New(ctx, cfg, v)
	if err != nil {
		logger.Fatal(ctx, "init gold-quotes", zap.Error(err))
	}
	defer a.Close()

	// 4. 运行直到收到信号
	if err := a.Run(ctx); err != nil {
		logger.Error(ctx, "gold-quotes stopped with error", zap.Error(err))
		return
	}
	logger.Info(context.Background(), "gold-quotes exit")
}
