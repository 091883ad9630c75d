package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"goldex.com/internal/quotes/tail"
	"goldex.com/internal/quotes/ws"
	"goldex.com/pkg/logger"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:4000/ws", "stream url")
	symbols := flag.String("symbols", "", "comma separated symbols, e.g. XAUUSD,GC (default XAUUSD)")
	level := flag.String("log", "warn", "log level")
	flag.Parse()

	logger.Init("gold-tail", *level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var syms []string
	if *symbols != "" {
		for _, s := range strings.Split(*symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				syms = append(syms, s)
			}
		}
	}

	c := &tail.Client{
		URL:     *url,
		Symbols: syms,
		OnFrame: func(m ws.ServerMsg) { fmt.Fprintln(os.Stdout, tail.Line(m)) },
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("gold-tail: %v", err)
	}
}
