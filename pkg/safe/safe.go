package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"goldex.com/pkg/logger"
)

// Go 安全启动协程
func Go(fn func()) {
	GoCtx(context.Background(), func(context.Context) { fn() })
}

// GoCtx 安全启动携带 context 的协程，便于在日志中保留请求链路信息。
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer Recover(ctx, "goroutine")
		fn(ctx)
	}()
}

// Recover must be deferred directly. It logs the panic with its stack and
// swallows it.
func Recover(ctx context.Context, where string) {
	if r := recover(); r != nil {
		logger.Error(ctx, "panic recovered",
			zap.String("where", where),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
