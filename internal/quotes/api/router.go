package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"goldex.com/pkg/common"
	"goldex.com/pkg/middleware"
	"goldex.com/pkg/ratelimit"
	"goldex.com/pkg/xerr"
)

type RouterOptions struct {
	ServiceName string
	// Limiter 为 nil 时不限流
	Limiter *ratelimit.Store
	// Stream 非 nil 时挂到 /ws
	Stream http.HandlerFunc
}

func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	// 监控; /metrics 在限流之前注册
	p := ginprom.NewPrometheus("goldex")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		if fp := c.FullPath(); fp != "" {
			return fp
		}
		return "unmatched"
	}
	p.Use(r)

	mws := []gin.HandlerFunc{
		otelgin.Middleware(opts.ServiceName),
		middleware.ReqId(),
		middleware.AccessLog(),
		cors.Default(),
		middleware.Recover(),
	}
	if opts.Limiter != nil {
		mws = append(mws, middleware.RateLimit(opts.Limiter))
	}
	r.Use(mws...)

	r.GET("/", h.Index)
	register(r.Group(""), h)
	register(r.Group("/api/v1"), h)
	if opts.Stream != nil {
		r.GET("/ws", gin.WrapF(opts.Stream))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, xerr.MapErrMsg(xerr.NotFound))
	})
	return r
}

func register(g *gin.RouterGroup, h *Handler) {
	g.GET("/health", h.Health)
	gold := g.Group("/gold")
	{
		gold.GET("/health", h.Health)
		gold.GET("/current", h.Current)
		gold.GET("/symbols", h.Symbols)
		gold.GET("/historical/:symbol", h.Historical)
		gold.GET("/:symbol", h.BySymbol)
	}
}

func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
