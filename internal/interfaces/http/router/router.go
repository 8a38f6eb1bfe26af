// Package router assembles the gin engine serving the Web Connector.
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/logger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRoutes)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	registrars []RouteRegistrar
}

// Config controls the middleware stack
type Config struct {
	ServiceName    string
	TracingEnabled bool
	MaxBodyBytes   int64
	// Meter records HTTP metrics when set
	Meter metric.Meter
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithRegistrar registers routes at construction time
func WithRegistrar(registrar RouteRegistrar) RouterOption {
	return func(r *Router) {
		r.registrars = append(r.registrars, registrar)
	}
}

// NewEngine creates a gin engine with the standard middleware stack:
// request id, request logging, panic recovery, tracing, metrics and the body limit.
func NewEngine(cfg Config, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.BodyLimit(cfg.MaxBodyBytes),
	)
	return engine
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine and returns it
func (r *Router) Setup() *gin.Engine {
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(r.engine)
	}
	return r.engine
}
