package router

import (
	"vallenar/internal/config"
	"vallenar/internal/handler"
	"vallenar/internal/infra"
	"vallenar/internal/middleware"
	"vallenar/internal/model"
	"vallenar/internal/repository"
	"vallenar/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const productCachePrefix = "catalogo:"

// Services is the wired engine, shared between the HTTP layer and the
// background workers started by the composition root.
type Services struct {
	Tx        service.TxRunner
	Outbox    repository.OutboxRepository
	Auth      service.AuthService
	Terminals service.TerminalService
	Quotes    service.QuoteService
}

// NewServices wires repositories and services.
// Dependency graph: Service ← Repository ← DB/Redis
func NewServices(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *Services {
	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	terminalRepo := repository.NewTerminalRepository(db)
	cashRepo := repository.NewCashRegisterRepository(db)
	productRepo := repository.NewProductRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// ── Shared collaborators ─────────────────────────────────────────────────
	tx := service.NewTxRunner(db, cfg.TxMaxRetries)
	audit := service.NewAuditRecorder(auditRepo)
	limiter := infra.NewRedisPinLimiter(rdb, cfg.PinMaxFailedAttempts, cfg.PinLockout())
	catalog := service.NewCatalog(productRepo, infra.NewRedisCache(rdb, productCachePrefix), cfg.ProductCacheTTL())

	// ── Services ─────────────────────────────────────────────────────────────
	return &Services{
		Tx:        tx,
		Outbox:    outboxRepo,
		Auth:      service.NewAuthService(userRepo, cfg),
		Terminals: service.NewTerminalService(tx, terminalRepo, cashRepo, audit, outboxRepo),
		Quotes: service.NewQuoteService(service.QuoteDeps{
			Tx:          tx,
			Quotes:      quoteRepo,
			Inventory:   inventoryRepo,
			Sales:       saleRepo,
			Cash:        cashRepo,
			Terminals:   terminalRepo,
			Catalog:     catalog,
			Authorizer:  service.NewAuthorizer(userRepo, limiter),
			Audit:       audit,
			Outbox:      outboxRepo,
			DefaultDays: cfg.QuoteDefaultValidDays,
		}),
	}
}

// New returns a configured Gin engine serving svcs.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, svcs *Services, relayCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.Env, cfg.AllowedOrigins()))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.NewIPRateLimiter(cfg.APIRateLimitRPS, cfg.APIRateLimitBurst).Middleware())

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(svcs.Auth)
	terminalH := handler.NewTerminalHandler(svcs.Terminals)
	cotizacionH := handler.NewCotizacionHandler(svcs.Quotes)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, relayCB, svcs.Outbox))
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.NewLoginRateLimiter().Middleware(), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Protected routes
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		term := v1.Group("/terminales")
		{
			term.GET("/:id", terminalH.Obtener)
			term.POST("/:id/abrir", terminalH.Abrir)
			term.POST("/:id/cerrar", terminalH.Cerrar)
			term.POST("/:id/forzar-cierre", middleware.RequireRole(model.RoleGerente), terminalH.ForzarCierre)
		}

		cot := v1.Group("/cotizaciones")
		{
			cot.POST("", cotizacionH.Crear)
			cot.GET("/:id", cotizacionH.Obtener)
			cot.PUT("/:id", cotizacionH.Actualizar)
			cot.POST("/:id/descuento", cotizacionH.Descuento)
			cot.POST("/:id/convertir", cotizacionH.Convertir)
			cot.POST("/:id/cancelar", cotizacionH.Cancelar)
			cot.POST("/expirar", middleware.RequireRole(model.RoleSupervisor), cotizacionH.Expirar)
		}
	}

	return r
}
