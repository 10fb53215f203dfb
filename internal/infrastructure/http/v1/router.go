// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"retailcore/internal/domain/auth"
	"retailcore/internal/domain/inventory"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/domain/receipt"
	"retailcore/internal/domain/telebirr"
	"retailcore/internal/infrastructure/http/v1/handlers"
	"retailcore/internal/infrastructure/http/v1/middleware"
	"retailcore/internal/infrastructure/storage/postgres"
	"retailcore/pkg/logger"
)

// Permission claims checked at the route level. Capability checks inside
// the engines (adjust, void) are enforced separately by the domain layer.
const (
	PermInventoryRead  = "inventory.read"
	PermInventoryWrite = "inventory.write"
	PermLedgerRead     = "ledger.read"
	PermLedgerWrite    = "ledger.write"
	PermLedgerAdmin    = "ledger.admin"
	PermReceiptCreate  = "pos.receipt.create"
	PermReceiptRead    = "pos.receipt.read"
	PermReceiptVoid    = "pos.receipt.void"
	PermTelebirrPost   = "telebirr.transaction.post"
	PermTelebirrRead   = "telebirr.transaction.read"
	PermTelebirrVoid   = "telebirr.transaction.void"
	PermTelebirrAdmin  = "telebirr.admin"
)

// RouterConfig holds the wired services for route registration.
type RouterConfig struct {
	Pool   *postgres.Pool
	Logger *logger.Logger

	JWTValidator middleware.JWTValidator

	AuthService      *auth.Service
	InventoryService *inventory.Service
	LedgerService    *ledger.Service
	ReceiptService   *receipt.Service
	TelebirrService  *telebirr.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(baseHandler, cfg.AuthService)
		apiV1.POST("/auth/login", authHandler.Login)

		protected := apiV1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		protected.GET("/auth/me", authHandler.Me)

		registerInventoryRoutes(protected, baseHandler, cfg)
		registerLedgerRoutes(protected, baseHandler, cfg)
		registerReceiptRoutes(protected, baseHandler, cfg)
		registerTelebirrRoutes(protected, baseHandler, cfg)
	}

	return router
}

func registerInventoryRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewInventoryHandler(base, cfg.InventoryService)
	inv := rg.Group("/inventory")

	write := middleware.RequirePermission(PermInventoryWrite)
	read := middleware.RequirePermission(PermInventoryRead)

	inv.POST("/opening-balance", write, handler.OpeningBalance)
	inv.POST("/receive", write, handler.Receive)
	inv.POST("/reserve", write, handler.Reserve)
	inv.POST("/unreserve", write, handler.Unreserve)
	inv.POST("/issue", write, handler.Issue)
	inv.POST("/adjust", write, handler.Adjust)
	inv.POST("/transfer", write, handler.Transfer)
	inv.GET("/items/:productId/:branchId", read, handler.GetItem)
	inv.GET("/movements", read, handler.ListMovements)
}

func registerLedgerRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewJournalHandler(base, cfg.LedgerService)
	gl := rg.Group("/ledger")

	write := middleware.RequirePermission(PermLedgerWrite)
	read := middleware.RequirePermission(PermLedgerRead)

	gl.POST("/journals", write, handler.Create)
	gl.POST("/journals/:id/lines", write, handler.AppendLines)
	gl.POST("/journals/:id/post", write, handler.Post)
	gl.POST("/journals/:id/reverse", write, handler.Reverse)
	gl.POST("/journals/:id/void", write, handler.Void)
	gl.GET("/journals/:id", read, handler.Get)
	gl.GET("/journals", read, handler.List)
	gl.GET("/trial-balance", read, handler.TrialBalance)
	gl.GET("/subledger-balance", read, handler.SubledgerBalance)
	gl.POST("/accounts", middleware.RequirePermission(PermLedgerAdmin), handler.CreateAccount)
	gl.GET("/accounts", read, handler.ListAccounts)
}

func registerReceiptRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewReceiptHandler(base, cfg.ReceiptService)
	pos := rg.Group("/pos")

	pos.POST("/receipts",
		middleware.RequirePermission(PermReceiptCreate),
		middleware.RequireIdempotencyKey(),
		handler.Process)
	pos.POST("/receipts/:id/void", middleware.RequirePermission(PermReceiptVoid), handler.Void)
	pos.GET("/receipts/:id", middleware.RequirePermission(PermReceiptRead), handler.Get)
	pos.GET("/receipts", middleware.RequirePermission(PermReceiptRead), handler.List)
}

func registerTelebirrRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	handler := handlers.NewTelebirrHandler(base, cfg.TelebirrService)
	tlb := rg.Group("/telebirr")

	read := middleware.RequirePermission(PermTelebirrRead)
	admin := middleware.RequirePermission(PermTelebirrAdmin)

	tlb.POST("/transactions",
		middleware.RequirePermission(PermTelebirrPost),
		middleware.RequireIdempotencyKey(),
		handler.Post)
	tlb.POST("/transactions/:id/void", middleware.RequirePermission(PermTelebirrVoid), handler.Void)
	tlb.GET("/transactions/:id", read, handler.Get)
	tlb.GET("/transactions", read, handler.List)

	tlb.POST("/agents", admin, handler.CreateAgent)
	tlb.PUT("/agents/:code/status", admin, handler.SetAgentStatus)
	tlb.GET("/agents", read, handler.ListAgents)
	tlb.GET("/agents/:code/outstanding", read, handler.AgentOutstanding)

	tlb.POST("/bank-accounts", admin, handler.CreateBankAccount)
}
