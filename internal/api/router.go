// Package api exposes battles and prices over HTTP.
package api

import (
	"battle-arena/internal/api/handlers"
	"battle-arena/internal/api/middleware"
	"battle-arena/internal/battle"
	"battle-arena/internal/ledger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Registry  *battle.Registry
	Registrar ledger.Registrar
	Prices    handlers.PriceReader
	// Hub is optional; without it /ws is not mounted.
	Hub            handlers.WSServer
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(middleware.CORS(d.AllowedOrigins...))
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(middleware.ErrorHandler(logger))

	battleHandler := handlers.NewBattleHandler(d.Registry, d.Registrar, logger)
	priceHandler := handlers.NewPriceHandler(d.Prices)
	strategyHandler := handlers.NewStrategyHandler()

	router.GET("/health", handlers.Health)
	router.GET("/metrics", handlers.Metrics())
	if d.Hub != nil {
		router.GET("/ws", handlers.Stream(d.Hub))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/prices", priceHandler.GetPrices)
		api.GET("/prices/history", priceHandler.GetHistory)

		api.GET("/strategies", strategyHandler.ListStrategies)

		api.GET("/battles", battleHandler.ListBattles)
		api.POST("/battles", battleHandler.CreateBattle)
		api.GET("/battles/current", battleHandler.CurrentBattle)
		api.GET("/battles/:id", battleHandler.GetBattle)
		api.GET("/battles/:id/leaderboard", battleHandler.GetLeaderboard)
		api.GET("/battles/:id/trades.csv", battleHandler.GetTradesCSV)
		api.POST("/battles/:id/participants", battleHandler.Join)
		api.POST("/battles/:id/start", battleHandler.Start)
		api.POST("/battles/:id/abort", battleHandler.Abort)
		api.POST("/battles/:id/report", battleHandler.Report)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
