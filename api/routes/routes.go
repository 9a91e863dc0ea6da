package routes

import (
	"net/http"

	"github.com/ArowuTest/lottery-settlement/internal/config"
	"github.com/ArowuTest/lottery-settlement/internal/handlers"
	"github.com/ArowuTest/lottery-settlement/internal/middleware"
	"github.com/gin-gonic/gin"
)

// HandlerDependencies holds everything the router serves
type HandlerDependencies struct {
	SettlementHandler   *handlers.SettlementHandler
	AnnouncementHandler *handlers.AnnouncementHandler
	Metrics             http.Handler
	Observer            middleware.RequestObserver
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedHosts))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(deps.Observer))

	h := deps.SettlementHandler

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", h.Health)
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// Protected routes
	lottery := router.Group("/api/v1/lottery")
	lottery.Use(middleware.JWTAuthMiddleware(cfg.JWT.Secret))
	{
		lottery.GET("/state", h.GetState)
		lottery.GET("/transactions/incoming", h.GetIncomingTransactions)
		lottery.GET("/transactions/outgoing", h.GetOutgoingTransactions)
		lottery.GET("/entries/valid", h.GetValidEntries)
		lottery.GET("/winners", h.GetWinners)
		lottery.GET("/runs", h.ListRuns)
		lottery.GET("/runs/:id", h.GetRun)
		if deps.AnnouncementHandler != nil {
			lottery.GET("/announcements", deps.AnnouncementHandler.ListAnnouncements)
		}

		lottery.POST("/draw", h.ExecuteDraw)
		lottery.POST("/jackpot/update", h.UpdateJackpot)
		lottery.POST("/payout", h.PayoutWinners)
		lottery.POST("/payout/affiliates", h.PayoutAffiliates)
	}

	return router
}
