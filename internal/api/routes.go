package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"uniMatch/internal/api/middleware"
	"uniMatch/internal/auth"
	"uniMatch/internal/database"
	"uniMatch/internal/engine"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	db *gorm.DB,
	eng *engine.Engine,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	internalSecret string,
) {
	authHandler := NewAuthHandler(db, authService, redisClient, logger)
	applicationHandler := NewApplicationHandler(db, eng, logger)
	offerHandler := NewOfferHandler(db, eng, logger)
	engineHandler := NewEngineHandler(eng, logger)

	authMiddleware := middleware.AuthMiddleware(authService)
	recruiterOnly := middleware.RequireRoles(database.RoleRecruiter, database.RoleAdmin)
	adminOnly := middleware.RequireRoles(database.RoleAdmin)

	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		applicationGroup := v1.Group("/applications")
		applicationGroup.Use(authMiddleware)
		{
			applicationGroup.POST("", applicationHandler.Create)
			applicationGroup.GET("/:id/fit", applicationHandler.GetFit)
			applicationGroup.POST("/:id/feedback", recruiterOnly, applicationHandler.CreateFeedback)
			applicationGroup.POST("/:id/mark-fake", adminOnly, applicationHandler.MarkFake)
		}

		offerGroup := v1.Group("/offers")
		offerGroup.Use(authMiddleware, recruiterOnly)
		{
			offerGroup.GET("/:id/ranking", offerHandler.Ranking)
			offerGroup.POST("/:id/close", offerHandler.Close)
			offerGroup.POST("/:id/reopen", offerHandler.Reopen)
			offerGroup.POST("/:id/extend-deadline", offerHandler.ExtendDeadline)
		}

		profileGroup := v1.Group("/profiles")
		profileGroup.Use(authMiddleware)
		{
			profileGroup.GET("/me/score-history", applicationHandler.ScoreHistory)
		}
	}

	// 内部接口：CRUD 层在实体变更后回调，凭共享密钥访问。
	internal := router.Group("/internal")
	internal.Use(middleware.InternalSecretMiddleware(internalSecret))
	{
		internal.POST("/recompute/candidate/:id", engineHandler.RecomputeCandidate)
		internal.POST("/recompute/offer/:id", engineHandler.RecomputeOffer)
		internal.GET("/audit/score/:id", engineHandler.AuditScore)
	}
}
