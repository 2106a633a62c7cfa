package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/coord"
	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/http/handlers"
	"github.com/fixflow/backend/internal/http/middleware"
	"github.com/fixflow/backend/internal/service"
	"github.com/fixflow/backend/internal/triage"

	_ "github.com/fixflow/backend/docs"
)

func Router(cfg config.Config, store db.Store, engine *triage.Engine, pipeline *service.Pipeline, coordinator *coord.Coordinator, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id", "X-User-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:       store,
		Engine:      engine,
		Pipeline:    pipeline,
		Coordinator: coordinator,
		Validator:   validator.New(),
		Logger:      logger,
		AdminKey:    cfg.AdminKey,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/triage/start", h.StartTriage)
		api.POST("/triage/:id/message", h.ContinueTriage)
		api.POST("/triage/:id/complete", h.CompleteTriage)

		api.GET("/cases", h.CasesList)
		api.GET("/cases/:id", h.CaseDetails)
		api.POST("/cases/:id/accept", h.AcceptCase)
		api.POST("/cases/:id/decline", h.DeclineCase)
		api.POST("/cases/:id/schedule", h.ScheduleCase)

		api.GET("/vendors", h.VendorsList)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/cases/:id/assign", h.AssignCase)
		admin.POST("/vendors/import", h.VendorsImport)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
