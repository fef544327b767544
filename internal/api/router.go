// Package api exposes the entitlement chain over HTTP.
package api

import (
	"time"

	"entitlement-service/internal/common/auth"
	"entitlement-service/internal/common/database"
	"entitlement-service/internal/common/logger"
	"entitlement-service/internal/entitlement"
	"entitlement-service/internal/models"
	"entitlement-service/pkg/plans"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Service        *entitlement.Service
	Verifier       *auth.Verifier
	Logger         logger.Logger
	Readiness      map[string]database.Pinger
	AllowedOrigins []string
}

// NewRouter wires the public and entitled routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), InFlight(), RequestLogger(cfg.Logger))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", headerFileSize},
		MaxAge:       12 * time.Hour,
	}))

	m := NewMiddleware(cfg.Service, cfg.Verifier, cfg.Logger)
	h := NewHandlers(cfg.Service, cfg.Readiness, cfg.Logger)

	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/plans", h.Catalog)

	entitled := v1.Group("")
	entitled.Use(m.Authenticate(), m.LoadUser(), m.RequireActiveSubscription())
	{
		entitled.GET("/plan", h.PlanInfo)

		entitled.POST("/recordings",
			m.CheckQuality(),
			m.CheckFileSize(),
			m.CheckUsageLimit(models.ResourceRecordings, Fixed(1)),
			m.TrackUsage(models.ResourceRecordings),
			h.Accept("recording"),
		)
		entitled.POST("/scripts",
			m.CheckUsageLimit(models.ResourceScripts, Fixed(1)),
			m.TrackUsage(models.ResourceScripts),
			h.Accept("script"),
		)
		entitled.POST("/exports",
			m.CheckFeature(plans.FeatureExportOptions),
			m.CheckUsageLimit(models.ResourceExports, Fixed(1)),
			m.TrackUsage(models.ResourceExports),
			h.Accept("export"),
		)
		entitled.POST("/analysis",
			m.CheckFeature(plans.FeatureAdvancedAnalysis),
			m.CheckUsageLimit(models.ResourceAIAnalysisMinutes, PayloadMinutes),
			m.TrackUsage(models.ResourceAIAnalysisMinutes),
			h.Accept("analysis"),
		)
		entitled.POST("/coaching", m.CheckFeature(plans.FeatureAICoaching), h.Accept("coaching"))
		entitled.PUT("/branding", m.CheckFeature(plans.FeatureCustomBranding), h.Accept("branding"))
		entitled.GET("/organization",
			m.RequirePlan(plans.Studio),
			m.CheckFeature(plans.FeatureOrganizationAccess),
			h.Accept("organization"),
		)
		entitled.POST("/support/priority", m.CheckFeature(plans.FeaturePrioritySupport), h.Accept("priority_support"))
	}

	return router
}
