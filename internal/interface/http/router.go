package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanqian/mealplanner/internal/infra/config"
	"github.com/yanqian/mealplanner/pkg/metrics"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, m *metrics.Metrics) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(handler.logger),
		metricsMiddleware(m),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		errorHandlingMiddleware(handler.logger),
		guardWrites(cfg.HTTP.AllowedOrigins),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if m != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/session", handler.Session)
		credentials := api.Group("/session", credentialThrottle(cfg.HTTP.RateLimit, handler.logger))
		{
			credentials.POST("/login", handler.Login)
			credentials.POST("/register", handler.Register)
		}
		api.POST("/session/logout", handler.Logout)
		api.GET("/public/users/:userId/meal-plans/:id", handler.PublicPlan)

		if handler.events != nil {
			api.GET("/events", handler.events.Serve)
		}

		authed := api.Group("", sessionRequired(handler.sessions))
		{
			authed.GET("/profile", handler.Profile)
			authed.PUT("/profile", handler.UpdateProfile)
			authed.GET("/meal-plans", handler.ListPlans)
			authed.GET("/meal-plans/latest", handler.LatestPlan)
			authed.GET("/meal-plans/generation", handler.GenerationStatus)
			authed.DELETE("/meal-plans/generation", handler.CancelGeneration)
			authed.POST("/meal-plans/generate", handler.Generate)
			authed.GET("/meal-plans/:id", handler.GetPlan)
		}
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
