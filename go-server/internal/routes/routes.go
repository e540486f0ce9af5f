package route

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fonsecaaso/shortlink/go-server/internal/handler"
	"github.com/fonsecaaso/shortlink/go-server/internal/middleware"
)

func SetupRouter(urlHandler *handler.URLHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(middleware.MetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/urls")
	{
		api.POST("", urlHandler.CreateURL)
		api.GET("", urlHandler.GetAllURLs)
		api.GET("/:code", urlHandler.GetURL)
		api.PATCH("/:code", urlHandler.UpdateURL)
		api.POST("/:code/redirect", urlHandler.RecordClick)
		api.DELETE("/:id", urlHandler.DeleteURL)
	}

	r.GET("/r/:code", urlHandler.Redirect)

	return r
}
