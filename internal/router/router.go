package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/ticket-queue/api"
	"github.com/psds-microservice/ticket-queue/internal/handler"
	"github.com/psds-microservice/ticket-queue/internal/metrics"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// PathMetrics — эндпоинт Prometheus; в helpy/paths его нет.
const PathMetrics = "/metrics"

type Deps struct {
	Tickets  *handler.TicketHandler
	Sessions *handler.SessionHandler
	Store    handler.Pinger
	Log      *zap.Logger
}

func New(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestIDMiddleware(), handler.AccessLog(log), metrics.GinMiddleware())

	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready(d.Store))
	r.GET(PathMetrics, gin.WrapH(promhttp.Handler()))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		tickets := v1.Group("/tickets")
		tickets.POST("/start-day", d.Tickets.StartDay)
		tickets.POST("/end-day", d.Tickets.EndDay)
		tickets.POST("/take", d.Tickets.Take)
		tickets.GET("/status", d.Tickets.Status)
		tickets.POST("/call-next", d.Tickets.CallNext)
		tickets.POST("/finish-current", d.Tickets.FinishCurrent)
		tickets.GET("/snapshot", d.Tickets.Snapshot)
		tickets.GET("/:number", d.Tickets.Get)

		if d.Sessions != nil {
			sessions := v1.Group("/sessions")
			sessions.POST("", d.Sessions.Create)
			sessions.GET("", d.Sessions.Summary)
			sessions.GET("/leaderboard", d.Sessions.Leaderboard)
			sessions.GET("/:id", d.Sessions.Get)
			sessions.DELETE("/:id", d.Sessions.End)
			sessions.POST("/:id/activity", d.Sessions.Activity)
		}
	}

	return r
}
