package httpserver

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sortdesk/mailpilot/internal/api"
)

type Router struct {
	Engine *gin.Engine
}

// NewRouter wires the analysis-pipeline HTTP surface. Authentication is the
// product gateway's job; nothing here inspects credentials.
func NewRouter(queueHandler *api.QueueHandler, analysisHandler *api.AnalysisHandler) *Router {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/review-queue", queueHandler.GetReviewQueue)
	r.POST("/emails/:id/reviewed", queueHandler.MarkReviewed)
	r.GET("/emails/:id/analysis", analysisHandler.GetAnalysis)

	r.POST("/analysis/batch", analysisHandler.RunBatch)
	r.POST("/analysis/invalidate", analysisHandler.Invalidate)

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
