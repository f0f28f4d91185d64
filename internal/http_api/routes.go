package http_api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/api/v1")
	api.POST("/visits", s.createVisit)
	api.GET("/visits/:uuid", s.getVisit)
	api.POST("/ring", s.ring)
	api.GET("/push/public-key", s.publicKey)

	resident := api.Group("", s.requireResident())
	resident.POST("/subscriptions", s.subscribe)
	resident.GET("/subscriptions", s.listSubscriptions)

	admin := api.Group("/admin", s.requireResident(), s.requireAdmin())
	admin.GET("/stats", s.stats)
}
