package http_api

import "github.com/gin-gonic/gin"

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/up", s.up)
	if s.metrics != nil {
		s.router.GET(s.config.MetricsPath, gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api/v1")
	limited := s.rateLimit()

	api.POST("/items/:id/reserve", limited, s.reserve)
	api.DELETE("/items/:id/reserve", limited, s.unreserve)
	api.GET("/items/:id/funding", s.itemFunding)
	api.PUT("/items/:id/price", limited, s.reprice)
	api.GET("/lists/:key/funding", s.listFunding)
	api.POST("/guest/logout", limited, s.logoutGuest)
	api.GET("/me/contributions", s.myContributions)

	api.GET("/ws/:key", s.socket)
	api.GET("/events/:key", s.events)
	api.GET("/poll/:key", s.poll)
}
