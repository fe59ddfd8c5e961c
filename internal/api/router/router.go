package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/printforge/preflight/internal/api/handlers/preflight"
)

func Setup(h *preflight.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/healthz", h.Health)

	api := r.Group("/api")

	api.POST("/preflight", h.Enqueue)    // enqueue an upload for preflight
	api.GET("/uploads/:id", h.GetUpload) // order-level status and summary
	api.GET("/items/:id", h.GetItem)     // per-item status and check results

	return r
}
