package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

// NewRouter wires every route of the api server. auth must store the caller
// identity on the context, see the middlewares package.
func NewRouter(h *Handler, auth gin.HandlerFunc, serviceName string) *gin.Engine {
	// Default With the Logger and Recovery middleware already attached
	router := gin.Default()

	router.Use(cors.New(corsConfig()))
	router.Use(gintrace.Middleware(serviceName))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	router.GET("/subscription", auth, h.Subscribe)

	api := router.Group("/api", auth)
	api.POST("/posts", h.CreatePost)
	api.GET("/posts", h.ListPosts)
	api.GET("/posts/:id", h.GetPost)
	api.PATCH("/posts/:id", h.EditPost)
	api.DELETE("/posts/:id", h.DeletePost)
	api.POST("/posts/:id/pin", h.PinPost)
	api.POST("/posts/:id/quote", h.QuotePost)
	api.POST("/posts/:id/like", h.ToggleLike)
	api.POST("/posts/:id/repost", h.ToggleRepost)
	api.POST("/posts/:id/share", h.IncrementShare)
	api.GET("/stats", h.Stats)

	return router
}

func corsConfig() cors.Config {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AddAllowHeaders("Authorization", "X-User-Id", "X-User-Name", "X-User-Avatar", "X-User-Role")
	config.AddAllowMethods("PATCH", "DELETE")
	return config
}
