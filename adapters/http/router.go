package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khoahotran/tagvault/pkg/auth"
	"github.com/khoahotran/tagvault/pkg/logger"
)

// Handlers groups everything the router mounts. JobHandler is nil when no
// broker is configured, and the jobs route is then left out.
type Handlers struct {
	Auth     *AuthHandler
	Taxonomy *TaxonomyHandler
	Jobs     *JobHandler
	RSS      *RSSHandler
}

func NewRouter(h Handlers, jwtSvc *auth.JWTService, log logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), ErrorMiddleware(log))

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		api.GET("/runs/feed", h.RSS.RunsFeed)

		admin := api.Group("/admin")
		{
			admin.POST("/auth/login", h.Auth.Login)

			adminPrivate := admin.Group("/")
			adminPrivate.Use(AuthMiddleware(jwtSvc, log))
			{
				adminPrivate.GET("/health-auth", func(c *gin.Context) {
					operatorID, ok := GetOperatorIDFromGinContext(c)
					if !ok {
						c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot get operator id from context"})
						return
					}
					c.JSON(http.StatusOK, gin.H{"status": "OK", "operator_id": operatorID})
				})

				adminPrivate.POST("/exports", h.Taxonomy.Export)
				adminPrivate.POST("/restores", h.Taxonomy.Restore)

				snapshots := adminPrivate.Group("/snapshots")
				{
					snapshots.GET("", h.Taxonomy.ListSnapshots)
					snapshots.GET("/:id", h.Taxonomy.GetSnapshot)
				}

				adminPrivate.GET("/runs", h.Taxonomy.ListRuns)

				if h.Jobs != nil {
					adminPrivate.POST("/jobs", h.Jobs.Submit)
				}
			}
		}
	}

	return router
}
