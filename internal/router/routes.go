// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/internal/handler"
	"github.com/noah-isme/uni-contrib-api/internal/middleware"
	"github.com/noah-isme/uni-contrib-api/internal/models"
)

// Handlers groups the endpoint handlers mounted by Register.
type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Faculties     *handler.FacultyHandler
	Events        *handler.EventHandler
	Contributions *handler.ContributionHandler
	Metrics       *handler.MetricsHandler
}

// Options configures route registration.
type Options struct {
	APIPrefix  string
	BannerDir  string
	EnableDocs bool
	Tokens     middleware.TokenValidator
	Audit      middleware.AuditRecorder
	Logger     *zap.Logger
}

// Register mounts every route on r.
func Register(r *gin.Engine, h Handlers, opts Options) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if opts.BannerDir != "" {
		r.Static("/media/banners", opts.BannerDir)
	}

	api := r.Group(opts.APIPrefix)
	authRequired := middleware.JWT(opts.Tokens)

	admin := middleware.RequireRoles(models.RoleAdmin)
	eventManagers := middleware.RequireRoles(models.RoleAdmin, models.RoleMarketingCoordinator)
	coordinators := middleware.RequireRoles(models.RoleMarketingCoordinator)
	authors := middleware.RequireRoles(models.RoleStudent, models.RoleAdmin)
	reporters := middleware.RequireRoles(models.RoleMarketingManager, models.RoleAdmin)

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/register", h.Auth.Register)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", authRequired, h.Auth.Logout)
	auth.POST("/change-password", authRequired, h.Auth.ChangePassword)

	api.GET("/files/download",
		middleware.Audit(opts.Audit, opts.Logger, models.AuditActionFileDownload, "contribution_files"),
		h.Contributions.Download)

	secured := api.Group("")
	secured.Use(authRequired)

	faculties := secured.Group("/faculties")
	faculties.GET("", h.Faculties.List)
	faculties.GET("/:id", h.Faculties.Get)
	faculties.POST("", admin, h.Faculties.Create)
	faculties.PUT("/:id", admin, h.Faculties.Update)
	faculties.DELETE("/:id", admin, h.Faculties.Delete)
	faculties.POST("/:id/banner", admin, h.Faculties.UploadBanner)

	events := secured.Group("/events")
	events.GET("", h.Events.List)
	events.GET("/:id", h.Events.Get)
	events.POST("", eventManagers, h.Events.Create)
	events.PUT("/:id", eventManagers, h.Events.Update)
	events.DELETE("/:id", eventManagers, h.Events.Delete)

	contributions := secured.Group("/contributions")
	contributions.GET("", h.Contributions.List)
	contributions.GET("/stats", reporters, h.Contributions.Stats)
	contributions.GET("/export", reporters, h.Contributions.Export)
	contributions.GET("/:id", h.Contributions.Get)
	contributions.POST("", middleware.RequireRoles(models.RoleStudent), h.Contributions.Submit)
	contributions.PUT("/:id", authors, h.Contributions.Update)
	contributions.DELETE("/:id", authors, h.Contributions.Delete)
	contributions.PATCH("/:id/review", coordinators, h.Contributions.Review)
	contributions.PATCH("/:id/visibility", coordinators, h.Contributions.SetVisibility)
	contributions.GET("/:id/files/:index/url", h.Contributions.FileURL)

	users := secured.Group("/users")
	users.PUT("/me/profile", h.Users.UpdateProfile)
	users.GET("", admin, h.Users.List)
	users.POST("", admin, h.Users.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.Self), h.Users.Get)
	users.PUT("/:id", admin, h.Users.Update)
	users.DELETE("/:id", admin, h.Users.Delete)
}
