package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/we-api/controllers"
	"github.com/cppla/we-api/middleware"
	"github.com/cppla/we-api/utils"
)

// Deps is everything the router wires together.
type Deps struct {
	GinMode        string
	AllowedOrigins []string
	StaticDir      string
	StaticURL      string

	AccessLog *zap.Logger
	Log       *zap.Logger

	Auth      middleware.TokenValidator
	RateLimit *middleware.IPRateLimiter

	AuthController   *controllers.AuthController
	UserController   *controllers.UserController
	BoardController  *controllers.BoardController
	PostController   *controllers.PostController
	ReportController *controllers.ReportController
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	switch strings.ToLower(d.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(ginzap.Ginzap(d.AccessLog, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(d.AccessLog, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", controllers.SnapshotHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(d.AllowedOrigins) == 0 || (len(d.AllowedOrigins) == 1 && d.AllowedOrigins[0] == "*") {
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = d.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if d.StaticDir != "" && d.StaticURL != "" {
		r.Static(d.StaticURL, d.StaticDir)
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.JSON(ctx, http.StatusOK, gin.H{"status": "ok"})
	})

	authRequired := middleware.AuthRequired(d.Auth, d.Log)
	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(d.RateLimit.Middleware())
	authGroup.POST("/requestverificationcode", d.AuthController.RequestVerificationCode)
	authGroup.GET("/captcha", d.AuthController.Captcha)
	authGroup.POST("/register", d.AuthController.Register)
	authGroup.POST("/login", d.AuthController.Login)
	authGroup.POST("/refresh", d.AuthController.Refresh)
	authGroup.POST("/logout", authRequired, d.AuthController.Logout)
	authGroup.PATCH("/change-password", authRequired, d.AuthController.ChangePassword)

	userGroup := api.Group("/user", authRequired)
	userGroup.GET("/current-user", d.UserController.CurrentUser)
	userGroup.PUT("/update-user", d.UserController.UpdateUser)

	boards := api.Group("/boards", authRequired)
	boards.GET("", d.BoardController.List)
	boards.GET("/", d.BoardController.List)
	boards.GET("/myboards", d.BoardController.ListMine)
	boards.GET("/following", d.BoardController.ListFollowed)
	boards.POST("/create", d.BoardController.Create)
	boards.GET("/:id", d.BoardController.Get)
	boards.PUT("/:id", d.BoardController.Update)
	boards.POST("/:id/toggleFollow", d.BoardController.ToggleFollow)
	boards.GET("/:id/isFollowed", d.BoardController.IsFollowed)

	posts := api.Group("/posts", authRequired)
	posts.GET("/for-you", d.PostController.ForYou)
	posts.GET("/following", d.PostController.Following)
	posts.GET("/bookmarks", d.PostController.Bookmarks)
	posts.GET("/board/:id", d.PostController.ByBoard)
	posts.POST("/create", d.PostController.CreatePost)
	posts.GET("/user/:id", d.PostController.ByUser)
	posts.GET("/user/:id/replies", d.PostController.RepliesByUser)
	posts.GET("/user/:id/upvotes", d.PostController.UpvotedByUser)
	posts.GET("/user/:id/downvotes", d.PostController.DownvotedByUser)
	posts.GET("/:id", d.PostController.GetPost)
	posts.GET("/:id/replies", d.PostController.Replies)
	posts.GET("/:id/thread", d.PostController.Thread)
	posts.POST("/:id/reply", d.PostController.Reply)
	posts.PUT("/:id/upvote", d.PostController.Upvote)
	posts.PUT("/:id/downvote", d.PostController.Downvote)
	posts.DELETE("/:id/vote", d.PostController.Unvote)
	posts.POST("/:id/bookmark", d.PostController.ToggleBookmark)
	posts.GET("/:id/isBookmarked", d.PostController.IsBookmarked)

	reports := api.Group("/reports", authRequired)
	reports.POST("/posts/:id/report", d.ReportController.ReportPost)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}
