// Package routesはroutingを行います。
package routes

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"task-manager/backend/internal/cache"
	"task-manager/backend/internal/config"
	"task-manager/backend/internal/handlers"
	"task-manager/backend/internal/repositories"
	"task-manager/backend/internal/services"
)

// Dependencies はルーターが使うリポジトリとサービスです。
// テストではリポジトリをメモリ実装に差し替えます。
type Dependencies struct {
	UserRepo     repositories.UserRepository
	CategoryRepo repositories.CategoryRepository
	TaskRepo     repositories.TaskRepository
	JWTService   *services.JWTService
	TaskCache    *cache.TaskCache // nilならキャッシュなし
	AllowOrigins []string
	// Ping はヘルスチェックで呼ばれます。nilなら常に正常です。
	Ping         func(ctx context.Context) error
}

// SetupRouter はMySQLのリポジトリでGinルーターをセットアップします。
func SetupRouter(db *sql.DB, cfg config.Config, taskCache *cache.TaskCache) *gin.Engine {
	return NewRouter(Dependencies{
		UserRepo:     repositories.NewMySQLUserRepo(db),
		CategoryRepo: repositories.NewMySQLCategoryRepo(db),
		TaskRepo:     repositories.NewMySQLTaskRepo(db),
		JWTService:   services.NewJWTService(cfg.JWT.Secret, cfg.JWT.TTL.Duration()),
		TaskCache:    taskCache,
		AllowOrigins: cfg.CORS.AllowOrigins,
		Ping:         db.PingContext,
	})
}

// NewRouter はすべてのエンドポイントを登録したGinルーターを返します。
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.Default()

	// CORS対策
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = deps.AllowOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// サービス
	userService := services.NewUserService(deps.UserRepo, deps.TaskCache)
	categoryService := services.NewCategoryService(deps.CategoryRepo, deps.TaskCache)
	taskService := services.NewTaskService(deps.TaskRepo, deps.CategoryRepo, deps.UserRepo, deps.TaskCache)

	// ハンドラー
	userHandler := handlers.NewUserHandler(userService, deps.JWTService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	taskHandler := handlers.NewTaskHandler(taskService)

	api := r.Group("/api")
	api.GET("/health", healthHandler(deps.Ping))
	api.POST("/register", userHandler.RegisterHandler)
	api.POST("/login", userHandler.LoginHandler)

	authorized := api.Group("")
	authorized.Use(AuthMiddleware(deps.JWTService, deps.UserRepo))
	{
		authorized.GET("/me", userHandler.MeHandler)

		authorized.GET("/users", userHandler.GetUsersHandler)
		authorized.GET("/users/:id", userHandler.GetUserByIDHandler)
		authorized.DELETE("/users/:id", userHandler.DeleteUserHandler)
		authorized.DELETE("/users/:id/delete", userHandler.DeleteUserHandler)

		authorized.GET("/tasks", taskHandler.GetTasksHandler)
		authorized.POST("/tasks", taskHandler.CreateTaskHandler)
		authorized.GET("/tasks/:id", taskHandler.GetTaskByIDHandler)
		authorized.PUT("/tasks/:id", taskHandler.UpdateTaskHandler)
		authorized.PATCH("/tasks/:id", taskHandler.PatchTaskHandler)
		authorized.DELETE("/tasks/:id", taskHandler.DeleteTaskHandler)

		authorized.GET("/categories", categoryHandler.GetCategoriesHandler)
		authorized.POST("/categories", categoryHandler.CreateCategoryHandler)
		authorized.GET("/categories/:id", categoryHandler.GetCategoryByIDHandler)
		authorized.PUT("/categories/:id", categoryHandler.UpdateCategoryHandler)
		authorized.PATCH("/categories/:id", categoryHandler.PatchCategoryHandler)
		authorized.DELETE("/categories/:id", categoryHandler.DeleteCategoryHandler)
	}

	return r
}

func healthHandler(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "Database connection failed"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
