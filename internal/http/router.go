package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/coursebuilder-backend/internal/http/handlers"
	httpMW "github.com/yungbote/coursebuilder-backend/internal/http/middleware"
	"github.com/yungbote/coursebuilder-backend/internal/observability"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	TracingEnabled bool
	CORSOrigins    []string

	AuthMiddleware *httpMW.AuthMiddleware

	AuthHandler       *httpH.AuthHandler
	UserHandler       *httpH.UserHandler
	GenerationHandler *httpH.GenerationHandler
	LearningHandler   *httpH.LearningHandler
	JobHandler        *httpH.JobHandler
	RealtimeHandler   *httpH.RealtimeHandler
	PaymentHandler    *httpH.PaymentHandler
	AdminHandler      *httpH.AdminHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/auth/register", cfg.AuthHandler.Register)
			api.POST("/auth/login", cfg.AuthHandler.Login)
			api.POST("/auth/refresh", cfg.AuthHandler.Refresh)
		}
		// Stripe signs its own requests
		if cfg.PaymentHandler != nil {
			api.POST("/payments/stripe-webhook", cfg.PaymentHandler.StripeWebhook)
		}
	}

	protected := api.Group("")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	} else {
		protected.Use(func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) })
	}
	{
		if cfg.AuthHandler != nil {
			protected.POST("/auth/logout", cfg.AuthHandler.Logout)
		}
		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
		}

		// Generation
		if cfg.GenerationHandler != nil {
			protected.POST("/generate/:kind", cfg.GenerationHandler.Generate)
			protected.GET("/task-status/:kind/:task_id", cfg.GenerationHandler.TaskStatus)
			protected.POST("/stream/:kind", cfg.GenerationHandler.Stream)
		}

		// Courses & roadmaps
		if h := cfg.LearningHandler; h != nil {
			protected.GET("/courses", h.ListCourses)
			protected.GET("/courses/:id", h.GetCourse)
			protected.DELETE("/courses/:id", h.DeleteCourse)
			protected.PATCH("/courses/:id/status", h.SetCourseStatus)
			protected.PATCH("/modules/:id/status", h.SetModuleStatus)
			protected.GET("/lessons/:id", h.GetLesson)
			protected.DELETE("/lessons/:id", h.DeleteLesson)
			protected.PATCH("/lessons/:id/status", h.SetLessonStatus)

			protected.GET("/roadmaps", h.ListRoadmaps)
			protected.GET("/roadmaps/:id", h.GetRoadmap)
			protected.DELETE("/roadmaps/:id", h.DeleteRoadmap)
			protected.PATCH("/roadmaps/:id/status", h.SetRoadmapStatus)
			protected.GET("/roadmaps/:id/courses", h.ListRoadmapCourses)
			protected.PATCH("/roadmaps/:id/nodes/:node_id/status", h.SetNodeStatus)
			protected.POST("/roadmaps/:id/nodes/:node_id/course", h.LinkNodeCourse)
		}

		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
		if cfg.RealtimeHandler != nil {
			protected.GET("/events", cfg.RealtimeHandler.Events)
		}

		// Admin
		if h := cfg.AdminHandler; h != nil && cfg.AuthMiddleware != nil {
			admin := protected.Group("/admin")
			admin.Use(cfg.AuthMiddleware.RequireAdmin())
			admin.GET("/dashboard", h.Dashboard)
			admin.GET("/users", h.ListUsers)
			admin.GET("/users/:id", h.GetUser)
			admin.PATCH("/users/:id/credits", h.SetCredits)
			admin.PATCH("/users/:id/membership", h.SetMembership)
			admin.PATCH("/users/:id/role", h.SetRole)
			admin.POST("/users/:id/suspend", h.Suspend)
			admin.POST("/users/:id/unsuspend", h.Unsuspend)
		}
	}

	return r
}
