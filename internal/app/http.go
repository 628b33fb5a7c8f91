package app

import (
	"context"

	httpserver "github.com/yungbote/coursebuilder-backend/internal/http"
	httpH "github.com/yungbote/coursebuilder-backend/internal/http/handlers"
	httpMW "github.com/yungbote/coursebuilder-backend/internal/http/middleware"
)

func wireServer(a *App) *httpserver.Server {
	log, s := a.Log, a.Services
	log.Info("Wiring HTTP handlers...")
	return httpserver.NewServer(a.Cfg.HTTPAddress, httpserver.RouterConfig{
		Log:            log,
		Metrics:        a.Metrics,
		ServiceName:    a.Cfg.ServiceName,
		TracingEnabled: a.Cfg.OtelEnabled,
		CORSOrigins:    a.Cfg.CORSOrigins,

		AuthMiddleware: httpMW.NewAuthMiddleware(log, s.Auth),

		AuthHandler:       httpH.NewAuthHandler(s.Auth),
		UserHandler:       httpH.NewUserHandler(s.User),
		GenerationHandler: httpH.NewGenerationHandler(log, a.Dispatcher, a.Bridge),
		LearningHandler:   httpH.NewLearningHandler(s.Learning),
		JobHandler:        httpH.NewJobHandler(s.Jobs),
		RealtimeHandler:   httpH.NewRealtimeHandler(log, a.SSEHub),
		PaymentHandler:    httpH.NewPaymentHandler(log, s.Membership),
		AdminHandler:      httpH.NewAdminHandler(s.Admin),
		HealthHandler: httpH.NewHealthHandler(map[string]httpH.Pinger{
			"postgres": a.pg.Ping,
			"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
		}),
	})
}
