package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cardhold-backend/api/controllers"
	"github.com/angelmondragon/cardhold-backend/api/middleware"
	"github.com/angelmondragon/cardhold-backend/internal/deposits"
	"github.com/angelmondragon/cardhold-backend/internal/jobhealth"
	"github.com/angelmondragon/cardhold-backend/internal/notifications"
	"github.com/angelmondragon/cardhold-backend/pkg/config"
	"github.com/angelmondragon/cardhold-backend/pkg/db"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
	"github.com/angelmondragon/cardhold-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	depositService deposits.Service,
	notificationService notifications.Service,
	jobHealthRepo jobhealth.Repository,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1/deposits", func(r chi.Router) {
		r.Post("/", controllers.CreateDeposit(depositService, logg))
		r.Get("/", controllers.ListDeposits(depositService, logg))
		r.Get("/{depositId}", controllers.GetDeposit(depositService, logg))
		r.Post("/{depositId}/reauthorize", controllers.ReauthorizeDeposit(depositService, logg))
		r.Post("/{depositId}/capture", controllers.CaptureDeposit(depositService, logg))
		r.Post("/{depositId}/release", controllers.ReleaseDeposit(depositService, logg))
		r.Post("/{depositId}/refund", controllers.RefundDeposit(depositService, logg))
	})

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/", controllers.ListNotifications(notificationService, logg))
		r.Get("/dead-letters", controllers.ListDeadLetters(notificationService, logg))
		r.Post("/dead-letters/{seq}/resend", controllers.ResendDeadLetter(notificationService, logg))
	})

	r.Get("/api/v1/jobs/health", controllers.ListJobHealth(jobHealthRepo, logg))

	return r
}
