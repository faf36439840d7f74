package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/teller-bank/teller_bank/internal/auth"
	"github.com/teller-bank/teller_bank/internal/banking"
	"github.com/teller-bank/teller_bank/internal/config"
	"github.com/teller-bank/teller_bank/internal/identity"
	"github.com/teller-bank/teller_bank/internal/ledger"
	"github.com/teller-bank/teller_bank/internal/middleware"
	"github.com/teller-bank/teller_bank/internal/notification"
	"github.com/teller-bank/teller_bank/internal/txlog"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// Services are the application services built by Setup, shared with
// background jobs.
type Services struct {
	Engine   *banking.Engine
	Identity *identity.Service
	Auth     *auth.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (Services, error) {
	// main checks this too
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Services{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	svc := buildServices(d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	identityHandler := identity.NewHandler(svc.Identity)
	RegisterIdentityRoutes(api, identityHandler)
	RegisterAuthRoutes(api, auth.NewHandler(svc.Identity, svc.Auth), middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit))

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(svc.Auth))
	protected.Post("/auth/logout", auth.NewHandler(svc.Identity, svc.Auth).Logout)
	bankingHandler := banking.NewHandler(svc.Engine)
	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	RegisterMeRoutes(protected, identityHandler, bankingHandler)
	RegisterAccountRoutes(protected, bankingHandler, idempotent)

	admin := protected.Group("/admin", middleware.RequireRole(identity.RoleAdmin))
	RegisterAdminRoutes(admin, bankingHandler, identityHandler)

	return svc, nil
}

func buildServices(d Deps) Services {
	var (
		store        ledger.Store
		history      txlog.Log
		identityRepo identity.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		history = txlog.NewPostgresLog(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewInMemory()
		history = txlog.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
	}
	return Services{
		Engine:   banking.NewEngine(store, history, d.Notifier, d.Logger, d.Cfg.Terms),
		Identity: identity.NewService(identityRepo),
		Auth:     auth.NewService(d.Cfg, identityRepo),
	}
}
