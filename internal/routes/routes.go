package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saeid-a/TrainerLedgerBack/internal/config"
	"github.com/saeid-a/TrainerLedgerBack/internal/fees"
	"github.com/saeid-a/TrainerLedgerBack/internal/handlers"
	"github.com/saeid-a/TrainerLedgerBack/internal/middleware"
	"github.com/saeid-a/TrainerLedgerBack/internal/repository"
	"github.com/saeid-a/TrainerLedgerBack/internal/services"
	ledgerws "github.com/saeid-a/TrainerLedgerBack/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewFeeAuditRepository(db)

	calculator := fees.NewCalculator(cfg.VATRateBP, cfg.FeeRateBP)

	feedHub := ledgerws.NewHub()
	go feedHub.Run()

	ledgerService := services.NewCreditLedgerService(
		db,
		calculator,
		packageRepo,
		sessionRepo,
		paymentRepo,
		auditRepo,
		userRepo,
		feedHub,
	)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	packageHandler := handlers.NewPackageHandler(ledgerService, calculator)
	sessionHandler := handlers.NewSessionHandler(ledgerService)
	feedHandler := handlers.NewFeedHandler(feedHub, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	packages := authProtected.Group("/packages")
	packages.Post("", packageHandler.CreatePackage)
	packages.Get("", packageHandler.ListPackages)
	packages.Post("/topup", packageHandler.TopUpClient)
	packages.Get("/:id", packageHandler.GetPackageSummary)
	packages.Post("/:id/topup", packageHandler.TopUp)
	packages.Get("/:id/audit", packageHandler.GetFeeAuditTrail)
	packages.Post("/:id/deactivate", packageHandler.DeactivatePackage)

	sessions := authProtected.Group("/sessions")
	sessions.Post("", sessionHandler.ScheduleSession)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Post("/:id/complete", sessionHandler.CompleteSession)
	sessions.Post("/:id/cancel", sessionHandler.CancelSession)

	authProtected.Get("/payments", packageHandler.ListPayments)
	authProtected.Get("/fees/quote", packageHandler.QuoteFees)

	api.Use("/v1/feed", feedHandler.WebSocketAuth)
	api.Get("/v1/feed", websocket.New(feedHandler.HandleWebSocket))
}
