package app

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/ironhaven/worldserver/internal/auth"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/handler"
	"github.com/ironhaven/worldserver/internal/infra"
	"github.com/ironhaven/worldserver/internal/ledger"
	"github.com/ironhaven/worldserver/internal/repository"
	"github.com/ironhaven/worldserver/internal/scheduler"
	"github.com/ironhaven/worldserver/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App bundles the assembled server: the router plus the long-running
// pieces main has to start and stop.
type App struct {
	Router      chi.Router
	TimeManager *scheduler.TimeManager
	Hub         *infra.WSHub
	Calendar    *service.CalendarService
}

// Deps holds everything Build needs from main.
type Deps struct {
	Pool   *pgxpool.Pool
	Config *infra.Config
	JWTMgr *auth.JWTManager
	Logger *slog.Logger
}

// Build assembles repositories, the ledger engine, the time manager, game
// services and the chi router. It registers all scheduler actions, runs
// recovery, then registers the standing world events — in that order, so
// that recovery replays anything that came due while the process was
// down. It does not start the tick loop; main calls Start once the
// process is ready.
func Build(ctx context.Context, deps Deps) (*App, error) {
	pool := deps.Pool
	cfg := deps.Config
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	// Repositories
	playerRepo := repository.NewPlayerRepository()
	txRepo := repository.NewTransactionRepository()
	outboxRepo := repository.NewOutboxRepository()
	authUserRepo := repository.NewAuthUserRepository()
	eventRepo := repository.NewTimeEventRepository()

	// Ledger engine
	ledgerEngine := ledger.NewEngine(playerRepo, txRepo, outboxRepo)

	// Realtime hub and scheduler
	hub := infra.NewWSHub(logger)
	tm := scheduler.NewTimeManager(pool, eventRepo, logger, scheduler.Config{
		TickInterval:   cfg.TickInterval,
		SnapshotPeriod: cfg.SnapshotPeriod,
	})

	// Services
	yield := domain.Resources{Wood: cfg.MiningYieldWood, Stone: cfg.MiningYieldStone, Gold: cfg.MiningYieldGold}
	starting := domain.ResourceDelta{Wood: cfg.StartingWood, Stone: cfg.StartingStone, Gold: cfg.StartingGold}

	miningSvc := service.NewMiningService(pool, ledgerEngine, outboxRepo, tm, hub, yield, logger)
	recruitSvc := service.NewRecruitmentService(pool, ledgerEngine, outboxRepo, tm, hub,
		service.RecruitCosts{Wood: cfg.RecruitCostWood, Gold: cfg.RecruitCostGold, SecPerUnit: cfg.RecruitSecPerUnit},
		cfg.WorldID, logger)
	calendarSvc := service.NewCalendarService(pool, ledgerEngine, playerRepo, outboxRepo, tm, hub,
		cfg.WorldID, cfg.WorldEpochMs, cfg.DayLengthSec, cfg.UpkeepGoldPerDay, logger)
	authSvc := service.NewAuthService(pool, authUserRepo, playerRepo, outboxRepo, ledgerEngine, jwtMgr,
		cfg.WorldID, starting)

	cleanup := maintenanceCleanup(eventRepo, pool, cfg, logger)

	// Actions must be registered before recovery so durable records can
	// be reconstructed.
	miningSvc.RegisterActions()
	recruitSvc.RegisterActions()
	calendarSvc.RegisterActions()
	tm.RegisterAction(actionMaintenanceCleanup, cleanup)

	// Recovery runs before the standing registrations below: a firing
	// that came due while the process was down must replay, and
	// registering first would overwrite the stored schedule.
	if err := tm.Recover(ctx); err != nil {
		return nil, err
	}

	// Standing world events (keyed by name; registration adopts whatever
	// recovery rehydrated).
	if err := calendarSvc.Start(ctx); err != nil {
		return nil, err
	}
	if err := recruitSvc.StartRosterRefresh(ctx, cfg.DayLengthSec/4); err != nil {
		return nil, err
	}
	if _, err := tm.RegisterPeriodicEvent(ctx, actionMaintenanceCleanup, 6*3600, cleanup, scheduler.EventOptions{
		WorldID:    cfg.WorldID,
		Persistent: true,
		ActionType: actionMaintenanceCleanup,
	}); err != nil {
		return nil, err
	}

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	playerHandler := handler.NewPlayerHandler(playerRepo, txRepo, pool)
	worldHandler := handler.NewWorldHandler(tm, calendarSvc, hub)
	eventsHandler := handler.NewEventsHandler(tm)
	miningHandler := handler.NewMiningHandler(miningSvc, cfg.WorldID)
	recruitHandler := handler.NewRecruitmentHandler(recruitSvc)
	wsHandler := handler.NewWSHandler(hub, playerRepo, pool)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORS(cfg.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/healthz", handler.HealthHandler(pool, tm))

	r.Route("/api", func(r chi.Router) {
		// Auth routes (no auth)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// Player-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthenticatePlayer(jwtMgr))

			r.Route("/players/me", func(r chi.Router) {
				r.Get("/", playerHandler.GetMe)
				r.Get("/transactions", playerHandler.ListTransactions)
				r.Get("/events", eventsHandler.ListMine)
			})

			r.Route("/world", func(r chi.Router) {
				r.Get("/time/stats", worldHandler.TimeStats)
				r.Get("/calendar", worldHandler.Calendar)
			})

			r.Route("/mining", func(r chi.Router) {
				r.Post("/start", miningHandler.Start)
				r.Post("/{taskID}/reassign", miningHandler.Reassign)
			})

			r.Post("/recruitment/start", recruitHandler.Start)
		})

		// Admin-authenticated routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AuthenticateAdmin(jwtMgr))
			r.Use(auth.RequireRole(auth.WriteRoles()...))

			r.Route("/events/{eventID}", func(r chi.Router) {
				r.Post("/reschedule", eventsHandler.Reschedule)
				r.Post("/pause", eventsHandler.Pause)
				r.Post("/resume", eventsHandler.Resume)
				r.Delete("/", eventsHandler.Cancel)
			})
		})
	})

	// Realtime (player-authenticated, upgraded past the JSON middleware)
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(jwtMgr))
		r.Get("/ws", wsHandler.Connect)
	})

	return &App{
		Router:      r,
		TimeManager: tm,
		Hub:         hub,
		Calendar:    calendarSvc,
	}, nil
}

const actionMaintenanceCleanup = "maintenance.cleanup"

// maintenanceCleanup builds the periodic purge of completed and cancelled
// durable event records past the retention window.
func maintenanceCleanup(eventRepo repository.TimeEventRepository, pool *pgxpool.Pool, cfg *infra.Config, logger *slog.Logger) scheduler.Action {
	return func(ctx context.Context, _ *domain.TimeEvent) error {
		removed, err := eventRepo.CleanupOlderThan(ctx, pool, cfg.EventRetention)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("purged expired event records", "removed", removed)
		}
		return nil
	}
}
