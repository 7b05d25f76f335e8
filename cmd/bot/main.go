package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/flashproto/support-bot/internal/api/http"
	"github.com/flashproto/support-bot/internal/api/http/handlers"
	"github.com/flashproto/support-bot/internal/auth"
	"github.com/flashproto/support-bot/internal/classify"
	"github.com/flashproto/support-bot/internal/config"
	"github.com/flashproto/support-bot/internal/dispatch"
	"github.com/flashproto/support-bot/internal/events"
	"github.com/flashproto/support-bot/internal/observability"
	"github.com/flashproto/support-bot/internal/platform"
	"github.com/flashproto/support-bot/internal/reply"
	"github.com/flashproto/support-bot/internal/store"
	"github.com/flashproto/support-bot/internal/ticket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profile, err := config.LoadProfile(cfg.Bot.ProfilePath)
	if err != nil {
		logger.Fatal("failed to load bot profile", zap.Error(err))
	}

	ticketStore, err := newTicketStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.Error(err))
	}
	defer ticketStore.Close()

	botLog, err := store.NewEventLog(cfg.Store.DataDir, logger)
	if err != nil {
		logger.Fatal("failed to open event log", zap.Error(err))
	}

	eventBus := events.NewInMemoryDispatcher()
	events.NewAuditRecorder(botLog, logger).RegisterHandlers(eventBus)

	sender := platform.NewClient(cfg.Bot.APIBaseURL, cfg.Bot.Token, cfg.Bot.SendTimeout(), logger)

	correlator := dispatch.NewMessageCorrelator()
	if existing, err := ticketStore.List(ctx); err != nil {
		logger.Warn("could not seed message correlation", zap.Error(err))
	} else {
		correlator.Seed(existing)
	}

	notifier := ticket.NewNotifier(sender, cfg.Bot.AdminChatIDs, correlator, logger)
	ticketService := ticket.NewService(ticket.Dependencies{
		Store:      ticketStore,
		Notifier:   notifier,
		Dispatcher: eventBus,
		Logger:     logger,
	})

	pending := newPendingStore(cfg, logger)
	defer pending.Close()

	workflow := reply.NewWorkflow(reply.Dependencies{
		Store:      ticketStore,
		Sender:     sender,
		Dispatcher: eventBus,
		Logger:     logger,
	})

	metrics := observability.NewMetrics()

	botDispatcher := dispatch.NewDispatcher(dispatch.Dependencies{
		Bot:      cfg.Bot,
		Profile:  profile,
		Keys:     classify.NewKeySet(profile.PurchaseKeys),
		Tickets:  ticketService,
		Workflow: workflow,
		Pending:  pending,
		Sender:   sender,
		Correl:   correlator,
		Metrics:  metrics,
		Logger:   logger,
	})

	tokens := auth.NewTokenManager(cfg.Ops.JWTSecret, cfg.Ops.TokenTTLMinutes)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Webhook:        handlers.NewWebhookHandler(botDispatcher, cfg.Bot.WebhookSecret, logger),
		Ops:            handlers.NewOpsHandler(ticketService, tokens, cfg.Ops.PasswordHash, botLog, metrics, logger),
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, ticketStore, pending),
		AuthMiddleware: auth.NewMiddleware(tokens),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func newTicketStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.TicketStore, error) {
	if cfg.Store.Backend == "postgres" {
		return store.NewPostgresStore(ctx, cfg.Postgres, logger)
	}
	return store.NewFileStore(cfg.Store.DataDir, logger)
}

func newPendingStore(cfg *config.Config, logger *zap.Logger) reply.PendingStore {
	if cfg.Pending.Backend == "redis" {
		return reply.NewRedisPending(cfg.Redis, logger)
	}
	return reply.NewMemoryPending()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
