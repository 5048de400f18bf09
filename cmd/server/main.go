package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/auth"
	"github.com/vedran77/pulse-relay/internal/config"
	"github.com/vedran77/pulse-relay/internal/database"
	"github.com/vedran77/pulse-relay/internal/jobs"
	"github.com/vedran77/pulse-relay/internal/logging"
	"github.com/vedran77/pulse-relay/internal/presence"
	"github.com/vedran77/pulse-relay/internal/repository"
	"github.com/vedran77/pulse-relay/internal/repository/memory"
	postgresrepo "github.com/vedran77/pulse-relay/internal/repository/postgres"
	"github.com/vedran77/pulse-relay/internal/service"
	"github.com/vedran77/pulse-relay/internal/transport/http/handlers"
	"github.com/vedran77/pulse-relay/internal/transport/http/middleware"
	"github.com/vedran77/pulse-relay/internal/transport/ws"
)

type repositories struct {
	users         repository.UserRepository
	workspaces    repository.WorkspaceRepository
	channels      repository.ChannelRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	readState     repository.ReadStateStore
	close         func()
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		store := memory.New()
		return &repositories{
			users:         store.Users(),
			workspaces:    store.Workspaces(),
			channels:      store.Channels(),
			conversations: store.Conversations(),
			messages:      store.Messages(),
			readState:     store.ReadState(),
			close:         func() {},
		}, nil
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Msg("connected to database")

	return &repositories{
		users:         postgresrepo.NewUserRepo(pool),
		workspaces:    postgresrepo.NewWorkspaceRepo(pool),
		channels:      postgresrepo.NewChannelRepo(pool),
		conversations: postgresrepo.NewConversationRepo(pool),
		messages:      postgresrepo.NewMessageRepo(pool),
		readState:     postgresrepo.NewReadStateStore(pool),
		close:         pool.Close,
	}, nil
}

func main() {
	// .env je opcionalan
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.close()

	// Core
	resolver := access.NewResolver(repos.channels, repos.workspaces, repos.conversations)
	ledger := service.NewUnreadLedger(repos.readState)
	notifications := service.NewNotificationStore(repos.readState, ledger, repos.messages)
	dispatcher := service.NewDispatcher(resolver, repos.users, repos.readState, ledger, notifications)

	directPurger := service.NewDirectPurger(repos.messages, notifications)
	var purger service.ScopePurger = directPurger
	var worker *jobs.Worker
	if cfg.Jobs.Enabled {
		enqueuer, err := jobs.NewEnqueuer(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer enqueuer.Close()
		worker, err = jobs.NewWorker(cfg.Redis.URL, cfg.Jobs.Concurrency, directPurger)
		if err != nil {
			return err
		}
		purger = enqueuer
	}

	// Services
	userService := service.NewUserService(repos.users)
	workspaceService := service.NewWorkspaceService(repos.workspaces, repos.users, resolver)
	channelService := service.NewChannelService(repos.channels, repos.workspaces, resolver, purger)
	conversations := service.NewConversationDirectory(repos.conversations, repos.users, resolver, purger)
	channelService.SetScopeLocker(dispatcher)
	conversations.SetScopeLocker(dispatcher)
	messageService := service.NewMessageService(repos.messages, resolver, dispatcher, ledger)
	readService := service.NewReadService(resolver, ledger, notifications)
	presenceService := service.NewPresenceService(repos.workspaces, repos.conversations)

	// Real-time
	registry := ws.NewRegistry(resolver, conversations)
	registry.SetContacts(presenceService)
	tracker, err := presence.NewRedisTracker(cfg.Redis.URL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without presence")
	} else {
		defer tracker.Close()
		registry.SetPresence(tracker)
		presenceService.SetReader(tracker)
	}

	dispatcher.SetPublisher(registry)
	channelService.SetPublisher(registry)
	conversations.SetPublisher(registry)
	messageService.SetPublisher(registry)
	readService.SetPublisher(registry)

	// Handlers
	workspaceHandler := handlers.NewWorkspaceHandler(workspaceService)
	channelHandler := handlers.NewChannelHandler(channelService)
	conversationHandler := handlers.NewConversationHandler(conversations)
	messageHandler := handlers.NewMessageHandler(messageService)
	readHandler := handlers.NewReadHandler(readService)
	realtimeHandler := handlers.NewRealtimeHandler(registry)
	presenceHandler := handlers.NewPresenceHandler(presenceService)

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	authMW := middleware.Auth(verifier, userService)
	protected := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if tracker != nil {
			pctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := tracker.Ping(pctx); err != nil {
				log.Warn().Err(err).Msg("health: presence store unreachable")
				w.Write([]byte(`{"status": "degraded", "presence": "down"}`))
				return
			}
		}
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("GET /ws", ws.ServeWS(registry, verifier, userService, ws.Options{
		PingInterval: cfg.WS.PingInterval,
		SendBuffer:   cfg.WS.SendBuffer,
	}))

	// Protected - Workspaces
	mux.Handle("POST /api/v1/workspaces", protected(workspaceHandler.Create))
	mux.Handle("GET /api/v1/workspaces", protected(workspaceHandler.List))
	mux.Handle("GET /api/v1/workspaces/{wid}", protected(workspaceHandler.Get))
	mux.Handle("PATCH /api/v1/workspaces/{wid}", protected(workspaceHandler.Update))
	mux.Handle("POST /api/v1/workspaces/{wid}/members", protected(workspaceHandler.AddMember))
	mux.Handle("DELETE /api/v1/workspaces/{wid}/members/{uid}", protected(workspaceHandler.RemoveMember))
	mux.Handle("GET /api/v1/workspaces/{wid}/members", protected(workspaceHandler.ListMembers))

	// Protected - Channels
	mux.Handle("POST /api/v1/workspaces/{wid}/channels", protected(channelHandler.Create))
	mux.Handle("GET /api/v1/workspaces/{wid}/channels", protected(channelHandler.List))
	mux.Handle("GET /api/v1/channels/{id}", protected(channelHandler.Get))
	mux.Handle("PATCH /api/v1/channels/{id}", protected(channelHandler.Update))
	mux.Handle("DELETE /api/v1/channels/{id}", protected(channelHandler.Delete))
	mux.Handle("POST /api/v1/channels/{id}/join", protected(channelHandler.Join))
	mux.Handle("POST /api/v1/channels/{id}/members", protected(channelHandler.AddMember))
	mux.Handle("GET /api/v1/channels/{id}/members", protected(channelHandler.ListMembers))
	mux.Handle("DELETE /api/v1/channels/{id}/members/{uid}", protected(channelHandler.RemoveMember))
	mux.Handle("PUT /api/v1/channels/{id}/members/{uid}/role", protected(channelHandler.SetMemberRole))

	// Protected - Messages
	mux.Handle("POST /api/v1/channels/{id}/messages", protected(messageHandler.SendToChannel))
	mux.Handle("GET /api/v1/channels/{id}/messages", protected(messageHandler.ListChannel))
	mux.Handle("PATCH /api/v1/messages/{id}", protected(messageHandler.Edit))
	mux.Handle("DELETE /api/v1/messages/{id}", protected(messageHandler.Delete))

	// Protected - Conversations
	mux.Handle("POST /api/v1/conversations", protected(conversationHandler.Create))
	mux.Handle("GET /api/v1/conversations", protected(conversationHandler.List))
	mux.Handle("GET /api/v1/conversations/{id}", protected(conversationHandler.Get))
	mux.Handle("POST /api/v1/conversations/{id}/messages", protected(messageHandler.SendToConversation))
	mux.Handle("GET /api/v1/conversations/{id}/messages", protected(messageHandler.ListConversation))
	mux.Handle("POST /api/v1/conversations/{id}/participants", protected(conversationHandler.AddParticipant))
	mux.Handle("DELETE /api/v1/conversations/{id}/participants/{uid}", protected(conversationHandler.RemoveParticipant))
	mux.Handle("POST /api/v1/conversations/{id}/leave", protected(conversationHandler.Leave))
	mux.Handle("POST /api/v1/conversations/{id}/close", protected(conversationHandler.Close))

	// Protected - Read state & notifications
	mux.Handle("POST /api/v1/scopes/{kind}/{id}/read", protected(readHandler.MarkRead))
	mux.Handle("POST /api/v1/scopes/{kind}/{id}/read-all", protected(readHandler.MarkAllRead))
	mux.Handle("GET /api/v1/unread", protected(readHandler.Unread))
	mux.Handle("GET /api/v1/notifications", protected(readHandler.Notifications))
	mux.Handle("POST /api/v1/notifications/{id}/read", protected(readHandler.MarkNotificationRead))

	// Protected - Realtime & presence
	mux.Handle("GET /api/v1/realtime/stats", protected(realtimeHandler.Stats))
	mux.Handle("GET /api/v1/presence", protected(presenceHandler.Online))
	mux.Handle("GET /api/v1/users/{id}/presence", protected(presenceHandler.Status))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           middleware.CORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return registry.RunJanitor(gctx, cfg.WS.PingInterval, cfg.WS.IdleTimeout)
	})
	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}

	return g.Wait()
}
