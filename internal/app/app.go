package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evsehub/internal/auth"
	"evsehub/internal/bridge"
	"evsehub/internal/bus"
	"evsehub/internal/commands"
	"evsehub/internal/config"
	"evsehub/internal/detector"
	"evsehub/internal/docstore"
	httpserver "evsehub/internal/http"
	"evsehub/internal/http/handlers"
	"evsehub/internal/http/middleware"
	"evsehub/internal/ingest"
	"evsehub/internal/notify"
	"evsehub/internal/store"
	"evsehub/internal/ws"
	libdb "evsehub/libs/db"
	libredis "evsehub/libs/redis"
)

// App wires the dashboard dependency graph.
type App struct {
	cfg         *config.Config
	server      *httpserver.Server
	busConn     *bus.Conn
	ing         *ingest.Ingest
	wsManager   *ws.Manager
	backup      *notify.Backup
	redisClient *redis.Client
	db          *sql.DB
	logger      *zap.Logger
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	docs, err := a.newDocstore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	settingsStore := store.NewSettingsStore(ctx, docs, cfg.Timezone, logger)
	sessionStore, err := store.NewSessionStore(ctx, docs, cfg.Storage.MaxSessions, cfg.Storage.OverflowFile, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	telegram := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect bus broker: %w", err)
	}
	a.redisClient = redisClient
	a.busConn = bus.New(redisClient, logger)

	dispatcher := commands.New(a.busConn, cfg.Bus.CommandTopic, logger)

	det := detector.New(sessionStore, settingsStore, telegram, dispatcher, detector.Config{
		MaxSampleGap: cfg.Detector.MaxSampleGap,
		FallbackUser: cfg.Detector.FallbackUser,
	}, logger)

	a.ing = ingest.New(det, telegram, cfg.Detector.StaleAfter, logger)

	a.wsManager = ws.NewManager(0, logger)
	a.ing.OnUpdate = func(doc ingest.StateDocument) {
		a.wsManager.Broadcast(doc)
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = randomSecret()
		logger.Warn("auth secret not configured, sessions will not survive a restart")
	}
	tokens := auth.NewTokenService(secret, auth.DefaultTokenTTL)
	pins, err := auth.NewPinVerifier(cfg.Auth.PIN)
	if err != nil {
		a.Close()
		return nil, err
	}

	pauser := bridge.NewPauser(cfg.Bridge.Unit, logger)
	sessionsHandler := handlers.NewSessionsHandler(sessionStore, det, logger)
	settingsHandler := handlers.NewSettingsHandler(settingsStore, logger)
	commandsHandler := handlers.NewCommandsHandler(dispatcher, a.ing, logger)

	routes := httpserver.Routes{
		Login:       handlers.NewLoginHandler(pins, tokens, logger),
		State:       handlers.NewStateHandler(a.ing, det, dispatcher),
		Sessions:    sessionsHandler.HandleList,
		SessionByID: sessionsHandler.HandleGet,
		SessionNote: sessionsHandler.HandleNote,
		SettingsGet: settingsHandler.HandleGet,
		SettingsPut: settingsHandler.HandlePut,
		Start:       commandsHandler.HandleStart,
		Stop:        commandsHandler.HandleStop,
		SetAmps:     commandsHandler.HandleSetAmps,
		NotifyTest:  handlers.NewNotifyTestHandler(telegram, logger),
		PauseBridge: handlers.NewPauseBridgeHandler(pauser),
		LiveFeed:    a.wsManager.Handle,
		Health:      handlers.NewHealthHandler(),
	}

	router := httpserver.NewRouter(routes, middleware.CookieAuth(tokens))
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	a.backup, err = notify.NewBackup(cfg.Telegram.BackupSchedule, cfg.Location(), docs, telegram, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Run subscribes to the bus and serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.busConn.Subscribe(ctx, a.cfg.SubscribeTopics(), a.ing.HandleMessage); err != nil {
		return fmt.Errorf("subscribe bus: %w", err)
	}

	go a.wsManager.Start(ctx)
	a.backup.Start()
	defer a.backup.Stop()

	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}

func (a *App) newDocstore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		pool, err := libdb.NewPostgresDB(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		a.db = pool
		return docstore.NewPostgresStore(ctx, pool)
	default:
		return docstore.NewFileStore(cfg.Storage.Dir)
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
