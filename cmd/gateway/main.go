package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	redisCache "github.com/fleetdesk/whatsapp-gateway/internal/cache/redis"
	"github.com/fleetdesk/whatsapp-gateway/internal/domain"
	httpHandler "github.com/fleetdesk/whatsapp-gateway/internal/handler/http"
	"github.com/fleetdesk/whatsapp-gateway/internal/mediastore"
	"github.com/fleetdesk/whatsapp-gateway/internal/persistant/postgresql"
	"github.com/fleetdesk/whatsapp-gateway/internal/publisher"
	"github.com/fleetdesk/whatsapp-gateway/internal/relay"
	connStateRepo "github.com/fleetdesk/whatsapp-gateway/internal/repository/connstate"
	"github.com/fleetdesk/whatsapp-gateway/internal/session"
	"github.com/fleetdesk/whatsapp-gateway/internal/waclient"
	"gorm.io/gorm"
)

var (
	configFile = flag.String("config", "config.json", "config file path")
)

func main() {
	// create root context
	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	// listen for terminate signal
	notifyCtx, stop := signal.NotifyContext(appCtx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// parse flags
	flag.Parse()

	// parse config
	config, err := ReadConfigJson(*configFile)
	if err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	// initialize external dependencies
	db, rClient, err := initExternalDependencies(notifyCtx, config)
	if err != nil {
		log.Fatalf("failed to initialize external dependencies: %v", err)
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// init connection state repository
	connRepo := connStateRepo.NewConnStateRepository(db, rClient)

	// init state publisher
	statePublisher, err := publisher.NewStatePublisher(
		connRepo,
		logger.With(slog.String("component", "statePublisher")),
		config.GatewayID,
		&config.PublishMaxRetry,
	)
	if err != nil {
		log.Fatalf("failed to initiate state publisher: %v", err)
	}

	// init media store
	store, err := mediastore.New(config.MediaDir)
	if err != nil {
		log.Fatalf("failed to initiate media store: %v", err)
	}

	// init inbound relay
	inboundRelay := relay.NewRelay(
		store,
		connRepo,
		logger.With(slog.String("component", "relay")),
		config.WebhookUrl,
		config.WebhookToken,
	)

	// init session manager
	manager := session.NewManager(session.Options{
		Factory: &waclient.MeowFactory{
			SessionDir: config.SessionDir,
			Logger:     logger.With(slog.String("component", "waclient")),
		},
		Publisher:      statePublisher,
		Sink:           inboundRelay,
		Logger:         logger.With(slog.String("component", "sessionManager")),
		SessionDir:     config.SessionDir,
		ReconnectDelay: config.ReconnectDelay,
		InitRetryDelay: config.InitRetryDelay,
	})

	// init http handler
	handler := httpHandler.NewHttpHandler(
		fmt.Sprintf(":%d", config.HttpPort),
		manager,
		store,
		logger.With(slog.String("component", "http")),
	)

	// start the session immediately; pairing state becomes observable
	// via /status and /qr-code
	manager.Initialize()

	wg := sync.WaitGroup{}
	// run http handler
	wg.Go(func() {
		if err := handler.Run(); err != nil {
			logger.Error("http server encountered with an error and closed", "error", err.Error())
		}
		// cancel app context if http handler fails
		appCtxCancel()
	})

	// graceful shutdown
	wg.Go(func() {
		<-notifyCtx.Done()
		logger.Info("application shutting down...")

		shutDownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		handler.Shutdown(shutDownCtx)
		manager.Close()
		inboundRelay.Close()
		postgresql.Close(db)
	})

	wg.Wait()
	os.Exit(0)
}

func initExternalDependencies(ctx context.Context, config *Config) (db *gorm.DB, rCache *redisCache.RedisCache, err error) {
	// initialize database
	db, err = postgresql.Initialize(config.DbConnString, []any{&domain.ConnectionState{}})
	if err != nil {
		return
	}

	// initialize cache
	rCache, err = redisCache.NewRedisCache(ctx, config.RedisAddr)

	return
}
