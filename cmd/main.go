package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"comm-terminal/internal/config"
	"comm-terminal/internal/delivery/http/handler"
	"comm-terminal/internal/delivery/ws"
	"comm-terminal/internal/logger"
	"comm-terminal/internal/routes"
	"comm-terminal/internal/syncer"
	"comm-terminal/internal/transport/realtime"
	"comm-terminal/internal/transport/rest"
	"comm-terminal/internal/usecase/broadcast"
	"comm-terminal/internal/usecase/channel"
	"comm-terminal/internal/usecase/device"
	"comm-terminal/internal/usecase/direct"
	"comm-terminal/internal/usecase/location"
	pkgmqtt "comm-terminal/pkg/mqtt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	env := cfg.Server.Environment
	if env == "" {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting communication terminal",
		zap.String("environment", env),
	)

	if cfg.Backend.BaseURL == "" {
		logger.Fatal("Backend configuration is missing. Please set BACKEND_BASE_URL.")
	}
	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT secret is missing. Please set JWT_SECRET environment variable.")
	}

	backend := rest.NewClient(&cfg.Backend)

	mqttClient := pkgmqtt.NewClient(&pkgmqtt.Config{
		Broker:               cfg.Realtime.Broker,
		ClientID:             cfg.Realtime.ClientID,
		Username:             cfg.Realtime.Username,
		Password:             cfg.Realtime.Password,
		CleanSession:         true,
		KeepAlive:            cfg.Realtime.KeepAlive,
		ConnectTimeout:       cfg.Realtime.ConnectTimeout,
		AutoReconnect:        cfg.Realtime.AutoReconnect,
		MaxReconnectInterval: cfg.Realtime.MaxReconnectInterval,
	})
	if err := mqttClient.Connect(); err != nil {
		// Realtime is degraded but the REST path still works; the client
		// keeps reconnecting in the background.
		logger.Error("Realtime broker unavailable at startup", zap.Error(err))
	}

	rt, err := realtime.NewSubscriber(mqttClient, cfg.Realtime.TopicPrefix, cfg.Realtime.QoS)
	if err != nil {
		logger.Fatal("Failed to build realtime subscriber", zap.Error(err))
	}

	coord := syncer.NewCoordinator(rt, cfg.Sync.ResyncOnReconnect)
	metrics := coord.Metrics()

	deviceService := device.NewService(backend)
	locations := location.NewProvider(backend)

	broadcastService := broadcast.NewService(backend, coord, deviceService, metrics, cfg.Sync.HistoryLimit)
	registry := channel.NewRegistry(backend, coord, deviceService, metrics, cfg.Sync.HistoryLimit)
	directService := direct.NewService(backend, coord, deviceService, locations, metrics, cfg.Sync.HistoryLimit, cfg.Sync.StaleLocationAfter)

	// The global feed is always on; channels and conversations open on demand.
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := broadcastService.Start(startCtx); err != nil {
		logger.Error("Broadcast feed failed to start", zap.Error(err))
	}
	startCancel()

	hub := ws.NewHub(registry.Muted)
	coord.OnEvent(hub.Publish)
	go hub.Run()

	handlers := routes.Handlers{
		Broadcast: handler.NewBroadcastHandler(broadcastService),
		Channel:   handler.NewChannelHandler(registry),
		Direct:    handler.NewDirectHandler(directService),
		Device:    handler.NewDeviceHandler(deviceService),
		Sync:      handler.NewSyncHandler(coord, metrics),
	}
	router := routes.SetupRoutes(cfg, backend, rt, hub, handlers)

	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	addr := net.JoinHostPort(host, port)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("address", addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	broadcastService.Stop()
	coord.StopAll()
	hub.Close()
	mqttClient.Disconnect()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Failed to shutdown server", zap.Error(err))
	}

	log.Println("Server exited properly")
}
