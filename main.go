package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ArteryPulse/Bridge"
	"ArteryPulse/Config"
	"ArteryPulse/Controllers"
	"ArteryPulse/CronJobs"
	"ArteryPulse/Device"
	"ArteryPulse/FirebaseMessaging"
	"ArteryPulse/Middleware"
	"ArteryPulse/Models"
	"ArteryPulse/Monitor"
	"ArteryPulse/Routes"
	"ArteryPulse/SSE"
	"ArteryPulse/Storage"
	"ArteryPulse/Utils/Logger"
	"ArteryPulse/Utils/Token"

	firebase "firebase.google.com/go/v4"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := Config.Load()
	if err != nil {
		panic(err)
	}
	if err := Logger.Setup(cfg.Server.Env); err != nil {
		panic(err)
	}
	defer Logger.Sync()

	Token.Configure(cfg.Auth.APISecret, cfg.Auth.TokenHourLifespan)
	if err := Models.ConnectDataBase(cfg.DB); err != nil {
		Logger.Log.Fatalw("database unavailable", "error", err)
	}

	ctx := context.Background()
	var app *firebase.App
	if cfg.Storage.Backend == "firebase" || cfg.Firebase.Notifications {
		if app, err = FirebaseMessaging.NewApp(ctx, cfg.Firebase); err != nil {
			Logger.Log.Fatalw("firebase unavailable", "error", err)
		}
	}
	if cfg.Firebase.Notifications {
		if err := FirebaseMessaging.Setup(ctx, app); err != nil {
			Logger.Log.Warnw("notifications disabled", "error", err)
		}
	}

	store, err := openStore(ctx, cfg, app)
	if err != nil {
		Logger.Log.Fatalw("storage unavailable", "backend", cfg.Storage.Backend, "error", err)
	}
	Controllers.Store = store

	monitorCfg := Monitor.DefaultConfig()
	if cfg.Monitor.MaxPoints > 0 {
		monitorCfg.MaxPoints = cfg.Monitor.MaxPoints
	}
	monitorCfg.TimeSpan = cfg.Monitor.TimeSpanMs
	if d := cfg.Monitor.DisplayInterval(); d > 0 {
		monitorCfg.DisplayInterval = d
	}
	manager := Device.NewManager(Device.Options{
		BaudRate:    cfg.Device.BaudRate,
		RequestMode: cfg.Device.RequestMode,
		Monitor:     monitorCfg,
	})
	defer manager.Close()
	Controllers.DeviceManager = manager

	hub := Bridge.NewHub(manager, cfg.Server.Origins())
	manager.Subscribe(hub)
	manager.Subscribe(SSE.Broadcaster)

	heartbeat := CronJobs.StartStatusHeartbeat(manager, CronJobs.HeartbeatInterval)
	defer heartbeat.Stop()

	if cfg.Server.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(Middleware.RequestLogger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Origins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	Routes.ConfigRoutes(router, hub)

	srv := &http.Server{Addr: cfg.Server.Address, Handler: router}
	go func() {
		Logger.Log.Infow("listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Log.Fatalw("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	Logger.Log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Logger.Log.Warnw("shutdown", "error", err)
	}
}

func openStore(ctx context.Context, cfg *Config.Config, app *firebase.App) (Storage.Store, error) {
	if cfg.Storage.Backend == "firebase" {
		return Storage.NewFirebaseStore(ctx, app, cfg.Firebase.Bucket, cfg.Storage.RecordsDir)
	}
	return Storage.NewLocalStore(cfg.Storage.RecordsDir)
}
