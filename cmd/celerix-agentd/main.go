package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/celerix-dev/celerix-agent/internal/activity"
	"github.com/celerix-dev/celerix-agent/internal/api"
	"github.com/celerix-dev/celerix-agent/internal/auth"
	"github.com/celerix-dev/celerix-agent/internal/config"
	"github.com/celerix-dev/celerix-agent/internal/credentials"
	"github.com/celerix-dev/celerix-agent/internal/server"
	"github.com/celerix-dev/celerix-agent/internal/site"
	"github.com/celerix-dev/celerix-agent/pkg/schema"
	"github.com/celerix-dev/celerix-agent/pkg/sdk"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the agent YAML config (default: $CELERIX_CONFIG)")
	showVersion := pflag.Bool("version", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println("celerix-agentd", Version)
		return
	}

	fmt.Println("Starting Celerix Agent Daemon...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	// 1. Credentials
	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		log.Fatalf("Invalid master key: %v", err)
	}
	persister, err := credentials.NewPersistence(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to initialize persistence: %v", err)
	}
	creds := credentials.NewStore(persister, masterKey, logger)
	if err := creds.Load(); err != nil {
		logger.Warn("could not load stored credentials", "error", err)
	}
	if !creds.HasKeys() {
		fmt.Println("No collector credentials yet. Run `celerix-agent connect` to pair this site.")
	}

	// 2. Collector client
	client, err := sdk.NewClient(sdk.Config{
		Host:        cfg.Collector.Host,
		Version:     cfg.Collector.Version,
		Credentials: creds,
		Insecure:    cfg.Collector.Insecure,
		Timeout:     cfg.Collector.RequestTimeout,
		LogTimeout:  cfg.Collector.LogTimeout,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Failed to configure collector client: %v", err)
	}

	// 3. Activity emitter and managed site
	var inv site.Inventory
	if cfg.Inventory != "" {
		inv, err = site.LoadInventory(cfg.Inventory)
		if err != nil {
			log.Fatalf("Failed to load site inventory: %v", err)
		}
	}
	meta := schema.Site{URL: cfg.Site.URL, Name: cfg.Site.Name, Version: inv.Core, AgentVersion: Version}
	emitter, err := activity.NewEmitter(activity.Config{
		Sender:       client,
		Site:         meta,
		Housekeeping: cfg.Housekeeping,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("Failed to configure activity log: %v", err)
	}

	managed := site.NewMemSite(inv, meta, emitter, logger)
	fmt.Printf("Site loaded. %d plugins, %d themes.\n", len(inv.Plugins), len(inv.Themes))

	// 4. Inbound REST surface
	authn := auth.New(auth.Config{Credentials: creds, MaxSkew: cfg.Auth.MaxSkew, Logger: logger})
	router := server.NewRouter(&api.Handler{Site: managed, Logger: logger}, authn, logger)
	srv := server.New(server.Config{Address: cfg.ListenAddr, Handler: router, Logger: logger})

	// 5. Reload credentials on SIGHUP so `celerix-agent connect` takes
	// effect without a restart.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := creds.Reload(); err != nil {
				logger.Error("reloading credentials", "error", err)
				continue
			}
			logger.Info("credentials reloaded", "configured", creds.HasKeys())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Celerix Agent listening on %s\n", cfg.ListenAddr)
	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}

	fmt.Println("\nShutdown signal received. Flushing activity log...")
	client.Wait()
	fmt.Println("Delivery complete. Exiting.")
}
