package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"quotestream/config"
	"quotestream/feed"
	"quotestream/internal/status"
	"quotestream/logger"
	"quotestream/subscriber"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}
	env := config.AppEnvironment()
	if config.IsProductionLike(env) && strings.EqualFold(cfg.Logging.Level, "debug") {
		log.WithEnv("APP_ENV").Warn("debug logging enabled in a production environment")
	}

	log.WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"env":     env,
		"symbols": strings.Join(cfg.Feed.Symbols, ","),
	}).Info("starting quotestream")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		cw := cfg.Metrics.CloudWatch
		logger.InitCloudWatch(cw.Region, cw.Namespace, cw.Dashboard)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	connCfg := feed.ConnectionConfig{
		Scheme:      cfg.Feed.Scheme,
		Host:        cfg.Feed.Host,
		TokenParam:  cfg.Feed.TokenParam,
		AccessToken: cfg.Feed.AccessToken,
		Symbols:     cfg.Feed.Symbols,
	}
	dialer := &feed.WebSocketDialer{IdleTimeout: cfg.Feed.IdleTimeout}
	if err := feed.Setup(connCfg, feed.WithDialer(dialer), feed.WithLogger(log)); err != nil {
		log.WithError(err).Error("failed to set up feed connection")
		os.Exit(1)
	}
	manager, err := feed.Shared()
	if err != nil {
		log.WithError(err).Error("feed connection unavailable")
		os.Exit(1)
	}

	requests := subscriber.BuildRequests(cfg.Subscription.Template, manager.Symbols())
	resub := subscriber.New(ctx, manager, requests, cfg.Subscription.RequestsPerSecond, cfg.Subscription.Burst)

	quotes := log.WithComponent("quotes")
	manager.OnConnected(resub.Trigger)
	manager.OnMessage(func(msg string) {
		quotes.WithField("quote", msg).Info("quote received")
	})
	manager.OnError(func(err error) {
		log.WithComponent("main").WithError(err).Warn("feed error")
	})
	manager.OnStateChange(func(from, to feed.State) {
		log.WithComponent("main").WithFields(logger.Fields{
			"from": from.String(),
			"to":   to.String(),
		}).Info("feed state changed")
	})

	statusServer, err := status.NewServer(cfg.Status, manager, log)
	if err != nil {
		log.WithError(err).Error("failed to create status server")
		os.Exit(1)
	}
	statusDone := make(chan struct{})
	go func() {
		defer close(statusDone)
		if err := statusServer.Run(ctx); err != nil {
			log.WithComponent("main").WithError(err).Warn("status server stopped")
		}
	}()

	if err := manager.Connect(); err != nil {
		log.WithError(err).Error("failed to connect to feed")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	manager.Disconnect()
	resub.Stop()
	cancel()
	<-statusDone

	log.Info("quotestream stopped")
}
