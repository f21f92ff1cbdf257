package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leolive/onebody/config"
	"github.com/leolive/onebody/db"
	"github.com/leolive/onebody/logger"
	"github.com/leolive/onebody/mailroom"
	"github.com/leolive/onebody/pkg/lookupcache"
	"github.com/leolive/onebody/server/delivery"
	"github.com/leolive/onebody/server/httpapi"
	"github.com/leolive/onebody/server/lmtp"
)

func main() {
	cfg := config.NewDefaultConfig()

	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	fLogOutput := flag.String("logoutput", "", "Log output destination: 'stdout', 'stderr' or a file path (overrides config)")
	fLogLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (overrides config)")
	fLMTPAddr := flag.String("lmtpaddr", "", "LMTP listen address (overrides config)")
	fRelayHost := flag.String("relayhost", "", "Outbound SMTP relay host:port (overrides config)")
	flag.Parse()

	if err := config.Load(*configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	if *fLogOutput != "" {
		cfg.Logging.Output = *fLogOutput
	}
	if *fLogLevel != "" {
		cfg.Logging.Level = *fLogLevel
	}
	if *fLMTPAddr != "" {
		cfg.LMTP.Addr = *fLMTPAddr
	}
	if *fRelayHost != "" {
		cfg.Relay.Host = *fRelayHost
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDatabase(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}
	defer database.Close()
	database.StartPoolMetrics(ctx)

	var directory mailroom.Directory = db.NewDirectory(database)
	if cfg.LookupCache.Enabled {
		cache := lookupcache.New(
			cfg.LookupCache.ParsedPositiveTTL(),
			cfg.LookupCache.ParsedNegativeTTL(),
			cfg.LookupCache.MaxSize,
			5*time.Minute,
		)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			cache.Stop(stopCtx)
		}()
		directory = db.NewCachedDirectory(directory, cache)
	}

	handler := mailroom.New(directory, db.NewMessageStore(database))
	sender := delivery.NewSMTPRelaySender(cfg.Relay)

	errCh := make(chan error, 2)

	var lmtpServer *lmtp.Server
	if cfg.LMTP.Start {
		lmtpServer = lmtp.New(cfg.LMTP, handler, sender)
		go func() {
			errCh <- lmtpServer.Start()
		}()
	} else {
		logger.Warn("LMTP server disabled; no inbound mail will be processed")
	}

	var apiServer *httpapi.Server
	if cfg.HTTPAPI.Start {
		apiServer = httpapi.New(cfg.HTTPAPI, database)
		go func() {
			errCh <- apiServer.Start()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	if lmtpServer != nil {
		lmtpServer.Close()
	}
	if apiServer != nil {
		apiServer.Close()
	}
}
