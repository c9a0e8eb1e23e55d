package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/mailgate/internal/backend"
	"github.com/nhle/mailgate/internal/gateway"
	"github.com/nhle/mailgate/internal/logging"
	"github.com/nhle/mailgate/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mailgate-gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to configuration file (default: search standard locations)")
	listen := flag.String("listen", "", "Listen address, overrides the config file")
	flag.Parse()

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	log := logging.NewConsole(os.Stderr, cfg.LogLevel)
	if cfg.LogFile != "" {
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return err
		}
		defer f.Close()
		log = logging.New(f, cfg.LogLevel)
	}

	if dir := filepath.Dir(cfg.Storage); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating storage directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()

	var scanner gateway.Scanner = gateway.NopScanner{}
	if cfg.AV.Enabled {
		scanner = gateway.ClamdScanner{Command: cfg.AV.Command}
	}

	imap := backend.NewIMAP(&tls.Config{MinVersion: tls.VersionTLS12}, log)
	srv := gateway.NewServer(cfg, imap, st, scanner, log)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("listen", cfg.Listen).
			Int("accounts", len(cfg.AllowedAccounts)).
			Bool("av", cfg.AV.Enabled).
			Msg("Gateway listening")

		var err error
		if cfg.TLSCert != "" {
			err = httpSrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return gateway.RunPurger(ctx, st, cfg.AttachmentTTL(), purgeInterval, log)
	})

	return g.Wait()
}
