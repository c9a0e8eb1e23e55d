package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/app"
	"github.com/nhle/mailgate/internal/credential"
	"github.com/nhle/mailgate/internal/download"
	"github.com/nhle/mailgate/internal/engine"
	"github.com/nhle/mailgate/internal/loader"
	"github.com/nhle/mailgate/internal/logging"
	"github.com/nhle/mailgate/internal/model"
	appsync "github.com/nhle/mailgate/internal/sync"
	"github.com/nhle/mailgate/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mailgate:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "Path to configuration file")
	envFile := flag.String("env", ".env", "Optional dotenv file with MAILGATE_ overrides")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", *envFile, err)
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	var logOut io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	log := logging.New(logOut, cfg.Log.Level)

	saver, err := newSaver(cfg.Downloads)
	if err != nil {
		return err
	}

	var opts []transport.Option
	opts = append(opts, transport.WithLogger(log))
	if cfg.Gateway.InsecureSkipVerify {
		opts = append(opts, transport.WithInsecureSkipVerify())
	}
	client := transport.NewClient(cfg.Gateway.BaseURL, opts...)

	eng := engine.New(engine.Config{PageSize: cfg.Gateway.PageSize}, client, saver, log)

	interval := time.Duration(cfg.Sync.RefreshIntervalSec) * time.Second
	refresher := appsync.New(eng, interval, log)

	identity := cfg.Account.Identity
	secret := prefillSecret(identity, log)

	log.Info().
		Str("gateway", cfg.Gateway.BaseURL).
		Str("identity", logging.MaskEmail(identity)).
		Msg("Starting mailgate")

	p := tea.NewProgram(app.New(eng, refresher, identity, secret, log), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// newSaver picks S3 when a bucket is configured, else the downloads
// directory.
func newSaver(cfg model.DownloadsConfig) (loader.Saver, error) {
	if cfg.S3.Bucket == "" {
		return download.NewDirSaver(cfg.Dir), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return download.NewS3Saver(ctx, download.S3Options{
		Bucket:   cfg.S3.Bucket,
		Prefix:   cfg.S3.Prefix,
		Region:   cfg.S3.Region,
		Endpoint: cfg.S3.Endpoint,
	})
}

// prefillSecret looks the secret up in the system keyring. A missing
// entry or keyring just leaves the password field empty.
func prefillSecret(identity string, log zerolog.Logger) string {
	if identity == "" {
		return ""
	}
	secret, err := credential.Lookup(identity)
	if err != nil {
		if !errors.Is(err, credential.ErrSecretNotFound) {
			log.Debug().Err(err).Msg("Keyring lookup failed")
		}
		return ""
	}
	return secret
}
