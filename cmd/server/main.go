// Command server exposes the staged artifacts over HTTP: the mosque
// metadata document and the per-mosque ICS feeds, for subscribers who do
// not go through Google Calendar.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"mosquee-agenda/internal/cache"
	"mosquee-agenda/internal/config"
	"mosquee-agenda/internal/logging"
	"mosquee-agenda/internal/store"
	"mosquee-agenda/internal/web"
)

type options struct {
	Config   string        `short:"c" long:"config" env:"MOSQUEE_CONFIG" default:"config.yaml" description:"Path to the YAML configuration"`
	Addr     string        `long:"addr" env:"MOSQUEE_ADDR" default:":8080" description:"Listen address"`
	CacheDir string        `long:"cache-dir" env:"MOSQUEE_CACHE_DIR" default:"cache" description:"Directory for the serve cache"`
	CacheTTL time.Duration `long:"cache-ttl" env:"MOSQUEE_CACHE_TTL" default:"5m" description:"How long served artifacts may lag the store"`
	Verbose  bool          `short:"v" long:"verbose" description:"Enable debug logging"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	log := logging.Log
	logging.SetVerbose(opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	var serveCache *cache.Cache
	if cfg.GCSBucket != "" {
		gcs, err := store.NewGCS(ctx, cfg.GCSBucket)
		if err != nil {
			log.WithError(err).Fatal("initializing Cloud Storage store")
		}
		defer gcs.Close()
		st = gcs
		serveCache, err = cache.New(opts.CacheDir, opts.CacheTTL)
		if err != nil {
			log.WithError(err).Fatal("initializing serve cache")
		}
		log.WithField("bucket", cfg.GCSBucket).Info("serving feeds from Cloud Storage")
	} else {
		local, err := store.NewLocal(cfg.StoreDir)
		if err != nil {
			log.WithError(err).Fatal("initializing local store")
		}
		st = local
	}

	handler := web.New(st, serveCache, cfg.MetadataPath, log)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutting down")
		}
	}()

	log.WithField("addr", opts.Addr).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server failed")
	}
}
