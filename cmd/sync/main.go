// Command sync runs the full pipeline: scrape every configured mosque,
// validate the schedules, generate events, and reconcile each mosque's
// public Google calendar.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"mosquee-agenda/internal/config"
	"mosquee-agenda/internal/gcal"
	"mosquee-agenda/internal/ics"
	"mosquee-agenda/internal/logging"
	"mosquee-agenda/internal/model"
	"mosquee-agenda/internal/pipeline"
	"mosquee-agenda/internal/registry"
	"mosquee-agenda/internal/scraper"
	"mosquee-agenda/internal/store"
)

type options struct {
	Config      string `short:"c" long:"config" env:"MOSQUEE_CONFIG" default:"config.yaml" description:"Path to the YAML configuration"`
	Credentials string `long:"credentials" env:"GOOGLE_APPLICATION_CREDENTIALS" description:"Google service account key file"`
	DryRun      bool   `long:"dry-run" description:"Stage artifacts without touching remote calendars"`
	Verbose     bool   `short:"v" long:"verbose" description:"Enable debug logging"`
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
	if opts.Credentials != "" {
		cfg.CredentialsFile = opts.Credentials
	}
	if len(cfg.Mosques) == 0 {
		log.WithField("config", opts.Config).Fatal("no mosques configured, add some under 'mosques:'")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	template, err := ics.NewTemplate(cfg.Template.Title, cfg.Template.Description,
		cfg.Template.Reminders, cfg.Template.DurationMinutes, cfg.Template.Exclude)
	if err != nil {
		log.WithError(err).Fatal("invalid event template")
	}

	var st store.Store
	if cfg.GCSBucket != "" {
		gcs, err := store.NewGCS(ctx, cfg.GCSBucket)
		if err != nil {
			log.WithError(err).Fatal("initializing Cloud Storage store")
		}
		defer gcs.Close()
		st = gcs
		log.WithField("bucket", cfg.GCSBucket).Info("staging artifacts to Cloud Storage")
	} else {
		local, err := store.NewLocal(cfg.StoreDir)
		if err != nil {
			log.WithError(err).Fatal("initializing local store")
		}
		st = local
	}

	var syncer pipeline.Syncer
	if !opts.DryRun {
		var reg gcal.Registry
		if cfg.FirestoreProject != "" {
			fs, err := registry.NewFirestore(ctx, cfg.FirestoreProject, cfg.FirestoreCollection)
			if err != nil {
				log.WithError(err).Fatal("initializing Firestore registry")
			}
			defer fs.Close()
			reg = fs
			log.WithFields(logrus.Fields{
				"project":    cfg.FirestoreProject,
				"collection": cfg.FirestoreCollection,
			}).Info("using Firestore registry")
		} else {
			local, err := registry.NewLocal(cfg.RegistryDir)
			if err != nil {
				log.WithError(err).Fatal("initializing local registry")
			}
			reg = local
		}

		client, err := gcal.NewClient(ctx, cfg.CredentialsFile,
			time.Duration(cfg.Sync.RequestIntervalMS)*time.Millisecond)
		if err != nil {
			log.WithError(err).Fatal("initializing calendar client")
		}
		syncer = gcal.NewSyncer(client, reg, gcal.Options{
			BatchSize:    cfg.Sync.BatchSize,
			Prune:        *cfg.Sync.Prune,
			CalendarName: cfg.Sync.CalendarName,
		}, log)
	}

	sources := make([]pipeline.Source, 0, len(cfg.Mosques))
	for _, m := range cfg.Mosques {
		key := m.Key
		if key == "" {
			key = model.KeyFromURL(m.URL)
		}
		sources = append(sources, pipeline.Source{Key: key, URL: m.URL})
	}

	p := pipeline.New(scraper.New(nil), syncer, st, template, pipeline.Options{
		Workers:      cfg.Workers,
		MaxAttempts:  cfg.MaxAttempts,
		Year:         cfg.Year,
		DryRun:       opts.DryRun,
		MetadataPath: cfg.MetadataPath,
	}, log)

	summary := p.Run(ctx, sources)

	for _, res := range summary.Results {
		entry := log.WithFields(logrus.Fields{"mosque": res.Key, "status": res.Status})
		if res.Status == pipeline.StatusSuccess {
			entry.WithFields(logrus.Fields{
				"events":   res.Events,
				"calendar": res.CalendarURL,
			}).Info("mosque processed")
			continue
		}
		if res.Err != nil {
			entry = entry.WithField("stage", res.Stage).WithError(res.Err)
		}
		entry.Warn("mosque not published")
	}

	log.WithFields(logrus.Fields{
		"total":    len(summary.Results),
		"success":  summary.Count(pipeline.StatusSuccess),
		"skipped":  summary.Count(pipeline.StatusSkipped),
		"failed":   summary.Count(pipeline.StatusFailed),
		"duration": summary.Duration().Round(time.Millisecond),
	}).Info("run complete")

	if summary.Aborted {
		log.WithError(summary.AbortErr).Error("run aborted")
	}
	if !summary.Ok() {
		os.Exit(1)
	}
}
