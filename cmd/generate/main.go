// Command generate rebuilds ICS feeds from schedules staged by a previous
// run, without touching the network. Handy for regenerating feeds after a
// template change and for inspecting exactly what would be synchronized.
package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"

	"mosquee-agenda/internal/config"
	"mosquee-agenda/internal/ics"
	"mosquee-agenda/internal/logging"
	"mosquee-agenda/internal/model"
	"mosquee-agenda/internal/store"
)

type options struct {
	Config  string `short:"c" long:"config" env:"MOSQUEE_CONFIG" default:"config.yaml" description:"Path to the YAML configuration"`
	Stdout  bool   `long:"stdout" description:"Print the feed instead of writing it (single mosque only)"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`

	Args struct {
		Keys []string `positional-arg-name:"key" description:"Mosque keys (defaults to every configured mosque)"`
	} `positional-args:"true"`
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

	template, err := ics.NewTemplate(cfg.Template.Title, cfg.Template.Description,
		cfg.Template.Reminders, cfg.Template.DurationMinutes, cfg.Template.Exclude)
	if err != nil {
		log.WithError(err).Fatal("invalid event template")
	}

	st, err := store.NewLocal(cfg.StoreDir)
	if err != nil {
		log.WithError(err).Fatal("opening store")
	}

	keys := opts.Args.Keys
	if len(keys) == 0 {
		for _, m := range cfg.Mosques {
			key := m.Key
			if key == "" {
				key = model.KeyFromURL(m.URL)
			}
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		log.Fatal("no mosques configured and no keys given")
	}
	if opts.Stdout && len(keys) != 1 {
		log.Fatal("--stdout requires exactly one mosque key")
	}

	failures := 0
	for _, key := range keys {
		var sched model.Schedule
		if !st.GetJSON(key, &sched) {
			log.WithField("mosque", key).Error("no staged schedule, run sync or scrape first")
			failures++
			continue
		}

		events, err := ics.Generate(&sched, template)
		if err != nil {
			log.WithField("mosque", key).WithError(err).Error("generating events")
			failures++
			continue
		}

		feed, err := ics.Encode(&sched, events)
		if err != nil {
			log.WithField("mosque", key).WithError(err).Error("encoding feed")
			failures++
			continue
		}

		if opts.Stdout {
			os.Stdout.Write(feed)
			continue
		}
		if err := st.SetICS(key, feed); err != nil {
			log.WithField("mosque", key).WithError(err).Error("writing feed")
			failures++
			continue
		}
		log.WithField("mosque", key).WithField("events", len(events)).Info("feed written")
	}

	if failures > 0 {
		os.Exit(1)
	}
}
