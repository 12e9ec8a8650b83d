// Command scrape fetches one mosque page, validates the embedded schedule,
// and prints the resulting record as JSON. Useful for checking a source
// before adding it to the configuration.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"mosquee-agenda/internal/logging"
	"mosquee-agenda/internal/scraper"
	"mosquee-agenda/internal/validate"
)

type options struct {
	Key     string `short:"k" long:"key" description:"Override the mosque key derived from the URL"`
	Year    int    `long:"year" description:"Schedule year (defaults to the current year)"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`

	Args struct {
		URL string `positional-arg-name:"url" required:"true" description:"Mosque schedule page"`
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

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	raw, err := scraper.New(nil).Fetch(ctx, opts.Args.URL)
	if err != nil {
		log.WithError(err).Fatal("fetching mosque page")
	}

	sched, err := validate.Schedule(raw, validate.Options{Key: opts.Key, Year: opts.Year})
	if err != nil {
		log.WithError(err).Fatal("validating schedule")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sched); err != nil {
		log.WithError(err).Fatal("encoding schedule")
	}
}
