// Command panchaanga computes one city year offline and writes it as JSON,
// an iCalendar feed, or a plain festival list.
//
//	panchaanga -city bengaluru -year 2024 -format ics -o festivals.ics
//	panchaanga -lat 51.5 -lon -0.13 -tz Europe/London -year 2024
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zapponejosh/panchaanga-api/internal/calendar"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/ics"
	"github.com/zapponejosh/panchaanga-api/internal/location"
	"github.com/zapponejosh/panchaanga-api/internal/logger"
	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
	"github.com/zapponejosh/panchaanga-api/internal/rules"
)

type options struct {
	city       string
	citiesPath string
	name       string
	lat, lon   float64
	tz         string
	year       int
	rulesDirs  []string
	ayanamsha  ephemeris.Ayanamsha
	format     string
	script     string
	output     string
	logLevel   string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("panchaanga", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	var rulesDirs, ayanamsha string
	fs.StringVar(&o.city, "city", "", "Catalogue city key, e.g. bengaluru")
	fs.StringVar(&o.citiesPath, "cities", "", "YAML city catalogue (default: built-in)")
	fs.StringVar(&o.name, "name", "", "Display name for a -lat/-lon location")
	fs.Float64Var(&o.lat, "lat", 0, "Latitude in degrees, north positive")
	fs.Float64Var(&o.lon, "lon", 0, "Longitude in degrees, east positive")
	fs.StringVar(&o.tz, "tz", "", "IANA time zone for a -lat/-lon location")
	fs.IntVar(&o.year, "year", 0, "Gregorian year (required)")
	fs.StringVar(&rulesDirs, "rules", "./rules", "Comma-separated festival rule directories")
	fs.StringVar(&ayanamsha, "ayanamsha", string(ephemeris.ChitraAt180), "chitra_at_180 or tropical")
	fs.StringVar(&o.format, "format", "json", "Output format: json, ics or text")
	fs.StringVar(&o.script, "script", "en", "Script for festival names")
	fs.StringVar(&o.output, "o", "", "Output file (default: stdout)")
	fs.StringVar(&o.logLevel, "log-level", "warn", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var errs []error
	if o.year == 0 {
		errs = append(errs, errors.New("-year is required"))
	}
	if o.city == "" && o.tz == "" {
		errs = append(errs, errors.New("either -city or -lat/-lon/-tz is required"))
	}
	if o.city != "" && o.tz != "" {
		errs = append(errs, errors.New("-city and -tz are mutually exclusive"))
	}
	switch o.format {
	case "json", "ics", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown -format %q", o.format))
	}
	a, err := ephemeris.ParseAyanamsha(ayanamsha)
	if err != nil {
		errs = append(errs, err)
	}
	o.ayanamsha = a
	for _, d := range strings.Split(rulesDirs, ",") {
		if d = strings.TrimSpace(d); d != "" {
			o.rulesDirs = append(o.rulesDirs, d)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &o, nil
}

// resolveCity picks the catalogue city or builds one from coordinates.
func resolveCity(o *options) (location.City, error) {
	if o.city == "" {
		name := o.name
		if name == "" {
			name = fmt.Sprintf("%.4f, %.4f", o.lat, o.lon)
		}
		c := location.City{
			Key:       fmt.Sprintf("%.4f_%.4f", o.lat, o.lon),
			Name:      name,
			Latitude:  o.lat,
			Longitude: o.lon,
			Timezone:  o.tz,
		}
		return c, c.Validate()
	}

	cat := location.Default()
	if o.citiesPath != "" {
		var err error
		if cat, err = location.Load(o.citiesPath); err != nil {
			return location.City{}, err
		}
	}
	c, ok := cat.Lookup(o.city)
	if !ok {
		return location.City{}, fmt.Errorf("%w: %q", calendar.ErrUnknownCity, o.city)
	}
	return c, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	lg := logger.New(stderr, o.logLevel, "text")

	city, err := resolveCity(o)
	if err != nil {
		return err
	}

	svc := calendar.NewService(calendar.Config{
		Cities:    location.Default(),
		Ephemeris: ephemeris.NewMeeus(),
		Ayanamsha: o.ayanamsha,
		Rules:     rules.NewCache(rules.NewLoader(lg)),
		RulesDirs: o.rulesDirs,
	}, lg)

	y, err := svc.YearFor(ctx, city, o.year)
	if err != nil {
		return err
	}
	tree, err := svc.Rules()
	if err != nil {
		return err
	}

	out := stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch o.format {
	case "ics":
		return ics.Write(out, y, tree, ics.Options{Script: o.script})
	case "text":
		return writeText(out, y, tree, o.script)
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			City      location.City       `json:"city"`
			Year      int                 `json:"year"`
			Ayanamsha ephemeris.Ayanamsha `json:"ayanamsha"`
			Days      []*panchaanga.Day   `json:"days"`
		}{y.City, y.Year, y.Ayanamsha, y.Real()})
	}
}

func writeText(w io.Writer, y *panchaanga.Year, tree *rules.Tree, script string) error {
	for _, d := range y.Real() {
		for _, id := range d.Festivals {
			title := id
			if r, ok := tree.Rule(id); ok {
				title = r.Title(script)
			}
			if _, err := fmt.Fprintf(w, "%s  %-3s  %s\n", d.Date, d.Weekday.String()[:3], title); err != nil {
				return err
			}
		}
	}
	return nil
}

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "panchaanga:", err)
		os.Exit(1)
	}
}
