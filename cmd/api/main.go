// Package main is the entry point for the panchaanga API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zapponejosh/panchaanga-api/internal/api"
	"github.com/zapponejosh/panchaanga-api/internal/calendar"
	"github.com/zapponejosh/panchaanga-api/internal/config"
	"github.com/zapponejosh/panchaanga-api/internal/database"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/location"
	"github.com/zapponejosh/panchaanga-api/internal/logger"
	"github.com/zapponejosh/panchaanga-api/internal/metrics"
	"github.com/zapponejosh/panchaanga-api/internal/rules"
	"github.com/zapponejosh/panchaanga-api/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	lg := logger.Setup(cfg)
	lg.Info().
		Str("env", cfg.Env).
		Int("port", cfg.Port).
		Str("ayanamsha", cfg.Ayanamsha).
		Strs("rules_dirs", cfg.RulesDirs).
		Msg("Starting panchaanga API")

	db, err := database.Open(database.DefaultConfig(cfg.DatabasePath), lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if _, err := db.Migrate(context.Background()); err != nil {
		lg.Fatal().Err(err).Msg("Failed to run migrations")
	}

	cities, err := loadCities(cfg)
	if err != nil {
		lg.Fatal().Err(err).Msg("Failed to load city catalogue")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := calendar.NewService(calendar.Config{
		Cities:    cities,
		Ephemeris: ephemeris.NewMeeus(),
		Ayanamsha: cfg.AyanamshaValue(),
		Rules:     rules.NewCache(rules.NewLoader(lg)),
		RulesDirs: cfg.RulesDirs,
		Store:     db,
		Metrics:   m,
	}, lg)

	// Fail fast on a broken rule library rather than on the first request.
	tree, err := svc.Rules()
	if err != nil {
		lg.Fatal().Err(err).Msg("Failed to load festival rules")
	}
	lg.Info().Int("rules", tree.Len()).Str("fingerprint", tree.Fingerprint()).Msg("Loaded festival rules")

	sched := scheduler.New(lg)
	if err := registerJobs(sched, svc, cfg, m, lg); err != nil {
		lg.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	srv := api.New(api.Config{
		Port:     cfg.Port,
		Log:      lg,
		Calendar: svc,
		Health:   db,
		Metrics:  m,
		DevMode:  cfg.IsDevelopment(),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go reloadOnHangup(hup, svc, lg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(hup)

	lg.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		lg.Error().Err(err).Msg("Server forced to shutdown")
	}
	lg.Info().Msg("Server stopped")
}

// reloadOnHangup rereads the rule directories on every SIGHUP. A broken
// library is logged and stays in effect until the next reload.
func reloadOnHangup(hup <-chan os.Signal, svc *calendar.Service, lg zerolog.Logger) {
	for range hup {
		if _, err := svc.ReloadRules(); err != nil {
			lg.Error().Err(err).Msg("Failed to reload festival rules")
		}
	}
}

func loadCities(cfg *config.Config) (*location.Catalogue, error) {
	if cfg.CitiesPath == "" {
		return location.Default(), nil
	}
	return location.Load(cfg.CitiesPath)
}

// registerJobs adds the precompute job when a schedule is configured and
// runs it once in the background so a fresh deployment warms its store.
func registerJobs(sched *scheduler.Scheduler, svc *calendar.Service, cfg *config.Config, m *metrics.Metrics, lg zerolog.Logger) error {
	if cfg.PrecomputeCron == "" {
		return nil
	}

	job := scheduler.NewPrecomputeJob(svc, cfg.PrecomputeCities, time.Hour, m, lg)
	if err := sched.AddJob(cfg.PrecomputeCron, job); err != nil {
		return err
	}

	go func() {
		if err := sched.RunNow(job); err != nil {
			lg.Error().Err(err).Msg("Initial precompute failed")
		}
	}()
	return nil
}
