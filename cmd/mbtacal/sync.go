package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"mbtacal/internal/config"
	"mbtacal/internal/gcal"
	"mbtacal/internal/ics"
	"mbtacal/internal/log"
	"mbtacal/internal/mbta"
	"mbtacal/internal/model"
	"mbtacal/internal/reconcile"
	"mbtacal/internal/render"
	"mbtacal/internal/web"
)

// runDisplay prints the current alerts as terminal banners. Display mode
// is cache-aware: the first run of the day hits the API, later runs reuse
// the stored response unless --no-cache is given.
func runDisplay(ctx context.Context, opts *options, source *mbta.Client) error {
	alerts, err := source.ActiveAlerts(ctx, !opts.noCache)
	if err != nil {
		return err
	}
	fmt.Print(render.Alerts(alerts))
	return nil
}

// runExport writes the current alerts to an .ics file.
func runExport(ctx context.Context, opts *options, source *mbta.Client) error {
	alerts, err := source.ActiveAlerts(ctx, !opts.noCache)
	if err != nil {
		return err
	}
	if err := ics.WriteFile(opts.icsPath, alerts, time.Now()); err != nil {
		return fmt.Errorf("write %s: %w", opts.icsPath, err)
	}
	log.Info("wrote ICS export", "path", opts.icsPath, "alerts", len(alerts))
	return nil
}

// alertSource yields the current monitored-line alerts.
type alertSource interface {
	ActiveAlerts(ctx context.Context, useCache bool) ([]model.Alert, error)
}

// syncer runs the fetch → list → reconcile → apply cycle against one
// calendar.
type syncer struct {
	source alertSource
	store  reconcile.Store
}

func newSyncer(ctx context.Context, conf *config.Config, source *mbta.Client) (*syncer, error) {
	key, err := conf.ServiceAccountKey()
	if err != nil {
		return nil, err
	}
	store, err := gcal.NewClient(ctx, conf.Calendar.CalendarID, key)
	if err != nil {
		return nil, err
	}
	return &syncer{source: source, store: store}, nil
}

// runOnce performs a single sync cycle and reports what it did. Sync
// always queries the live feed; converging the calendar toward a cached
// response would defeat the point.
func (s *syncer) runOnce(ctx context.Context) (web.Status, error) {
	now := time.Now()

	alerts, err := s.source.ActiveAlerts(ctx, false)
	if err != nil {
		return web.Status{LastRun: &now, LastError: err.Error()}, err
	}

	// List with no time bounds. An event derived from an alert whose
	// period lies in the past would fall outside any forward window; if
	// the listing missed it, every cycle would re-create it.
	events, err := s.store.ListEvents(ctx, model.TimeRange{})
	if err != nil {
		return web.Status{LastRun: &now, LastError: err.Error(), ActiveAlerts: len(alerts)}, err
	}

	plan, err := reconcile.Reconcile(alerts, events, now)
	if err != nil {
		return web.Status{LastRun: &now, LastError: err.Error(), ActiveAlerts: len(alerts)}, err
	}

	log.Info("sync plan",
		"alerts", len(alerts),
		"events", len(events),
		"create", len(plan.Create),
		"update", len(plan.Update),
		"delete", len(plan.Delete),
	)

	status := web.Status{
		LastRun:      &now,
		ActiveAlerts: len(alerts),
		Created:      len(plan.Create),
		Updated:      len(plan.Update),
		Deleted:      len(plan.Delete),
	}

	if err := reconcile.Apply(ctx, s.store, plan, now); err != nil {
		status.LastError = err.Error()
		return status, err
	}
	return status, nil
}

// runSync performs one sync cycle and exits.
func runSync(ctx context.Context, conf *config.Config, source *mbta.Client) error {
	s, err := newSyncer(ctx, conf, source)
	if err != nil {
		return err
	}
	if _, err := s.runOnce(ctx); err != nil {
		return err
	}
	return nil
}

// runDaemon syncs immediately, then on the configured cron schedule, while
// serving /health, /api/status, and /metrics until the context is
// cancelled.
func runDaemon(ctx context.Context, conf *config.Config, source *mbta.Client) error {
	s, err := newSyncer(ctx, conf, source)
	if err != nil {
		return err
	}

	server, err := web.NewServer(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	runAndRecord := func() {
		status, err := s.runOnce(ctx)
		outcome := web.OutcomeSuccess
		if err != nil {
			outcome = web.OutcomeError
			log.Error("sync run failed", err)
		}
		web.ObserveSync(outcome, status.Created, status.Updated, status.Deleted, status.ActiveAlerts)
		server.SetStatus(status)
	}

	runAndRecord()

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, runAndRecord); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", conf.RefreshCron, err)
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	log.Info("daemon started", "refresh", conf.RefreshCron, "listen", conf.Listen)
	return server.Run(ctx, conf.Listen)
}
