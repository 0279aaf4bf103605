package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"mbtacal/internal/config"
	"mbtacal/internal/log"
	"mbtacal/internal/mbta"
)

var version = "0.1.0"

type options struct {
	configPath string
	noCache    bool
	sync       bool
	icsPath    string
	daemon     bool
	listen     string
	verbose    bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "mbtacal",
		Short: "MBTA subway alerts in your terminal or calendar",
		Long: `mbtacal fetches active MBTA service alerts for the Red, Orange, and
Green lines. By default it prints them to the terminal; with --sync it
mirrors them into a Google Calendar, and with --daemon it keeps doing so
on a schedule.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.configPath, "config", defaultConfigPath(), "Path to config file")
	flags.BoolVarP(&opts.noCache, "no-cache", "n", false, "Query the live feed instead of today's cached response")
	flags.BoolVarP(&opts.sync, "sync", "s", false, "Sync alerts to Google Calendar (requires GOOGLE_CALENDAR_ID and GOOGLE_SERVICE_ACCOUNT_KEY)")
	flags.StringVar(&opts.icsPath, "ics", "", "Write alerts to the given .ics file instead of printing them")
	flags.BoolVar(&opts.daemon, "daemon", false, "Run calendar sync on a schedule and serve HTTP status/metrics")
	flags.StringVar(&opts.listen, "listen", "", "Daemon HTTP listen address (overrides config)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show mbtacal version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mbtacal v%s\n", version)
		},
	})

	// Root context cancelled on SIGINT/SIGTERM so the daemon can shut
	// down its cron loop and HTTP server cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mbtacal", "config.yaml")
	}
	return "config.yaml"
}

func run(ctx context.Context, opts *options) error {
	conf, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", opts.configPath, err)
	}
	if opts.verbose {
		conf.LogLevel = "debug"
	}
	if opts.listen != "" {
		conf.Listen = opts.listen
	}
	log.Init(conf.LogLevel, conf.LogFormat)

	log.Debug("effective config",
		"api_url", conf.APIURL,
		"cache_dir", conf.CacheDir,
		"refresh", conf.RefreshCron,
		"listen", conf.Listen,
	)

	source := mbta.NewClient(conf.APIURL, conf.APIKey, mbta.NewCache(conf.CacheDir))

	switch {
	case opts.daemon:
		return runDaemon(ctx, conf, source)
	case opts.sync:
		return runSync(ctx, conf, source)
	case opts.icsPath != "":
		return runExport(ctx, opts, source)
	default:
		return runDisplay(ctx, opts, source)
	}
}
