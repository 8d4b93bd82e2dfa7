package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"healthcal/internal/api"
	"healthcal/internal/calendar"
	"healthcal/internal/capture"
	"healthcal/internal/config"
	appLog "healthcal/internal/log"
	"healthcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	snapshot   bool
	debug      bool
}

func main() {
	appLog.Info("healthcal starting", "version", "0.1.0")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
		appLog.Console()
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc := resolveLocationOrLocal(conf.Timezone)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"default_view", conf.DefaultView,
		"refresh", conf.RefreshCron,
		"api_base_url", conf.API.BaseURL,
		"once", flags.once,
		"snapshot", flags.snapshot,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	client := api.NewClient(conf.API.BaseURL, conf.API.Token)
	ctrl := calendar.NewController(client, loc)
	if conf.DefaultView == string(calendar.ViewWeek) {
		ctrl.SwitchView(ctx, calendar.ViewWeek)
	}

	if flags.once {
		runOnce(ctx, ctrl)
		return
	}

	// Periodic re-aggregation of the current range.
	sched := cron.New()
	_, err = sched.AddFunc(conf.RefreshCron, func() {
		snap := ctrl.Refresh(ctx)
		if snap.Err != "" {
			appLog.Error("scheduled refresh failed", errors.New(snap.Err), "range", snap.Range.Label)
			return
		}
		appLog.Info("scheduled refresh done", "range", snap.Range.Label, "generation", snap.Generation)

		if flags.snapshot {
			capturePreview(ctx, conf, flags.debug)
		}
	})
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	server := web.NewServer(conf, ctrl, client, loc, flags.debug)
	httpSrv := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}

	appLog.Info("healthcal exiting")
}

// runOnce performs a single fetch of the current range and prints a short
// summary, for cron-less setups and smoke testing.
func runOnce(ctx context.Context, ctrl *calendar.Controller) {
	snap := ctrl.Refresh(ctx)
	if snap.Err != "" {
		appLog.Error("fetch failed", errors.New(snap.Err), "range", snap.Range.Label)
		os.Exit(1)
	}

	total := 0
	for _, evs := range snap.Buckets {
		total += len(evs)
	}
	fmt.Printf("%s: %d events across %d days\n", snap.Range.Label, total, len(snap.Buckets))
}

func capturePreview(ctx context.Context, conf *config.Config, debug bool) {
	out := conf.SnapshotPath
	if out == "" {
		out = "/var/lib/healthcal/preview.png"
		if debug {
			out = "./cache/preview.png"
		}
	}

	u := &url.URL{Scheme: "http", Host: conf.Listen, Path: "/calendar"}
	if conf.BasicAuth != nil && conf.BasicAuth.Username != "" {
		u.User = url.UserPassword(conf.BasicAuth.Username, conf.BasicAuth.Password)
	}

	err := capture.CalendarPNG(ctx, capture.Options{
		URL:        u.String(),
		OutputPath: out,
	})
	if err != nil {
		appLog.Error("snapshot capture failed", err, "output", out)
		return
	}
	appLog.Info("snapshot captured", "output", out)
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/healthcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch the current range once, print a summary, and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Capture /calendar to a PNG after each scheduled refresh")
	flag.BoolVar(&cfg.debug, "debug", false, "Verbose console logging and local cache paths")

	flag.Parse()

	return cfg
}
