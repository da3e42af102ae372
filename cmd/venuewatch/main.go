package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rewired-gh/venuewatch/internal/config"
	"github.com/rewired-gh/venuewatch/internal/eventlog"
	"github.com/rewired-gh/venuewatch/internal/logger"
	"github.com/rewired-gh/venuewatch/internal/models"
	"github.com/rewired-gh/venuewatch/internal/monitor"
	"github.com/rewired-gh/venuewatch/internal/observability"
	"github.com/rewired-gh/venuewatch/internal/patterns"
	"github.com/rewired-gh/venuewatch/internal/storage"
	"github.com/rewired-gh/venuewatch/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	serve      = flag.Bool("serve", false, "Keep serving metrics and bot commands after the run")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	var store *storage.Storage
	if cfg.Storage.Enabled {
		store, err = storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
	}

	var metrics *observability.Metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
		logger.Info("Serving metrics on %s/metrics", cfg.Metrics.ListenAddr)
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(telegram.Options{
			BotToken:       cfg.Telegram.BotToken,
			ChatID:         cfg.Telegram.ChatID,
			MaxRetries:     cfg.Telegram.MaxRetries,
			RetryDelayBase: cfg.Telegram.RetryDelayBase,
		})
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	var recorder monitor.Recorder
	if metrics != nil {
		recorder = metrics
	}

	startTime := time.Now()
	report, err := runAnalysis(ctx, cfg, recorder)
	if err != nil {
		if telegramClient != nil {
			if sendErr := telegramClient.SendError(ctx, err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		logger.Fatal("Analysis run failed: %v", err)
	}
	elapsed := time.Since(startTime)
	logger.Info("Analysis run completed in %v: %d flagged orders, %d novel symbols",
		elapsed, report.TotalFlaggedOrders(), report.TotalNovelSymbols())

	if metrics != nil {
		metrics.ObserveReport(report, elapsed)
	}

	if store != nil {
		if err := store.SaveRun(report); err != nil {
			logger.Error("Failed to persist run report: %v", err)
		} else {
			logger.Info("Run report %s stored", report.ID)
		}
	}

	if telegramClient != nil {
		if err := telegramClient.Send(ctx, report); err != nil {
			logger.Error("Failed to send Telegram notification: %v", err)
		} else {
			logger.Info("Sent Telegram notification for run %s", report.ID)
		}
	}

	if !*serve {
		shutdownMetrics(metricsServer)
		return
	}

	if telegramClient != nil {
		var latest telegram.LatestFunc
		if store != nil {
			latest = store.LatestRun
		}
		telegramClient.ListenForCommands(ctx, latest)
	}
	logger.Info("Serving until interrupted")
	<-ctx.Done()
	shutdownMetrics(metricsServer)
	logger.Info("Service stopped")
}

func shutdownMetrics(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Failed to shut down metrics server: %v", err)
	}
}

// runAnalysis reads the configured event logs, runs the venue analytics and
// pattern mining, and returns the report of the run.
func runAnalysis(ctx context.Context, cfg *config.Config, recorder monitor.Recorder) (*models.RunReport, error) {
	monitorConfig, err := cfg.Analytics.MonitorConfig()
	if err != nil {
		return nil, err
	}

	events, err := loadEvents(cfg.Source)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded %d events from %d event log(s)", len(events), len(cfg.Source.Paths))

	report := &models.RunReport{
		StartedAt: time.Now().UTC(),
		Source:    strings.Join(cfg.Source.Paths, ","),
		Events:    len(events),
	}

	if cfg.Analytics.Shards > 0 {
		logger.Debug("Processing venues on up to %d shards", cfg.Analytics.Shards)
		report.Venues, err = monitor.ProcessSharded(ctx, events, monitorConfig, cfg.Analytics.Shards, recorder)
		if err != nil {
			return nil, fmt.Errorf("sharded processing failed: %w", err)
		}
	} else {
		mon := monitor.New(monitorConfig)
		mon.SetRecorder(recorder)
		for _, event := range events {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			flagged, err := mon.Enrich(event)
			if err != nil {
				report.Rejected++
				logger.Warn("Skipping event: %v", err)
				continue
			}
			if flagged.Flagged {
				report.FlaggedRows++
			}
		}
		report.Venues = mon.Snapshots()
		logger.Info("Processed %d events, rejected %d, flagged %d rows",
			mon.Processed(), report.Rejected, report.FlaggedRows)
	}

	for _, v := range report.Venues {
		logger.Info("Venue %s: %d orders sent, %d flagged orders, %d novel symbols",
			v.Venue, v.OrdersSent, len(v.FlaggedOrders), len(v.NovelSymbols))
	}

	mined := patterns.Mine(events)
	for _, p := range mined.Top(cfg.Patterns.TopK) {
		report.Patterns = append(report.Patterns, models.PatternSummary{
			ID:    p.ID,
			Shape: p.Shape.String(),
			Count: p.Count,
		})
	}
	logger.Info("Mined %d distinct lifecycle patterns across %d orders",
		mined.Registry.Len(), len(mined.Groups))

	if err := applyFilters(events, cfg.Patterns); err != nil {
		return nil, err
	}

	return report, nil
}

func loadEvents(src config.SourceConfig) ([]models.EventRecord, error) {
	format := eventlog.Format(src.Format)
	if len(src.Paths) > 1 && format == eventlog.FormatJSON {
		return eventlog.ConcatJSON(src.Paths)
	}

	var all []models.EventRecord
	for _, path := range src.Paths {
		events, err := eventlog.ReadFile(path, format)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	if len(src.Paths) > 1 {
		eventlog.SortByTimestamp(all)
	}
	return all, nil
}

func applyFilters(events []models.EventRecord, cfg config.PatternsConfig) error {
	if len(cfg.Targets) > 0 {
		targets, err := patterns.ParseShapes(cfg.Targets)
		if err != nil {
			return fmt.Errorf("invalid pattern targets: %w", err)
		}
		selected := patterns.SelectByShape(events, targets)
		logger.Info("%d events belong to orders matching %d target shape(s)", len(selected), len(targets))
	}
	if len(cfg.Transitions) > 0 {
		targets, err := patterns.ParseShapes(cfg.Transitions)
		if err != nil {
			return fmt.Errorf("invalid transition targets: %w", err)
		}
		selected := patterns.SelectByTransition(events, targets, patterns.TransitionOptions{Strict: cfg.Strict})
		logger.Info("%d events start a requested transition (strict: %v)", len(selected), cfg.Strict)
	}
	return nil
}
