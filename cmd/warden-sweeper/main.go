package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/sweeper"
)

var (
	runOnce     = flag.Bool("run-once", false, "Run the sweep (and archive, if enabled) once and exit")
	archiveDate = flag.String("date", "", "Day to archive (YYYY-MM-DD). If empty, archives yesterday. Only used with --run-once")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewComponentLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	sw, err := a.Sweeper()
	if err != nil {
		logger.Fatalf("Failed to create sweeper: %v", err)
	}

	var archiver *audit.S3Archiver
	if cfg.Archive.Enabled {
		archiver, err = a.Archiver(ctx)
		if err != nil {
			logger.Fatalf("Failed to create archiver: %v", err)
		}
	}

	if *runOnce {
		day := time.Now().UTC().AddDate(0, 0, -1)
		if *archiveDate != "" {
			day, err = time.Parse("2006-01-02", *archiveDate)
			if err != nil {
				logger.Fatalf("Invalid date format: %v", err)
			}
		}

		if _, err := runSweep(ctx, sw, logger); err != nil {
			logger.Fatalf("Sweep failed: %v", err)
		}
		if archiver != nil {
			if err := runArchive(ctx, archiver, day, logger); err != nil {
				logger.Fatalf("Archive failed: %v", err)
			}
		}
		return
	}

	a.Start(ctx)
	c := cron.New()

	_, err = c.AddFunc(cfg.Sweeper.Schedule, func() {
		runSweep(ctx, sw, logger)
	})
	if err != nil {
		logger.Fatalf("Failed to schedule sweep: %v", err)
	}

	if archiver != nil {
		_, err = c.AddFunc(cfg.Archive.Schedule, func() {
			runArchive(ctx, archiver, time.Now().UTC().AddDate(0, 0, -1), logger)
		})
		if err != nil {
			logger.Fatalf("Failed to schedule archive: %v", err)
		}
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"sweep_schedule":   cfg.Sweeper.Schedule,
		"archive_enabled":  cfg.Archive.Enabled,
		"archive_schedule": cfg.Archive.Schedule,
	}).Info("Warden sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	stopped := c.Stop()
	<-stopped.Done()

	logger.Info("Sweeper stopped")
}

func runSweep(ctx context.Context, sw *sweeper.Sweeper, logger *logrus.Logger) (sweeper.Report, error) {
	report, err := sw.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Expiry sweep failed")
		return report, err
	}
	logger.WithFields(logrus.Fields{
		"found":       report.Found,
		"deactivated": report.Deactivated,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
	}).Info("Expiry sweep completed")
	return report, nil
}

// runArchive uploads the audit trail for the UTC day containing day
func runArchive(ctx context.Context, archiver *audit.S3Archiver, day time.Time, logger *logrus.Logger) error {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	result, err := archiver.Archive(ctx, from, to)
	if err != nil {
		logger.WithError(err).WithField("day", from.Format("2006-01-02")).Error("Audit archive failed")
		return err
	}
	logger.WithFields(logrus.Fields{
		"key":     result.Key,
		"events":  result.Events,
		"skipped": result.Skipped,
	}).Info("Audit archive completed")
	return nil
}
