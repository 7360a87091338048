package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"video-publish-scheduler/internal/api"
	"video-publish-scheduler/internal/scheduler"
	"video-publish-scheduler/internal/uploader"
)

var daemonChannels string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run upload and schedule batches on a cron cadence",
	Long: "Runs the upload phase and the schedule phase for each configured\n" +
		"channel on the cron expressions from DAEMON_UPLOAD_CRON and\n" +
		"DAEMON_SCHEDULE_CRON, and serves health, metrics, and status.",
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonChannels, "channels", "", "comma-separated channel names")
	_ = daemonCmd.MarkFlagRequired("channels")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	names := strings.Split(daemonChannels, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	pub, err := newPublisher()
	if err != nil {
		return err
	}
	src, err := newSource(ctx)
	if err != nil {
		return err
	}

	statusServer := api.New(st, names)
	httpServer := &http.Server{Addr: cfg.StatusAddr, Handler: statusServer.Router()}
	go func() {
		logger.Info().Str("addr", cfg.StatusAddr).Msg("status server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("status server stopped")
		}
	}()

	runner := cron.New()
	for _, name := range names {
		cc, err := loadChannel(name)
		if err != nil {
			return err
		}

		up := uploader.New(st, pub, src, newLedger(cc.Name), uploader.Options{
			Concurrency:    cfg.UploadConcurrency,
			MaxAttempts:    cfg.MaxAttempts,
			BackoffInitial: cfg.BackoffInitial,
			BackoffMax:     cfg.BackoffMax,
			ChannelID:      cc.ChannelID,
			CategoryID:     cc.CategoryID,
			MadeForKids:    cc.MadeForKids,
			Language:       cc.Language,
		}, logger)
		sched := scheduler.New(st, pub, src, scheduler.Options{
			ChannelID:      cc.ChannelID,
			Window:         windowFor(cc),
			MaxAttempts:    cfg.MaxAttempts,
			BackoffInitial: cfg.BackoffInitial,
			BackoffMax:     cfg.BackoffMax,
		}, logger)

		channel := cc.Name
		if _, err := runner.AddFunc(cfg.UploadCron, func() {
			report, err := up.Run(ctx, channel, cfg.UploadLimit)
			if err != nil {
				logger.Error().Str("channel", channel).Err(err).Msg("upload batch failed")
			}
			if report != nil {
				statusServer.RecordReport(report)
			}
		}); err != nil {
			return fmt.Errorf("upload cron %q: %w", cfg.UploadCron, err)
		}
		if _, err := runner.AddFunc(cfg.ScheduleCron, func() {
			report, err := sched.Run(ctx, channel, false, time.Time{})
			if err != nil {
				logger.Error().Str("channel", channel).Err(err).Msg("schedule batch failed")
			}
			if report != nil {
				statusServer.RecordReport(report)
			}
		}); err != nil {
			return fmt.Errorf("schedule cron %q: %w", cfg.ScheduleCron, err)
		}
	}

	logger.Info().Strs("channels", names).Str("upload_cron", cfg.UploadCron).Str("schedule_cron", cfg.ScheduleCron).Msg("daemon started")
	runner.Start()

	<-ctx.Done()
	stopCtx := runner.Stop()
	<-stopCtx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	return nil
}
