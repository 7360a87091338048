package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"video-publish-scheduler/internal/scheduler"
)

var (
	scheduleChannel   string
	scheduleDryRun    bool
	scheduleStartDate string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Assign publish slots to uploaded videos (phase two)",
	Long: "Queries the platform for currently scheduled videos, plans one\n" +
		"slot per uploaded-but-unscheduled item inside the channel's daily\n" +
		"window, and commits final metadata plus the publish time. Safe to\n" +
		"re-run; --dry-run previews the plan without touching anything.",
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleChannel, "channel", "", "channel name")
	scheduleCmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "plan only, mutate nothing")
	scheduleCmd.Flags().StringVar(&scheduleStartDate, "start-date", "", "earliest slot date (YYYY-MM-DD, channel timezone)")
	_ = scheduleCmd.MarkFlagRequired("channel")
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cc, err := loadChannel(scheduleChannel)
	if err != nil {
		return err
	}

	var searchStart time.Time
	if scheduleStartDate != "" {
		day, err := time.ParseInLocation("2006-01-02", scheduleStartDate, cc.Location())
		if err != nil {
			return fmt.Errorf("invalid --start-date %q: %w", scheduleStartDate, err)
		}
		searchStart = day
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

	sched := scheduler.New(st, pub, src, scheduler.Options{
		ChannelID:      cc.ChannelID,
		Window:         windowFor(cc),
		MaxAttempts:    cfg.MaxAttempts,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
	}, logger)

	report, err := sched.Run(ctx, cc.Name, scheduleDryRun, searchStart)
	if report != nil {
		printReport(report)
	}
	return err
}
