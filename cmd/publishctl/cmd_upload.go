package main

import (
	"github.com/spf13/cobra"

	"video-publish-scheduler/internal/uploader"
)

var (
	uploadChannel string
	uploadLimit   int
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload pending payloads as private videos (phase one)",
	Long: "Transfers pending payloads to the platform with placeholder\n" +
		"metadata and private visibility, and checkpoints the returned\n" +
		"video ids. No scheduling happens here; the limit flag caps how\n" +
		"much platform quota one run may spend.",
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadChannel, "channel", "", "channel name")
	uploadCmd.Flags().IntVar(&uploadLimit, "limit", 0, "max items to upload this run (default from DAEMON_UPLOAD_LIMIT)")
	_ = uploadCmd.MarkFlagRequired("channel")
}

func runUpload(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cc, err := loadChannel(uploadChannel)
	if err != nil {
		return err
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

	limit := uploadLimit
	if limit <= 0 {
		limit = cfg.UploadLimit
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

	report, err := up.Run(ctx, cc.Name, limit)
	if report != nil {
		printReport(report)
	}
	return err
}
